package peer

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/domain"
)

// MediaLink is the direct media transport for one pair. Implemented by
// WebRTCLink; tests substitute a fake.
type MediaLink interface {
	// CreateOffer creates and applies the local description. Candidates
	// trickle via OnICECandidate, so gathering is not awaited.
	CreateOffer() (webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	Close()
}

// MediaFactory builds the media transport toward one remote connection.
type MediaFactory func(remote domain.ConnID) (MediaLink, error)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

type WebRTCLink struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnID
	onICE  func(webrtc.ICECandidateInit)
}

// NewMediaFactory wires every new pair connection with the shared local
// tracks, so a camera/mic toggle applies to all links at once.
func NewMediaFactory(cfg webrtc.Configuration, local *LocalMedia) MediaFactory {
	return func(remote domain.ConnID) (MediaLink, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		l := &WebRTCLink{pc: pc, remote: remote}

		pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
			if cand != nil && l.onICE != nil {
				l.onICE(cand.ToJSON())
			}
		})
		pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
			log.Info().Str("module", "peer.rtc").Str("remote", string(remote)).
				Str("ice_state", s.String()).Msg("ICE state")
		})
		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			log.Info().Str("module", "peer.rtc").Str("remote", string(remote)).
				Str("peer_connection_state", s.String()).Msg("Peer state")
		})

		if local != nil {
			if err := local.AttachTo(pc); err != nil {
				_ = pc.Close()
				return nil, err
			}
		}
		return l, nil
	}
}

func (l *WebRTCLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *WebRTCLink) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (l *WebRTCLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(answer)
}

func (l *WebRTCLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *WebRTCLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.onICE = fn
}

func (l *WebRTCLink) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "peer.rtc").Str("remote", string(l.remote)).Msg("close error")
		return
	}
	log.Info().Str("module", "peer.rtc").Str("remote", string(l.remote)).Msg("closed")
}
