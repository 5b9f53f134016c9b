package peer

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	trackLive int32 = iota
	trackMuted
)

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
}

// LocalTrack is one outgoing device track. Mute state is flipped atomically
// and gates writes only; the track stays attached to every peer connection,
// so toggling never renegotiates.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticRTP
	out   rtpWriter
	state int32
}

func (t *LocalTrack) Enabled() bool {
	return atomic.LoadInt32(&t.state) == trackLive
}

func (t *LocalTrack) SetEnabled(on bool) {
	if on {
		atomic.StoreInt32(&t.state, trackLive)
		return
	}
	atomic.StoreInt32(&t.state, trackMuted)
}

// WriteRTP forwards one packet to every attached peer connection unless the
// track is muted.
func (t *LocalTrack) WriteRTP(pkt *rtp.Packet) error {
	if atomic.LoadInt32(&t.state) == trackMuted {
		return nil
	}
	return t.out.WriteRTP(pkt)
}

// LocalMedia owns the microphone and camera tracks shared by all links.
type LocalMedia struct {
	Audio *LocalTrack
	Video *LocalTrack
}

func NewLocalMedia(streamID string) (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}
	return &LocalMedia{
		Audio: &LocalTrack{track: audio, out: audio},
		Video: &LocalTrack{track: video, out: video},
	}, nil
}

// AttachTo adds both tracks to a peer connection. pion fans a single
// TrackLocalStaticRTP out to every bound sender.
func (m *LocalMedia) AttachTo(pc *webrtc.PeerConnection) error {
	if _, err := pc.AddTrack(m.Audio.track); err != nil {
		return err
	}
	if _, err := pc.AddTrack(m.Video.track); err != nil {
		return err
	}
	return nil
}

// ToggleMicrophone flips audio enablement and returns the new state.
func (m *LocalMedia) ToggleMicrophone() bool {
	next := !m.Audio.Enabled()
	m.Audio.SetEnabled(next)
	log.Info().Str("module", "peer.media").Bool("enabled", next).Msg("microphone toggled")
	return next
}

// ToggleCamera flips video enablement and returns the new state.
func (m *LocalMedia) ToggleCamera() bool {
	next := !m.Video.Enabled()
	m.Video.SetEnabled(next)
	log.Info().Str("module", "peer.media").Bool("enabled", next).Msg("camera toggled")
	return next
}
