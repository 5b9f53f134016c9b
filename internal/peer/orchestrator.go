package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/core"
	"github.com/dkeye/Cowork/internal/domain"
)

// SignalSender pushes one event to the relay over the signaling connection.
type SignalSender interface {
	Send(v any) error
}

// Orchestrator drives one direct media link per remote room member: SDP
// offer/answer plus trickled ICE, full mesh. Pairs are independent; a failed
// negotiation resets only its own link.
//
// Initiation is driven by the USER_JOINED broadcast: the existing member
// offers, the newcomer answers. When both sides end up offering at once, the
// lexicographically smaller connection id keeps the initiator role and the
// other side's offer wins.
type Orchestrator struct {
	self    domain.ConnID
	sender  SignalSender
	factory MediaFactory

	mu    sync.Mutex
	links map[domain.ConnID]*Link
}

func NewOrchestrator(self domain.ConnID, sender SignalSender, factory MediaFactory) *Orchestrator {
	return &Orchestrator{
		self:    self,
		sender:  sender,
		factory: factory,
		links:   make(map[domain.ConnID]*Link),
	}
}

type offerOut struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type answerOut struct {
	Type   string `json:"type"`
	Target string `json:"targetConnectionId"`
	SDP    string `json:"sdp"`
}

type candidateOut struct {
	Type      string                  `json:"type"`
	Target    string                  `json:"targetConnectionId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// HandleFrame dispatches one inbound signaling event. Events the orchestrator
// does not own (chat, drawing, typing) are ignored here.
func (o *Orchestrator) HandleFrame(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("bad frame")
		return
	}

	switch env.Type {
	case core.EvtJoinAccepted:
		var evt core.JoinAccepted
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad join accepted")
			return
		}
		// Existing members initiate toward us; nothing to do but wait.
		log.Info().Str("module", "peer").Int("roster", len(evt.Roster)).Msg("joined room")
	case core.EvtUserJoined:
		var evt core.ParticipantEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad user joined")
			return
		}
		o.OnUserJoined(evt.Participant.ConnID)
	case core.EvtUserDisconnected:
		var evt core.ParticipantEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad user disconnected")
			return
		}
		o.OnUserDisconnected(evt.Participant.ConnID)
	case core.EvtSignalOffer:
		var evt core.SDPEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad offer")
			return
		}
		o.OnOffer(evt.From, evt.SDP)
	case core.EvtSignalAnswer:
		var evt core.SDPEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad answer")
			return
		}
		o.OnAnswer(evt.From, evt.SDP)
	case core.EvtSignalCandidate:
		var evt core.CandidateEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("bad candidate")
			return
		}
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(evt.Candidate, &ci); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("from", string(evt.From)).Msg("malformed candidate")
			return
		}
		o.OnCandidate(evt.From, ci)
	}
}

// OnUserJoined makes this (existing) member the initiator toward the
// newcomer. The offer is room-addressed; only the newcomer acts on it.
func (o *Orchestrator) OnUserJoined(remote domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.links[remote]; exists {
		return
	}
	link := newLink(remote)
	o.links[remote] = link
	o.startOfferLocked(link)
}

func (o *Orchestrator) startOfferLocked(link *Link) {
	if err := o.ensureMediaLocked(link); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(link.remote)).Msg("media setup failed")
		o.dropLinkLocked(link)
		return
	}
	offer, err := link.media.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(link.remote)).Msg("create offer failed")
		o.dropLinkLocked(link)
		return
	}
	link.state = LinkOffering
	if err := o.sender.Send(offerOut{Type: core.EvtSignalOffer, SDP: offer.SDP}); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(link.remote)).Msg("send offer failed")
		o.dropLinkLocked(link)
	}
}

func (o *Orchestrator) ensureMediaLocked(link *Link) error {
	if link.media != nil {
		return nil
	}
	media, err := o.factory(link.remote)
	if err != nil {
		return err
	}
	remote := link.remote
	media.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := o.sender.Send(candidateOut{Type: core.EvtSignalCandidate, Target: string(remote), Candidate: ci}); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("send candidate failed")
		}
	})
	link.media = media
	return nil
}

// OnOffer answers an idle pair. A competing offer while offering resolves by
// the connection-id tie-break; duplicates for answering/connected pairs are
// discarded.
func (o *Orchestrator) OnOffer(from domain.ConnID, sdp string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, exists := o.links[from]
	if exists {
		switch link.state {
		case LinkOffering:
			if o.self < from {
				log.Info().Str("module", "peer").Str("remote", string(from)).Msg("glare: keeping initiator role, offer discarded")
				return
			}
			log.Info().Str("module", "peer").Str("remote", string(from)).Msg("glare: yielding initiator role")
			if link.media != nil {
				link.media.Close()
				link.media = nil
			}
			link.state = LinkIdle
			link.remoteSet = false
		case LinkAnswering, LinkConnected:
			log.Info().Str("module", "peer").Str("remote", string(from)).
				Str("state", link.state.String()).Msg("duplicate offer discarded")
			return
		}
	} else {
		link = newLink(from)
		o.links[from] = link
	}

	if err := o.ensureMediaLocked(link); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("media setup failed")
		o.dropLinkLocked(link)
		return
	}

	link.state = LinkAnswering
	answer, err := link.media.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("apply offer failed")
		o.dropLinkLocked(link)
		return
	}
	link.remoteSet = true
	o.flushPendingLocked(link)

	if err := o.sender.Send(answerOut{Type: core.EvtSignalAnswer, Target: string(from), SDP: answer.SDP}); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("send answer failed")
		o.dropLinkLocked(link)
		return
	}
	link.state = LinkConnected
}

// OnAnswer completes a negotiation this side initiated. Answers for pairs not
// in the offering state are stale and ignored.
func (o *Orchestrator) OnAnswer(from domain.ConnID, sdp string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, exists := o.links[from]
	if !exists || link.state != LinkOffering {
		log.Warn().Str("module", "peer").Str("remote", string(from)).Msg("stale answer ignored")
		return
	}
	if err := link.media.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("apply answer failed")
		o.dropLinkLocked(link)
		return
	}
	link.remoteSet = true
	o.flushPendingLocked(link)
	link.state = LinkConnected
}

// OnCandidate applies a trickled candidate, buffering it when the pair's
// remote description is not set yet.
func (o *Orchestrator) OnCandidate(from domain.ConnID, ci webrtc.ICECandidateInit) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, exists := o.links[from]
	if !exists {
		// Either the pair was torn down or the sender is unknown. Per-sender
		// event order guarantees the offer precedes its candidates, so this
		// is not an early candidate worth parking.
		log.Warn().Str("module", "peer").Str("remote", string(from)).Msg("candidate for unknown pair discarded")
		return
	}
	if !link.remoteSet {
		link.pending = append(link.pending, ci)
		return
	}
	if err := link.media.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("add candidate failed")
	}
}

func (o *Orchestrator) flushPendingLocked(link *Link) {
	for _, ci := range link.pending {
		if err := link.media.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("remote", string(link.remote)).Msg("flush candidate failed")
		}
	}
	link.pending = nil
}

// OnUserDisconnected tears the pair down: media closed, buffered candidates
// discarded, link removed. Later events for the same remote are harmless.
func (o *Orchestrator) OnUserDisconnected(remote domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, exists := o.links[remote]
	if !exists {
		return
	}
	o.dropLinkLocked(link)
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("link torn down")
}

func (o *Orchestrator) dropLinkLocked(link *Link) {
	if link.media != nil {
		link.media.Close()
	}
	link.pending = nil
	link.state = LinkClosed
	delete(o.links, link.remote)
}

// Close tears down every link, e.g. when leaving the room.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, link := range o.links {
		o.dropLinkLocked(link)
	}
}

// LinkState reports the negotiation state toward remote.
func (o *Orchestrator) LinkState(remote domain.ConnID) (LinkState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.links[remote]
	if !ok {
		return LinkIdle, false
	}
	return link.state, true
}

func (o *Orchestrator) LinkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}
