package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/core"
	"github.com/dkeye/Cowork/internal/domain"
)

// Relay maps one inbound signal plus a registry lookup onto outbound
// emissions. It holds no state of its own; the registry is the only shared
// mutable state. A room broadcast never includes the event's own sender.
type Relay struct {
	Registry *Registry
	Policy   Policy
}

func NewRelay(reg *Registry, policy Policy) *Relay {
	return &Relay{Registry: reg, Policy: policy}
}

func (r *Relay) marshal(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal event")
		return nil, false
	}
	return b, true
}

func (r *Relay) unicast(cid domain.ConnID, v any) {
	conn, ok := r.Registry.SignalOf(cid)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("unicast to unknown connection")
		return
	}
	frame, ok := r.marshal(v)
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("cid", string(cid)).Msg("unicast dropped")
	}
}

// broadcast fans v out to every member of roomID except from and feeds slow
// receivers to the backpressure policy.
func (r *Relay) broadcast(roomID domain.RoomID, from domain.ConnID, v any) core.PublishResult {
	frame, ok := r.marshal(v)
	if !ok {
		return core.PublishResult{}
	}
	res := core.PublishResult{}
	for _, m := range r.Registry.MembersOf(roomID) {
		if m.CID == from || m.Conn == nil {
			continue
		}
		if err := m.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m.CID)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.relay").Str("room", string(roomID)).Str("from", string(from)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")

	if r.Policy != nil {
		for _, slow := range res.Dropped {
			if r.Policy.OnBackPressure(roomID, slow) == KickMember {
				r.Registry.Cancel(slow)
			}
		}
	}
	return res
}

// Join admits cid into roomID. On success the requester gets the roster plus
// its own record and the rest of the room gets a USER_JOINED notice; on a
// username collision only the requester hears about it.
func (r *Relay) Join(cid domain.ConnID, roomID domain.RoomID, username string) {
	if _, ok := r.Registry.RoomOf(cid); ok {
		// Joining while joined reads as leave-then-join.
		r.Leave(cid)
	}

	p, err := r.Registry.Admit(cid, roomID, username)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		log.Info().Str("module", "app.relay").Str("cid", string(cid)).
			Str("room", string(roomID)).Str("username", username).Msg("join rejected: username taken")
		r.unicast(cid, core.Envelope{Type: core.EvtUsernameExists})
		return
	case err != nil:
		log.Warn().Err(err).Str("module", "app.relay").Str("cid", string(cid)).Msg("join rejected")
		r.unicast(cid, core.ErrorEvent{Type: core.EvtError, Error: err.Error()})
		return
	}

	roster := make([]domain.Participant, 0)
	for _, member := range r.Registry.ParticipantsOf(roomID) {
		if member.ConnID != cid {
			roster = append(roster, member)
		}
	}
	r.unicast(cid, core.JoinAccepted{Type: core.EvtJoinAccepted, Participant: p, Roster: roster})
	r.broadcast(roomID, cid, core.ParticipantEvent{Type: core.EvtUserJoined, Participant: p})
}

// Leave broadcasts the departure notice before removing the record, so the
// notice still carries the departing participant's username and room.
func (r *Relay) Leave(cid domain.ConnID) {
	p, ok := r.Registry.ParticipantOf(cid)
	if !ok {
		return
	}
	r.broadcast(p.RoomID, cid, core.ParticipantEvent{Type: core.EvtUserDisconnected, Participant: p})
	r.Registry.Remove(cid)
}

// Disconnect handles transport-level loss: the departure flow plus dropping
// the connection binding. Safe to call for connections that never joined.
func (r *Relay) Disconnect(cid domain.ConnID) {
	r.Leave(cid)
	r.Registry.Unbind(cid)
}

// Offer fans an SDP offer out to the rest of the sender's room, tagged with
// the sender's connection id. Only the pair the offer is meant for acts on it.
func (r *Relay) Offer(cid domain.ConnID, sdp string) {
	roomID, ok := r.Registry.RoomOf(cid)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("offer from unregistered connection")
		return
	}
	r.broadcast(roomID, cid, core.SDPEvent{Type: core.EvtSignalOffer, From: cid, SDP: sdp})
}

// Answer is unicast to the connection the answer responds to.
func (r *Relay) Answer(cid, target domain.ConnID, sdp string) {
	if _, ok := r.Registry.RoomOf(cid); !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("answer from unregistered connection")
		return
	}
	r.unicast(target, core.SDPEvent{Type: core.EvtSignalAnswer, From: cid, SDP: sdp})
}

// Candidate relays one trickled ICE candidate: unicast when targeted,
// room-broadcast otherwise. The candidate body stays opaque.
func (r *Relay) Candidate(cid, target domain.ConnID, candidate json.RawMessage) {
	roomID, ok := r.Registry.RoomOf(cid)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("candidate from unregistered connection")
		return
	}
	evt := core.CandidateEvent{Type: core.EvtSignalCandidate, From: cid, Candidate: candidate}
	if target != "" {
		r.unicast(target, evt)
		return
	}
	r.broadcast(roomID, cid, evt)
}

// SetOnline toggles the participant's status and broadcasts the toggle after
// the registry mutation.
func (r *Relay) SetOnline(cid domain.ConnID, online bool) {
	status, evt := domain.StatusOnline, core.EvtUserOnline
	if !online {
		status, evt = domain.StatusOffline, core.EvtUserOffline
	}
	p, ok := r.Registry.Mutate(cid, func(p *domain.Participant) { p.Status = status })
	if !ok {
		return
	}
	r.broadcast(p.RoomID, cid, core.StatusEvent{Type: evt, ConnID: cid})
}

// TypingStart records the cursor position, marks the participant typing and
// broadcasts the full updated record.
func (r *Relay) TypingStart(cid domain.ConnID, cursor int) {
	p, ok := r.Registry.Mutate(cid, func(p *domain.Participant) {
		p.Typing = true
		p.CursorPosition = cursor
	})
	if !ok {
		return
	}
	r.broadcast(p.RoomID, cid, core.ParticipantEvent{Type: core.EvtTypingStart, Participant: p})
}

func (r *Relay) TypingPause(cid domain.ConnID) {
	p, ok := r.Registry.Mutate(cid, func(p *domain.Participant) { p.Typing = false })
	if !ok {
		return
	}
	r.broadcast(p.RoomID, cid, core.ParticipantEvent{Type: core.EvtTypingPause, Participant: p})
}

// SelectFile carries the editor subsystem's current-file marker on the
// participant record; the relay does not interpret it.
func (r *Relay) SelectFile(cid domain.ConnID, fileID string) {
	p, ok := r.Registry.Mutate(cid, func(p *domain.Participant) { p.CurrentFile = fileID })
	if !ok {
		return
	}
	r.broadcast(p.RoomID, cid, core.ParticipantEvent{Type: core.EvtFileSelect, Participant: p})
}

// Chat relays SEND_MESSAGE as RECEIVE_MESSAGE to the rest of the room.
// Messages are never persisted.
func (r *Relay) Chat(cid domain.ConnID, message json.RawMessage) {
	roomID, ok := r.Registry.RoomOf(cid)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("chat from unregistered connection")
		return
	}
	r.broadcast(roomID, cid, core.ChatEvent{Type: core.EvtReceiveMessage, From: cid, Message: message})
}

// RequestDrawing asks the rest of the room for the current canvas state.
func (r *Relay) RequestDrawing(cid domain.ConnID) {
	roomID, ok := r.Registry.RoomOf(cid)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("drawing request from unregistered connection")
		return
	}
	r.broadcast(roomID, cid, core.DrawingEvent{Type: core.EvtRequestDrawing, From: cid})
}

// SyncDrawing passes opaque canvas state to one requesting connection.
func (r *Relay) SyncDrawing(cid, target domain.ConnID, drawing json.RawMessage) {
	if _, ok := r.Registry.RoomOf(cid); !ok {
		log.Warn().Str("module", "app.relay").Str("cid", string(cid)).Msg("drawing sync from unregistered connection")
		return
	}
	r.unicast(target, core.DrawingEvent{Type: core.EvtSyncDrawing, From: cid, DrawingData: drawing})
}
