package core

import (
	"encoding/json"

	"github.com/dkeye/Cowork/internal/domain"
)

// Event names are the wire contract: client and relay agree by string only,
// there is no handshake or versioning field.
const (
	EvtJoinRequest      = "JOIN_REQUEST"
	EvtJoinAccepted     = "JOIN_ACCEPTED"
	EvtUsernameExists   = "USERNAME_EXISTS"
	EvtUserJoined       = "USER_JOINED"
	EvtUserDisconnected = "USER_DISCONNECTED"
	EvtSignalOffer      = "SIGNAL_OFFER"
	EvtSignalAnswer     = "SIGNAL_ANSWER"
	EvtSignalCandidate  = "SIGNAL_ICE_CANDIDATE"
	EvtUserOnline       = "USER_ONLINE"
	EvtUserOffline      = "USER_OFFLINE"
	EvtTypingStart      = "TYPING_START"
	EvtTypingPause      = "TYPING_PAUSE"
	EvtFileSelect       = "FILE_SELECT"
	EvtSendMessage      = "SEND_MESSAGE"
	EvtReceiveMessage   = "RECEIVE_MESSAGE"
	EvtRequestDrawing   = "REQUEST_DRAWING"
	EvtSyncDrawing      = "SYNC_DRAWING"
	EvtError            = "ERROR"
	EvtPing             = "PING"
	EvtPong             = "PONG"
)

// Envelope carries only the event name; handlers decode the full payload.
type Envelope struct {
	Type string `json:"type"`
}

// JoinAccepted is sent to the requester only. Roster lists the room's
// participants in admission order, excluding the requester's own record.
type JoinAccepted struct {
	Type        string               `json:"type"`
	Participant domain.Participant   `json:"participant"`
	Roster      []domain.Participant `json:"roster"`
}

// ParticipantEvent covers USER_JOINED, USER_DISCONNECTED and the presence
// update broadcasts that carry the full updated record.
type ParticipantEvent struct {
	Type        string             `json:"type"`
	Participant domain.Participant `json:"participant"`
}

// StatusEvent covers USER_ONLINE / USER_OFFLINE toggles.
type StatusEvent struct {
	Type   string        `json:"type"`
	ConnID domain.ConnID `json:"connectionId"`
}

// SDPEvent covers SIGNAL_OFFER and SIGNAL_ANSWER. From is stamped by the
// relay with the sender's connection id.
type SDPEvent struct {
	Type string        `json:"type"`
	From domain.ConnID `json:"from"`
	SDP  string        `json:"sdp"`
}

// CandidateEvent carries one trickled ICE candidate. The candidate body is
// opaque to the relay.
type CandidateEvent struct {
	Type      string          `json:"type"`
	From      domain.ConnID   `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

// ChatEvent is the RECEIVE_MESSAGE relay of a SEND_MESSAGE. The message body
// is opaque and never persisted.
type ChatEvent struct {
	Type    string          `json:"type"`
	From    domain.ConnID   `json:"from"`
	Message json.RawMessage `json:"message"`
}

// DrawingEvent covers REQUEST_DRAWING (empty payload) and SYNC_DRAWING
// (opaque canvas state addressed to one connection).
type DrawingEvent struct {
	Type        string          `json:"type"`
	From        domain.ConnID   `json:"from"`
	DrawingData json.RawMessage `json:"drawingData,omitempty"`
}

// ErrorEvent reports a recoverable per-connection problem to its sender.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PublishResult reports delivery stats/backpressure to the relay's policy.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// RoomInfo is a read-only room view for the REST surface.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}
