package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/core"
	"github.com/dkeye/Cowork/internal/domain"
)

var (
	ErrUsernameTaken = errors.New("username taken")
	ErrAlreadyJoined = errors.New("already joined a room")
)

type regEntry struct {
	conn   core.SignalConnection
	cancel context.CancelFunc

	// participant is nil until the connection is admitted to a room.
	participant *domain.Participant
	seq         uint64
}

// Registry is the process-wide presence table: connection bindings plus one
// participant record per admitted connection. All operations share one lock so
// username-uniqueness checks and roster reads observe a consistent snapshot
// across rooms.
type Registry struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[domain.ConnID]*regEntry
	byRoom  map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.ConnID]*regEntry),
		byRoom:  make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

// BindSignal attaches a transport endpoint and its connection-scoped cancel.
// Presence in a room is separate: it starts at Admit.
func (r *Registry) BindSignal(cid domain.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok {
		e = &regEntry{}
		r.entries[cid] = e
	}
	e.conn = conn
	e.cancel = cancel
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("bound signal")
}

// Unbind drops the connection binding and any remaining participant record.
func (r *Registry) Unbind(cid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[cid]; ok && e.participant != nil {
		r.dropFromRoom(e.participant.RoomID, cid)
	}
	delete(r.entries, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbind signal")
}

func (r *Registry) SignalOf(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[cid]; ok && e.conn != nil {
		return e.conn, true
	}
	return nil, false
}

// Cancel fires the connection-scoped cancel func, which unwinds the transport
// pumps and leads to the normal disconnect path.
func (r *Registry) Cancel(cid domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.entries[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}

// Admit creates the participant record for cid, rejecting the join when an
// ONLINE participant of the room already holds the username.
func (r *Registry) Admit(cid domain.ConnID, roomID domain.RoomID, username string) (domain.Participant, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return domain.Participant{}, err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return domain.Participant{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[cid]
	if !ok {
		e = &regEntry{}
		r.entries[cid] = e
	}
	if e.participant != nil {
		return domain.Participant{}, ErrAlreadyJoined
	}
	for other := range r.byRoom[roomID] {
		p := r.entries[other].participant
		if p.Status == domain.StatusOnline && p.Username == username {
			return domain.Participant{}, ErrUsernameTaken
		}
	}

	r.seq++
	e.seq = r.seq
	e.participant = &domain.Participant{
		ConnID:   cid,
		Username: username,
		RoomID:   roomID,
		Status:   domain.StatusOnline,
	}
	members, ok := r.byRoom[roomID]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		r.byRoom[roomID] = members
	}
	members[cid] = struct{}{}

	log.Info().Str("module", "app.registry").Str("cid", string(cid)).
		Str("room", string(roomID)).Str("username", username).Msg("admitted")
	return *e.participant, nil
}

// Remove deletes the participant record and returns it. Repeated calls are a
// no-op returning false, so late disconnect events stay harmless.
func (r *Registry) Remove(cid domain.ConnID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok || e.participant == nil {
		return domain.Participant{}, false
	}
	p := *e.participant
	r.dropFromRoom(p.RoomID, cid)
	e.participant = nil
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("room", string(p.RoomID)).Msg("removed")
	return p, true
}

// dropFromRoom must run under the write lock.
func (r *Registry) dropFromRoom(roomID domain.RoomID, cid domain.ConnID) {
	members, ok := r.byRoom[roomID]
	if !ok {
		return
	}
	delete(members, cid)
	if len(members) == 0 {
		delete(r.byRoom, roomID)
	}
}

func (r *Registry) ParticipantOf(cid domain.ConnID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[cid]; ok && e.participant != nil {
		return *e.participant, true
	}
	return domain.Participant{}, false
}

func (r *Registry) RoomOf(cid domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[cid]; ok && e.participant != nil {
		return e.participant.RoomID, true
	}
	return "", false
}

// ParticipantsOf returns the room's participants ordered by admission time.
func (r *Registry) ParticipantsOf(roomID domain.RoomID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.byRoom[roomID]
	type ordered struct {
		seq uint64
		p   domain.Participant
	}
	tmp := make([]ordered, 0, len(members))
	for cid := range members {
		e := r.entries[cid]
		tmp = append(tmp, ordered{seq: e.seq, p: *e.participant})
	}
	sort.Slice(tmp, func(i, j int) bool { return tmp[i].seq < tmp[j].seq })
	out := make([]domain.Participant, 0, len(tmp))
	for _, o := range tmp {
		out = append(out, o.p)
	}
	return out
}

// Mutate applies fn to the participant record atomically with respect to all
// other registry operations and returns the updated copy. Unknown connections
// (e.g. an update arriving after disconnect) are a logged no-op.
func (r *Registry) Mutate(cid domain.ConnID, fn func(*domain.Participant)) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cid]
	if !ok || e.participant == nil {
		log.Warn().Str("module", "app.registry").Str("cid", string(cid)).Msg("mutate on unknown connection")
		return domain.Participant{}, false
	}
	fn(e.participant)
	return *e.participant, true
}

// MemberConn pairs a room member with its transport endpoint for fanout.
type MemberConn struct {
	CID  domain.ConnID
	Conn core.SignalConnection
}

func (r *Registry) MembersOf(roomID domain.RoomID) []MemberConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.byRoom[roomID]
	out := make([]MemberConn, 0, len(members))
	for cid := range members {
		out = append(out, MemberConn{CID: cid, Conn: r.entries[cid].conn})
	}
	return out
}

func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.byRoom))
	for id, members := range r.byRoom {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
