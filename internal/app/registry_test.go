package app

import (
	"fmt"
	"testing"

	"github.com/dkeye/Cowork/internal/domain"
)

func TestRegistry_AdmitRejectsDuplicateUsernameInRoom(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit c1: %v", err)
	}
	if _, err := r.Admit("c2", "room", "alice"); err != ErrUsernameTaken {
		t.Fatalf("Admit c2 err=%v, want ErrUsernameTaken", err)
	}
	if got := len(r.ParticipantsOf("room")); got != 1 {
		t.Fatalf("room size=%d, want 1 after rejected admit", got)
	}

	// Same username in a different room is fine: uniqueness is per room.
	if _, err := r.Admit("c3", "other", "alice"); err != nil {
		t.Fatalf("Admit c3: %v", err)
	}
}

func TestRegistry_UsernameFreedAfterRemove(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit c1: %v", err)
	}
	if _, ok := r.Remove("c1"); !ok {
		t.Fatalf("Remove c1 returned false")
	}
	if _, err := r.Admit("c2", "room", "alice"); err != nil {
		t.Fatalf("Admit c2 after remove: %v", err)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	p, ok := r.Remove("c1")
	if !ok {
		t.Fatalf("first Remove returned false")
	}
	if p.Username != "alice" || p.RoomID != "room" {
		t.Fatalf("removed participant=%+v, want alice/room", p)
	}
	if _, ok := r.Remove("c1"); ok {
		t.Fatalf("second Remove returned true, want not-found no-op")
	}
}

func TestRegistry_ParticipantsOfKeepsAdmissionOrder(t *testing.T) {
	r := NewRegistry()

	for _, cid := range []domain.ConnID{"c3", "c1", "c2"} {
		if _, err := r.Admit(cid, "room", "u-"+string(cid)); err != nil {
			t.Fatalf("Admit %s: %v", cid, err)
		}
	}

	got := r.ParticipantsOf("room")
	want := []domain.ConnID{"c3", "c1", "c2"}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.ConnID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, p.ConnID, want[i])
		}
	}
}

func TestRegistry_JoinLeaveLeavesNoResidue(t *testing.T) {
	r := NewRegistry()

	const n = 50
	for i := 0; i < n; i++ {
		cid := domain.ConnID(fmt.Sprintf("c%02d", i))
		if _, err := r.Admit(cid, "room", "user-"+string(cid)); err != nil {
			t.Fatalf("Admit %s: %v", cid, err)
		}
		if _, ok := r.Remove(cid); !ok {
			t.Fatalf("Remove %s returned false", cid)
		}
	}

	if got := len(r.ParticipantsOf("room")); got != 0 {
		t.Fatalf("room size=%d, want 0 after all leave", got)
	}
	if got := len(r.Rooms()); got != 0 {
		t.Fatalf("rooms=%d, want 0 (rooms are derived)", got)
	}
}

func TestRegistry_MutateUnknownConnectionIsNoOp(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Mutate("ghost", func(p *domain.Participant) { p.Typing = true }); ok {
		t.Fatalf("Mutate on unknown connection returned true")
	}
}

func TestRegistry_MutateUpdatesInPlace(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	p, ok := r.Mutate("c1", func(p *domain.Participant) {
		p.Typing = true
		p.CursorPosition = 42
		p.CurrentFile = "main.go"
	})
	if !ok {
		t.Fatalf("Mutate returned false")
	}
	if !p.Typing || p.CursorPosition != 42 || p.CurrentFile != "main.go" {
		t.Fatalf("mutated participant=%+v", p)
	}
	if p.RoomID != "room" {
		t.Fatalf("RoomID=%s changed by mutate", p.RoomID)
	}
}

func TestRegistry_RoomOf(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.RoomOf("c1"); ok {
		t.Fatalf("RoomOf before admit returned true")
	}
	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	room, ok := r.RoomOf("c1")
	if !ok || room != "room" {
		t.Fatalf("RoomOf=%q/%v, want room/true", room, ok)
	}
}

func TestRegistry_AdmitValidatesInput(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Admit("c1", "room", ""); err != domain.ErrUsernameEmpty {
		t.Fatalf("empty username err=%v, want ErrUsernameEmpty", err)
	}
	if _, err := r.Admit("c1", "", "alice"); err != domain.ErrRoomIDEmpty {
		t.Fatalf("empty room err=%v, want ErrRoomIDEmpty", err)
	}
	if _, err := r.Admit("c1", "room", "alice"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := r.Admit("c1", "room2", "alice"); err != ErrAlreadyJoined {
		t.Fatalf("second admit err=%v, want ErrAlreadyJoined", err)
	}
}
