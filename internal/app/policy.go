package app

import "github.com/dkeye/Cowork/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer overflowed
// during a room broadcast.
type Policy interface {
	OnBackPressure(room domain.RoomID, cid domain.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, cid domain.ConnID) BackpressureAction {
	return KickMember
}
