package domain

// RoomID identifies a room. Rooms are derived: one exists while at least
// one participant references it and disappears with the last leave.
type RoomID string
