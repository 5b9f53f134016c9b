// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUsernameLen = 36
	MaxRoomIDLen   = 64
)

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
	ErrRoomIDEmpty     = errors.New("room id empty")
	ErrRoomIDTooLong   = errors.New("room id too long")
)

// ConnID identifies one live connection. It is the primary key of the
// presence registry; a connection holds at most one participant record.
type ConnID string

type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Participant is the presence record bound to one live connection.
// RoomID never changes after admission; leaving deletes the record.
type Participant struct {
	ConnID         ConnID `json:"connectionId"`
	Username       string `json:"username"`
	RoomID         RoomID `json:"roomId"`
	Status         Status `json:"status"`
	CursorPosition int    `json:"cursorPosition"`
	Typing         bool   `json:"typing"`
	CurrentFile    string `json:"currentFile,omitempty"`
}

func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func ValidateRoomID(id RoomID) error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}
