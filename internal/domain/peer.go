// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

type (
	ConnID string
	UserID string
	RoomID string
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

// Presence is advisory client state, not enforced by the media path.
type Presence struct {
	Muted    bool `json:"isMuted"`
	Deafened bool `json:"isDeafened"`
}

// Peer is one connection's identity inside a room.
type Peer struct {
	Conn        ConnID `json:"connId"`
	User        UserID `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Presence
}

// DefaultDisplayName mirrors the anonymous fallback the client expects.
func DefaultDisplayName(conn ConnID) string {
	s := string(conn)
	if len(s) > 4 {
		s = s[:4]
	}
	return "User-" + s
}

func ValidDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}
