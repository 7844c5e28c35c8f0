package core

import (
	"errors"
	"strings"
	"time"
)

// Status is a session's presence.
type Status int

const (
	StatusOnline Status = iota
	StatusAway
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusAway:
		return "away"
	default:
		return "unknown"
	}
}

// ParseStatus accepts "online" or "away" in any case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "online":
		return StatusOnline, nil
	case "away":
		return StatusAway, nil
	default:
		return 0, ErrInvalidStatus
	}
}

// Peer is the write side of a connection as seen by the hub.
// Send must not block: transports queue the line or fail fast.
type Peer interface {
	Send(line string) error
	Close() error
}

var (
	// ErrPeerClosed is returned by Send once the connection is gone.
	ErrPeerClosed = errors.New("peer closed")
	// ErrSlowConsumer is returned by Send when the peer's queue is full.
	ErrSlowConsumer = errors.New("peer outbox full")
)

// session is the registry record; it never leaves the hub.
type session struct {
	id        string
	username  string
	account   string // login name; stays fixed across renames
	channel   string
	status    Status
	peer      Peer
	seq       uint64
	connected time.Time
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		Username:    s.username,
		Account:     s.account,
		Channel:     s.channel,
		Status:      s.status,
		ConnectedAt: s.connected,
	}
}

// SessionInfo is a point-in-time copy of a session.
type SessionInfo struct {
	ID          string
	Username    string
	Account     string // name the session logged in with
	Channel     string // empty when in the global room
	Status      Status
	ConnectedAt time.Time
}

// UserInfo is one row of the /users listing.
type UserInfo struct {
	Username string
	Status   Status
	Channel  string
}
