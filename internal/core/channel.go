package core

import (
	"crypto/subtle"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxChannelNameLen bounds channel names in bytes.
const MaxChannelNameLen = 64

// channel groups sessions subscribed to the same name.
type channel struct {
	name    string
	secret  string
	members map[string]struct{} // session ids
	created time.Time
}

func newChannel(name, secret string, now time.Time) *channel {
	return &channel{
		name:    name,
		secret:  secret,
		members: make(map[string]struct{}),
		created: now,
	}
}

// add inserts a session id. Returns true if newly added.
func (c *channel) add(id string) bool {
	if _, exists := c.members[id]; exists {
		return false
	}
	c.members[id] = struct{}{}
	return true
}

// remove deletes a session id. Returns true if removed.
func (c *channel) remove(id string) bool {
	if _, exists := c.members[id]; !exists {
		return false
	}
	delete(c.members, id)
	return true
}

func (c *channel) empty() bool {
	return len(c.members) == 0
}

// admits reports whether secret opens the channel. Open channels admit any secret.
func (c *channel) admits(secret string) bool {
	if c.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(c.secret), []byte(secret)) == 1
}

func (c *channel) info() ChannelInfo {
	return ChannelInfo{
		Name:      c.name,
		Members:   len(c.members),
		Protected: c.secret != "",
		CreatedAt: c.created,
	}
}

// ChannelInfo is a point-in-time copy of a channel.
type ChannelInfo struct {
	Name      string
	Members   int
	Protected bool
	CreatedAt time.Time
}

// ValidateChannelName rejects empty names, surrounding whitespace, control
// characters and names longer than MaxChannelNameLen. Names are case-sensitive.
func ValidateChannelName(name string) error {
	if name == "" || len(name) > MaxChannelNameLen || !utf8.ValidString(name) {
		return ErrInvalidName
	}
	if strings.TrimSpace(name) != name {
		return ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrInvalidName
		}
	}
	return nil
}
