package core

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/proto"
)

// Hub owns every live session and channel. One mutex guards both
// registries so membership changes touch the session and the channel
// in the same critical section.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session // session id -> session
	names    map[string]string   // username -> session id
	channels map[string]*channel // channel name -> channel
	seq      uint64

	now func() time.Time
	log *zerolog.Logger
	obs Observer
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithObserver attaches an activity observer.
func WithObserver(obs Observer) HubOption {
	return func(h *Hub) {
		if obs != nil {
			h.obs = obs
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		sessions: make(map[string]*session),
		names:    make(map[string]string),
		channels: make(map[string]*channel),
		now:      time.Now,
		log:      &nop,
		obs:      nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers a session for an authenticated connection.
func (h *Hub) Add(peer Peer, username string) (SessionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, taken := h.names[username]; taken {
		return SessionInfo{}, ErrDuplicateUsername
	}

	h.seq++
	s := &session{
		id:        uuid.NewString(),
		username:  username,
		account:   username,
		status:    StatusOnline,
		peer:      peer,
		seq:       h.seq,
		connected: h.now(),
	}
	h.sessions[s.id] = s
	h.names[username] = s.id
	h.obs.SessionOpened()

	h.log.Debug().Str("session_id", s.id).Str("user", username).Msg("session added")
	return s.info(), nil
}

// Remove deletes a session, leaving its channel first. It is idempotent;
// the returned info carries the channel the session was in.
func (h *Hub) Remove(id string) (SessionInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	info := s.info()
	h.leaveLocked(s)
	delete(h.sessions, id)
	delete(h.names, s.username)
	h.obs.SessionClosed()

	h.log.Debug().Str("session_id", id).Str("user", s.username).Msg("session removed")
	return info, true
}

// Session returns a snapshot of one session.
func (h *Hub) Session(id string) (SessionInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Lookup finds the live session holding username.
func (h *Hub) Lookup(username string) (SessionInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.names[username]
	if !ok {
		return SessionInfo{}, false
	}
	return h.sessions[id].info(), true
}

// SetStatus changes a session's presence.
func (h *Hub) SetStatus(id string, status Status) error {
	if status != StatusOnline && status != StatusAway {
		return ErrInvalidStatus
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.status = status
	return nil
}

// Rename changes a session's username and returns the old one.
// Renaming to the current name is a no-op.
func (h *Hub) Rename(id, newName string) (string, error) {
	if !proto.ValidUsername(newName) {
		return "", ErrInvalidUsername
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	old := s.username
	if old == newName {
		return old, nil
	}
	if _, taken := h.names[newName]; taken {
		return "", ErrNameTaken
	}
	delete(h.names, old)
	h.names[newName] = id
	s.username = newName
	return old, nil
}

// Users lists live sessions in the order they connected.
func (h *Hub) Users() []UserInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]UserInfo, len(list))
	for i, s := range list {
		out[i] = UserInfo{Username: s.username, Status: s.status, Channel: s.channel}
	}
	return out
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// JoinResult describes a successful Join.
type JoinResult struct {
	Channel  string
	Previous string // channel left to make the switch, if any
	Created  bool
	Already  bool // the session was already a member
}

// Join moves a session into channel name, creating it if absent; the first
// joiner's secret protects the channel. On ErrWrongSecret or ErrInvalidName
// nothing changes. The previous channel is left in the same step.
func (h *Hub) Join(id, name, secret string) (JoinResult, error) {
	if err := ValidateChannelName(name); err != nil {
		return JoinResult{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return JoinResult{}, ErrSessionNotFound
	}

	ch, exists := h.channels[name]
	if s.channel == name && exists {
		ch.add(id)
		return JoinResult{Channel: name, Already: true}, nil
	}
	if exists && !ch.admits(secret) {
		return JoinResult{}, ErrWrongSecret
	}

	result := JoinResult{Channel: name, Previous: h.leaveLocked(s)}
	if !exists {
		ch = newChannel(name, secret, h.now())
		h.channels[name] = ch
		result.Created = true
		h.obs.ChannelCreated()
	}
	ch.add(id)
	s.channel = name

	h.log.Debug().Str("session_id", id).Str("channel", name).Bool("created", result.Created).Msg("joined channel")
	return result, nil
}

// Leave removes a session from its channel and returns the channel name.
func (h *Hub) Leave(id string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	left := h.leaveLocked(s)
	if left == "" {
		return "", ErrNotMember
	}
	return left, nil
}

// leaveLocked clears s.channel and drops s from the member set, deleting
// the channel when it empties. Returns the channel left, or "".
func (h *Hub) leaveLocked(s *session) string {
	name := s.channel
	if name == "" {
		return ""
	}
	s.channel = ""
	if ch, ok := h.channels[name]; ok {
		ch.remove(s.id)
		if ch.empty() {
			delete(h.channels, name)
			h.obs.ChannelRemoved()
			h.log.Debug().Str("channel", name).Msg("channel removed")
		}
	}
	return name
}

// Channels lists channels sorted by name.
func (h *Hub) Channels() []ChannelInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ChannelInfo, 0, len(h.channels))
	for _, ch := range h.channels {
		out = append(out, ch.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
