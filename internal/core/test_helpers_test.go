package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakePeer records every line it is sent.
type fakePeer struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	fail   error // returned by Send when set
}

func (p *fakePeer) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if p.fail != nil {
		return p.fail
	}
	p.lines = append(p.lines, line)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	p.closed = true
	return nil
}

func (p *fakePeer) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *fakePeer) Reset() {
	p.mu.Lock()
	p.lines = nil
	p.mu.Unlock()
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var errBrokenPipe = errors.New("broken pipe")

// fixedTime is 14:03:07 local time.
var fixedTime = time.Date(2024, 5, 1, 14, 3, 7, 0, time.Local)

func newTestHub(opts ...HubOption) *Hub {
	opts = append([]HubOption{WithClock(func() time.Time { return fixedTime })}, opts...)
	return NewHub(opts...)
}

func mustAdd(t *testing.T, h *Hub, username string) (SessionInfo, *fakePeer) {
	t.Helper()

	p := &fakePeer{}
	info, err := h.Add(p, username)
	if err != nil {
		t.Fatalf("add %s: %v", username, err)
	}
	return info, p
}

func mustJoin(t *testing.T, h *Hub, id, channel, secret string) JoinResult {
	t.Helper()

	res, err := h.Join(id, channel, secret)
	if err != nil {
		t.Fatalf("join %s: %v", channel, err)
	}
	return res
}

func expectLines(t *testing.T, p *fakePeer, want ...string) {
	t.Helper()

	got := p.Lines()
	if len(got) != len(want) {
		t.Fatalf("expected %d lines %q, got %d %q", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func stamped(text string) string {
	return fmt.Sprintf("[%s] %s", fixedTime.Format(TimestampLayout), text)
}

// checkConsistency asserts that session and channel views agree.
func checkConsistency(t *testing.T, h *Hub) {
	t.Helper()

	h.mu.Lock()
	defer h.mu.Unlock()

	for name, ch := range h.channels {
		if ch.empty() {
			t.Fatalf("channel %s is empty but still registered", name)
		}
		for id := range ch.members {
			s, ok := h.sessions[id]
			if !ok {
				t.Fatalf("channel %s lists unknown session %s", name, id)
			}
			if s.channel != name {
				t.Fatalf("session %s is in %s but %q claims it", id, s.channel, name)
			}
		}
	}
	for id, s := range h.sessions {
		if s.channel == "" {
			continue
		}
		ch, ok := h.channels[s.channel]
		if !ok {
			t.Fatalf("session %s points to missing channel %s", id, s.channel)
		}
		if _, ok := ch.members[id]; !ok {
			t.Fatalf("session %s not in member set of %s", id, s.channel)
		}
	}
	for name, id := range h.names {
		if s, ok := h.sessions[id]; !ok || s.username != name {
			t.Fatalf("name index %s -> %s is stale", name, id)
		}
	}
}
