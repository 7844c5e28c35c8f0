package core

import (
	"errors"
	"fmt"
)

// TimestampLayout prefixes every broadcast line.
const TimestampLayout = "15:04:05"

type recipient struct {
	id   string
	peer Peer
}

// Broadcast sends text to every session, or only to members of channel when
// it is non-empty, skipping exclude. The timestamp is taken at send time.
// Recipients whose Send fails are disconnected; the rest still receive the
// line. Returns the number of successful deliveries.
func (h *Hub) Broadcast(text, exclude, channel string) int {
	return h.fanout(h.audience(exclude, channel), h.stamp(text))
}

// audience snapshots recipients under the lock so sends happen without it.
func (h *Hub) audience(exclude, channelName string) []recipient {
	h.mu.Lock()
	defer h.mu.Unlock()

	if channelName == "" {
		out := make([]recipient, 0, len(h.sessions))
		for id, s := range h.sessions {
			if id != exclude {
				out = append(out, recipient{id: id, peer: s.peer})
			}
		}
		return out
	}

	ch, ok := h.channels[channelName]
	if !ok {
		return nil
	}
	out := make([]recipient, 0, len(ch.members))
	for id := range ch.members {
		if id == exclude {
			continue
		}
		if s, ok := h.sessions[id]; ok {
			out = append(out, recipient{id: id, peer: s.peer})
		}
	}
	return out
}

func (h *Hub) fanout(recipients []recipient, line string) int {
	var failed []string
	delivered := 0
	for _, r := range recipients {
		if err := r.peer.Send(line); err != nil {
			h.log.Warn().Err(err).Str("session_id", r.id).Msg("dropping recipient")
			failed = append(failed, r.id)
			continue
		}
		delivered++
	}
	h.obs.Delivered(delivered)

	for _, id := range failed {
		h.obs.Dropped()
		h.Disconnect(id)
	}
	return delivered
}

func (h *Hub) stamp(text string) string {
	return fmt.Sprintf("[%s] %s", h.now().Format(TimestampLayout), text)
}

// Reply sends an untimestamped notice to one session only. A failed send
// disconnects that session.
func (h *Hub) Reply(id, text string) error {
	peer, ok := h.peerOf(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := peer.Send(text); err != nil {
		h.log.Warn().Err(err).Str("session_id", id).Msg("reply failed")
		h.obs.Dropped()
		h.Disconnect(id)
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// Whisper delivers a timestamped private line from one session to the
// session named to. Nobody else sees it.
func (h *Hub) Whisper(fromID, to, text string) (SessionInfo, error) {
	h.mu.Lock()
	from, ok := h.sessions[fromID]
	if !ok {
		h.mu.Unlock()
		return SessionInfo{}, ErrSessionNotFound
	}
	targetID, ok := h.names[to]
	if !ok {
		h.mu.Unlock()
		return SessionInfo{}, ErrUserNotFound
	}
	target := h.sessions[targetID]
	sender, info, peer := from.username, target.info(), target.peer
	h.mu.Unlock()

	if h.fanout([]recipient{{id: targetID, peer: peer}}, h.stamp(fmt.Sprintf("[private] %s: %s", sender, text))) == 0 {
		return SessionInfo{}, ErrUserNotFound
	}
	return info, nil
}

// Disconnect removes a session, closes its peer and tells the others. Safe
// to call more than once and from any goroutine.
func (h *Hub) Disconnect(id string) {
	peer, _ := h.peerOf(id)
	info, ok := h.Remove(id)
	if !ok {
		return
	}
	if peer != nil {
		if err := peer.Close(); err != nil && !errors.Is(err, ErrPeerClosed) {
			h.log.Debug().Err(err).Str("session_id", id).Msg("close peer")
		}
	}

	h.log.Info().Str("session_id", id).Str("user", info.Username).Msg("session disconnected")
	if info.Channel != "" {
		h.Broadcast(fmt.Sprintf("%s left %s.", info.Username, info.Channel), "", info.Channel)
	}
	h.Broadcast(fmt.Sprintf("%s has disconnected.", info.Username), "", "")
}

func (h *Hub) peerOf(id string) (Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	return s.peer, true
}
