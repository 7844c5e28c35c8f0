package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
)

// StatusHandlers exposes read-only views of the hub.
type StatusHandlers struct {
	hub *core.Hub
}

// NewStatusHandlers creates status handlers over hub.
func NewStatusHandlers(hub *core.Hub) *StatusHandlers {
	return &StatusHandlers{hub: hub}
}

// StatsResponse summarizes the server.
type StatsResponse struct {
	Sessions int `json:"sessions"`
	Channels int `json:"channels"`
	Protocol int `json:"protocol"`
}

// ChannelResponse is one channel in API responses.
type ChannelResponse struct {
	Name      string    `json:"name"`
	Members   int       `json:"members"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"created_at"`
}

// UserResponse is one online user in API responses.
type UserResponse struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Channel  string `json:"channel,omitempty"`
}

// MeResponse describes the token holder.
type MeResponse struct {
	Username    string     `json:"username"`
	Online      bool       `json:"online"`
	Status      string     `json:"status,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Stats returns session and channel counts.
// GET /api/stats
func (h *StatusHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Sessions: h.hub.Count(),
		Channels: len(h.hub.Channels()),
		Protocol: proto.ProtocolVersion,
	})
}

// Channels lists channels sorted by name. Secrets are never exposed.
// GET /api/channels
func (h *StatusHandlers) Channels(c *gin.Context) {
	channels := h.hub.Channels()
	out := make([]ChannelResponse, len(channels))
	for i, ch := range channels {
		out[i] = ChannelResponse{
			Name:      ch.Name,
			Members:   ch.Members,
			Protected: ch.Protected,
			CreatedAt: ch.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"channels": out})
}

// Users lists online users in connection order.
// GET /api/users
func (h *StatusHandlers) Users(c *gin.Context) {
	users := h.hub.Users()
	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = UserResponse{Username: u.Username, Status: u.Status.String(), Channel: u.Channel}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Me reports whether the token holder is connected.
// GET /api/me
func (h *StatusHandlers) Me(c *gin.Context) {
	username := c.GetString(ContextKeyUsername)
	resp := MeResponse{Username: username}
	if info, ok := h.hub.Lookup(username); ok {
		resp.Online = true
		resp.Status = info.Status.String()
		resp.Channel = info.Channel
		resp.ConnectedAt = &info.ConnectedAt
	}
	c.JSON(http.StatusOK, resp)
}
