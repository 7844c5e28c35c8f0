package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/auth"
)

// Authenticator is the subset of the auth gateway used over HTTP.
type Authenticator interface {
	Register(ctx context.Context, username, secret string) (auth.Identity, error)
	Login(ctx context.Context, username, secret string) (auth.Identity, error)
	ValidateToken(token string) (*auth.Claims, error)
}

// APIHandlers provides the credential endpoints.
type APIHandlers struct {
	auth Authenticator
	log  *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authenticator Authenticator, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		auth: authenticator,
		log:  logger,
	}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// RegisterResponse confirms a new account.
type RegisterResponse struct {
	Username string `json:"username"`
}

// AuthResponse carries a session token for the status API.
type AuthResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register creates an account. Like the line protocol it does not log in.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	identity, err := h.auth.Register(c.Request.Context(), req.Username, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("user", req.Username).Msg("failed to register user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("user", identity.Username).Msg("user registered")
	c.JSON(http.StatusCreated, RegisterResponse{Username: identity.Username})
}

// Login exchanges credentials for a token.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	identity, err := h.auth.Login(c.Request.Context(), req.Username, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("user", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Username: identity.Username, Token: identity.Token})
}
