package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/proto"
	"github.com/vovakirdan/linechat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/secret don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing username.
	ErrUserExists = errors.New("username already taken")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when the secret doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// MinSecretLen is the shortest secret accepted on registration.
const MinSecretLen = 3

// Identity is an authenticated user. Token is only set by Login.
type Identity struct {
	Username string
	Token    string
}

// Gateway validates and creates credentials against a CredentialStore.
type Gateway struct {
	store  store.CredentialStore
	tokens *TokenConfig
	cost   int
	now    func() time.Time
	inUse  func(username string) bool

	// names serializes the final save of Register with ClaimName.
	names sync.Mutex
}

var _ core.NameGuard = (*Gateway)(nil)

// Option customizes a Gateway.
type Option func(*Gateway)

// WithBcryptCost overrides the hashing cost (tests use bcrypt.MinCost).
func WithBcryptCost(cost int) Option {
	return func(g *Gateway) { g.cost = cost }
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithNameInUse makes Register refuse names held by a live session, such
// as one taken with /nick.
func WithNameInUse(fn func(username string) bool) Option {
	return func(g *Gateway) { g.inUse = fn }
}

// NewGateway creates a new authentication gateway.
func NewGateway(credentials store.CredentialStore, tokens *TokenConfig, opts ...Option) *Gateway {
	g := &Gateway{
		store:  credentials,
		tokens: tokens,
		cost:   bcryptCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register stores a new credential. It does not log the caller in.
func (g *Gateway) Register(ctx context.Context, username, secret string) (Identity, error) {
	username = strings.TrimSpace(username)
	if !proto.ValidUsername(username) {
		return Identity{}, ErrInvalidUsername
	}
	if len(secret) < MinSecretLen {
		return Identity{}, ErrInvalidPassword
	}

	exists, err := g.store.Contains(ctx, username)
	if err != nil {
		return Identity{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return Identity{}, ErrUserExists
	}

	hash, err := HashSecret(secret, g.cost)
	if err != nil {
		return Identity{}, err
	}

	g.names.Lock()
	defer g.names.Unlock()
	if g.inUse != nil && g.inUse(username) {
		return Identity{}, ErrUserExists
	}
	// Save is the atomic arbiter when two registrations race past Contains.
	if err := g.store.Save(ctx, username, hash); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return Identity{}, ErrUserExists
		}
		return Identity{}, fmt.Errorf("save credential: %w", err)
	}

	return Identity{Username: username}, nil
}

// ClaimName runs claim unless name belongs to a stored account, in which
// case it returns core.ErrNameTaken. Registrations wait while claim runs.
func (g *Gateway) ClaimName(ctx context.Context, name string, claim func() error) error {
	g.names.Lock()
	defer g.names.Unlock()

	exists, err := g.store.Contains(ctx, name)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if exists {
		return core.ErrNameTaken
	}
	return claim()
}

// Login validates credentials and returns an identity with a session token.
func (g *Gateway) Login(ctx context.Context, username, secret string) (Identity, error) {
	username = strings.TrimSpace(username)

	hash, err := g.store.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = CompareSecret(string(dummyHash), secret)
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("lookup credential: %w", err)
	}

	if errCmp := CompareSecret(hash, secret); errCmp != nil {
		return Identity{}, ErrInvalidCredentials
	}

	identity := Identity{Username: username}
	if g.tokens != nil {
		token, err := GenerateToken(g.tokens, username, g.now())
		if err != nil {
			return Identity{}, fmt.Errorf("generate token: %w", err)
		}
		identity.Token = token
	}
	return identity, nil
}

// ValidateToken validates a session token and returns the claims.
func (g *Gateway) ValidateToken(tokenString string) (*Claims, error) {
	if g.tokens == nil {
		return nil, errors.New("tokens are not configured")
	}
	return ValidateToken(g.tokens, tokenString)
}
