// Package tokenstore persists the client session (access token, refresh token and
// user profile) on top of a key/value backend.
//
// Reads never fail: a backend error or a malformed stored profile is logged and
// reported as absent. Writes replace the whole session at once where the
// operation touches more than one key.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/layer-3/planclient/core"
	"github.com/layer-3/planclient/ports"
)

// DefaultPrefix matches the key names used by the web client
const DefaultPrefix = "cpa_"

const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
	userKey    = "user"
)

// Store is the durable session store
type Store struct {
	backend ports.Store
	prefix  string
	log     *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLogger sets the logger used for backend failures
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Store over backend
func New(backend ports.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		prefix:  DefaultPrefix,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string { return s.prefix + name }

func (s *Store) get(ctx context.Context, name string) string {
	v, err := s.backend.Get(ctx, s.key(name))
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.log.Warn("tokenstore.read_failed", "key", s.key(name), "err", err)
		}
		return ""
	}
	return v
}

// AccessToken returns the stored access token or "" when absent
func (s *Store) AccessToken(ctx context.Context) string {
	return s.get(ctx, accessKey)
}

// RefreshToken returns the stored refresh token or "" when absent
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.get(ctx, refreshKey)
}

// User returns the stored profile, or nil when absent or unreadable
func (s *Store) User(ctx context.Context) *core.UserProfile {
	raw := s.get(ctx, userKey)
	if raw == "" {
		return nil
	}
	var u core.UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.log.Warn("tokenstore.user_malformed", "err", err)
		return nil
	}
	return &u
}

// Session returns the full stored session
func (s *Store) Session(ctx context.Context) core.Session {
	return core.Session{
		AccessToken:  s.AccessToken(ctx),
		RefreshToken: s.RefreshToken(ctx),
		User:         s.User(ctx),
	}
}

// IsAuthenticated reports whether an access token is stored
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	return s.AccessToken(ctx) != ""
}

// SetTokens stores both tokens in one write
func (s *Store) SetTokens(ctx context.Context, tokens core.Tokens) error {
	err := s.backend.SetMulti(ctx, map[string]string{
		s.key(accessKey):  tokens.AccessToken,
		s.key(refreshKey): tokens.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// SetAccessToken replaces the access token only
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	if err := s.backend.Set(ctx, s.key(accessKey), token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

// SetUser stores the profile as JSON
func (s *Store) SetUser(ctx context.Context, user *core.UserProfile) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.backend.Set(ctx, s.key(userKey), string(raw)); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// Save overwrites the whole session with a login or register result
func (s *Store) Save(ctx context.Context, result core.AuthResult) error {
	raw, err := json.Marshal(result.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	err = s.backend.SetMulti(ctx, map[string]string{
		s.key(accessKey):  result.AccessToken,
		s.key(refreshKey): result.RefreshToken,
		s.key(userKey):    string(raw),
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Clear removes all session keys
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key(accessKey), s.key(refreshKey), s.key(userKey)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
