package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/layer-3/planclient/client"
	"github.com/layer-3/planclient/core"
	"github.com/layer-3/planclient/ports"
	"github.com/layer-3/planclient/tokenstore"
)

const (
	loginPath    = "/api/auth/login"
	registerPath = "/api/auth/register"
)

// Requester performs an API call and decodes the response payload into out.
// *client.Client implements it.
type Requester interface {
	Request(ctx context.Context, method, path string, body, out any, opts ...client.RequestOption) error
}

// SessionClient is the part of *client.Client the auth service needs
type SessionClient interface {
	Requester
	Refresh(ctx context.Context) (string, error)
	Refreshing() bool
	Tokens() *tokenstore.Store
}

// AuthService handles login, registration and the session lifecycle
type AuthService struct {
	api      SessionClient
	tokens   *tokenstore.Store
	eventPub ports.EventPublisher
	log      *slog.Logger

	authenticating atomic.Int32
}

// NewAuthService creates a new authentication service
func NewAuthService(api SessionClient, eventPub ports.EventPublisher, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		api:      api,
		tokens:   api.Tokens(),
		eventPub: eventPub,
		log:      log,
	}
}

// Login authenticates with email and password and stores the new session
func (s *AuthService) Login(ctx context.Context, email, password string) (*core.AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", core.ErrValidation)
	}

	s.authenticating.Add(1)
	defer s.authenticating.Add(-1)

	var result core.AuthResult
	err := s.api.Request(ctx, http.MethodPost, loginPath, core.LoginRequest{Email: email, Password: password}, &result, client.WithoutRefresh())
	if err != nil {
		if core.StatusCode(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidCredential, err)
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if err := s.save(ctx, result); err != nil {
		return nil, err
	}
	s.log.Info("auth.logged_in", "user_id", userID(result.User))
	return &result, nil
}

// Register creates an account and stores the new session
func (s *AuthService) Register(ctx context.Context, req core.RegisterRequest) (*core.AuthResult, error) {
	if err := validateRegister(req); err != nil {
		return nil, err
	}

	s.authenticating.Add(1)
	defer s.authenticating.Add(-1)

	var result core.AuthResult
	if err := s.api.Request(ctx, http.MethodPost, registerPath, req, &result, client.WithoutRefresh()); err != nil {
		if core.StatusCode(err) == http.StatusConflict {
			return nil, fmt.Errorf("%w: %w", core.ErrAccountExists, err)
		}
		return nil, fmt.Errorf("register failed: %w", err)
	}

	if err := s.save(ctx, result); err != nil {
		return nil, err
	}
	s.log.Info("auth.registered", "user_id", userID(result.User))
	return &result, nil
}

func (s *AuthService) save(ctx context.Context, result core.AuthResult) error {
	if result.AccessToken == "" {
		return fmt.Errorf("%w: auth response has no access token", core.ErrMalformedResponse)
	}
	return s.tokens.Save(ctx, result)
}

// Refresh exchanges the stored refresh token for a new access token.
// It shares the in-flight refresh with any request recovering from a 401.
func (s *AuthService) Refresh(ctx context.Context) (string, error) {
	return s.api.Refresh(ctx)
}

// Logout drops the local session. The backend keeps no session state to revoke.
func (s *AuthService) Logout(ctx context.Context) error {
	user := s.tokens.User(ctx)
	if err := s.tokens.Clear(ctx); err != nil {
		return err
	}

	if err := s.eventPub.PublishLogout(ctx, userID(user)); err != nil {
		// The session is already gone locally
		s.log.Warn("auth.logout_publish_failed", "err", err)
	}
	return nil
}

// CurrentUser returns the stored profile or nil
func (s *AuthService) CurrentUser(ctx context.Context) *core.UserProfile {
	return s.tokens.User(ctx)
}

// IsAuthenticated reports whether an access token is stored
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	return s.tokens.IsAuthenticated(ctx)
}

// State reports where the session is in the login/refresh lifecycle
func (s *AuthService) State(ctx context.Context) core.AuthState {
	switch {
	case s.authenticating.Load() > 0:
		return core.StateAuthenticating
	case s.api.Refreshing():
		return core.StateRefreshingToken
	case s.tokens.IsAuthenticated(ctx):
		return core.StateAuthenticated
	default:
		return core.StateAnonymous
	}
}

func validateRegister(req core.RegisterRequest) error {
	var missing []string
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if req.ConfirmPassword == "" {
		missing = append(missing, "confirmPassword")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", core.ErrValidation, strings.Join(missing, ", "))
	}
	if req.Password != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", core.ErrValidation)
	}
	return nil
}

func userID(u *core.UserProfile) string {
	if u == nil {
		return ""
	}
	return u.ID
}
