package core

import "time"

// UserProfile is the user record returned by login and register
type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Tokens is the credential pair held by a client
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is the payload of a successful login or register call
type AuthResult struct {
	User         *UserProfile `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Tokens returns the credential pair of the result
func (r AuthResult) Tokens() Tokens {
	return Tokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Session is the persisted client-side view of an authenticated user
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RefreshRequest is the body of POST /api/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResult is the payload of a successful refresh call.
// RefreshToken is only set by backends that rotate refresh tokens.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthState is the client-side authentication state
type AuthState string

const (
	StateAnonymous       AuthState = "anonymous"
	StateAuthenticating  AuthState = "authenticating"
	StateAuthenticated   AuthState = "authenticated"
	StateRefreshingToken AuthState = "refreshing_token"
)

// TokenInfo describes a signed token
type TokenInfo struct {
	ID        string    // Unique token identifier
	Subject   string    // User ID the token was issued to
	Audience  string    // Token kind (access or refresh)
	IssuedAt  time.Time // When the token was issued
	ExpiresAt time.Time // When the token stops being accepted
	RefreshID string    // Refresh token an access token was minted from
}

// Expired reports whether the token is past its expiry at t
func (i TokenInfo) Expired(t time.Time) bool {
	return !i.ExpiresAt.IsZero() && !t.Before(i.ExpiresAt)
}
