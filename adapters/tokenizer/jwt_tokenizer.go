package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/planclient/core"
	"github.com/layer-3/planclient/ports"
)

const AudienceAccess = "planner:access"
const AudienceRefresh = "planner:refresh"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret []byte, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	return &JWTTokenizer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// WithClock replaces the time source, for tests
func (j *JWTTokenizer) WithClock(now func() time.Time) *JWTTokenizer {
	j.now = now
	return j
}

// IssueAccessToken signs a short-lived access token for subject
func (j *JWTTokenizer) IssueAccessToken(subject, refreshID string) (string, core.TokenInfo, error) {
	now := j.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID: refreshID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", core.TokenInfo{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, infoFromClaims(claims.RegisteredClaims), nil
}

// IssueRefreshToken signs a long-lived refresh token for subject
func (j *JWTTokenizer) IssueRefreshToken(subject string) (string, core.TokenInfo, error) {
	now := j.now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", core.TokenInfo{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, infoFromClaims(claims.RegisteredClaims), nil
}

// ParseAccessToken verifies an access token
func (j *JWTTokenizer) ParseAccessToken(tokenStr string) (core.TokenInfo, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return core.TokenInfo{}, err
	}
	info := infoFromClaims(claims.RegisteredClaims)
	info.RefreshID = claims.RefreshID
	return info, nil
}

// ParseRefreshToken verifies a refresh token
func (j *JWTTokenizer) ParseRefreshToken(tokenStr string) (core.TokenInfo, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return core.TokenInfo{}, err
	}
	return infoFromClaims(claims.RegisteredClaims), nil
}

// Inspect decodes a token without checking its signature or expiry.
// It only serves display purposes on the client, which never holds the signing key.
func (j *JWTTokenizer) Inspect(tokenStr string) (core.TokenInfo, error) {
	return Inspect(tokenStr)
}

// Inspect decodes the registered claims of any JWT without verification
func Inspect(tokenStr string) (core.TokenInfo, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return core.TokenInfo{}, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	return infoFromClaims(*claims), nil
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithAudience(audience), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}

func infoFromClaims(c jwt.RegisteredClaims) core.TokenInfo {
	info := core.TokenInfo{
		ID:      c.ID,
		Subject: c.Subject,
	}
	if len(c.Audience) > 0 {
		info.Audience = c.Audience[0]
	}
	if c.IssuedAt != nil {
		info.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	return info
}
