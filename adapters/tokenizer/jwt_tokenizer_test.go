package tokenizer

import (
	"testing"
	"time"

	"github.com/layer-3/planclient/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := NewJWTTokenizer([]byte("test-secret"), time.Minute, time.Hour)

	token, issued, err := tk.IssueAccessToken("user-1", "rid-1")
	require.NoError(t, err)

	info, err := tk.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.Subject)
	assert.Equal(t, "rid-1", info.RefreshID)
	assert.Equal(t, AudienceAccess, info.Audience)
	assert.Equal(t, issued.ID, info.ID)
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	tk := NewJWTTokenizer([]byte("test-secret"), time.Minute, time.Hour)

	token, _, err := tk.IssueAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = tk.ParseRefreshToken(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredAccessToken(t *testing.T) {
	now := time.Now()
	tk := NewJWTTokenizer([]byte("test-secret"), time.Minute, time.Hour).
		WithClock(func() time.Time { return now })

	token, _, err := tk.IssueAccessToken("user-1", "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = tk.ParseAccessToken(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestWrongSecretRejected(t *testing.T) {
	token, _, err := NewJWTTokenizer([]byte("a"), time.Minute, time.Hour).IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = NewJWTTokenizer([]byte("b"), time.Minute, time.Hour).ParseRefreshToken(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestInspectSkipsVerification(t *testing.T) {
	token, issued, err := NewJWTTokenizer([]byte("a"), time.Minute, time.Hour).IssueRefreshToken("user-9")
	require.NoError(t, err)

	info, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", info.Subject)
	assert.Equal(t, AudienceRefresh, info.Audience)
	assert.WithinDuration(t, issued.ExpiresAt, info.ExpiresAt, time.Second)

	_, err = Inspect("not-a-jwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
