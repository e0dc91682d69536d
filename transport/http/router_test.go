package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planclient/adapters/tokenizer"
	"github.com/layer-3/planclient/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router *gin.Engine
	clock  *testClock
}

func newTestServer(t *testing.T, opts ...BackendOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	tok := tokenizer.NewJWTTokenizer([]byte("test-secret"), time.Minute, time.Hour).WithClock(clock.Now)
	opts = append([]BackendOption{WithBcryptCost(bcrypt.MinCost), WithBackendClock(clock.Now)}, opts...)
	backend := NewBackend(tok, opts...)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testServer{router: SetupRouter(backend, tok, log), clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, json.RawMessage, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env.Data, env.Error
}

func (s *testServer) register(t *testing.T, email string) core.AuthResult {
	t.Helper()
	status, data, _ := s.do(t, http.MethodPost, "/api/auth/register", "", core.RegisterRequest{
		Name: "Ada", Email: email, Password: "secret", ConfirmPassword: "secret",
	})
	require.Equal(t, http.StatusCreated, status)

	var result core.AuthResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ada@example.com")
	require.NotNil(t, reg.User)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)

	status, _, msg := s.do(t, http.MethodPost, "/api/auth/register", "", core.RegisterRequest{
		Name: "Ada", Email: "ADA@example.com", Password: "secret", ConfirmPassword: "secret",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, msg)

	status, data, _ := s.do(t, http.MethodPost, "/api/auth/login", "", core.LoginRequest{Email: "ada@example.com", Password: "secret"})
	require.Equal(t, http.StatusOK, status)
	var login core.AuthResult
	require.NoError(t, json.Unmarshal(data, &login))
	assert.Equal(t, reg.User.ID, login.User.ID)

	status, _, msg = s.do(t, http.MethodPost, "/api/auth/login", "", core.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", msg)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	status, _, _ := s.do(t, http.MethodPost, "/api/auth/register", "", core.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "secret", ConfirmPassword: "other",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, _, msg := s.do(t, http.MethodGet, "/api/notes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid authorization header", msg)

	status, _, msg = s.do(t, http.MethodGet, "/api/notes", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid token", msg)
}

func TestAccessTokenExpiresAndRefreshRestoresAccess(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ada@example.com")

	status, _, _ := s.do(t, http.MethodGet, "/api/activities", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	s.clock.Advance(2 * time.Minute)
	status, _, msg := s.do(t, http.MethodGet, "/api/activities", reg.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token expired", msg)

	status, data, _ := s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var refreshed core.RefreshResult
	require.NoError(t, json.Unmarshal(data, &refreshed))
	assert.Empty(t, refreshed.RefreshToken)

	status, _, _ = s.do(t, http.MethodGet, "/api/activities", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRefreshRejectsAccessTokenAndExpiredRefresh(t *testing.T) {
	s := newTestServer(t)
	reg := s.register(t, "ada@example.com")

	status, _, _ := s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: reg.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	s.clock.Advance(2 * time.Hour)
	status, _, msg := s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Refresh token expired", msg)
}

func TestRefreshRotation(t *testing.T) {
	s := newTestServer(t, WithRefreshRotation())
	reg := s.register(t, "ada@example.com")

	status, data, _ := s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: reg.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var refreshed core.RefreshResult
	require.NoError(t, json.Unmarshal(data, &refreshed))
	assert.NotEmpty(t, refreshed.RefreshToken)

	// The replaced refresh token and the access token minted from it stop working
	status, _, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: reg.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, msg := s.do(t, http.MethodGet, "/api/notes", reg.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token revoked", msg)

	status, _, _ = s.do(t, http.MethodGet, "/api/notes", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, data, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", core.RefreshRequest{RefreshToken: refreshed.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var again core.RefreshResult
	require.NoError(t, json.Unmarshal(data, &again))
	assert.NotEqual(t, refreshed.RefreshToken, again.RefreshToken)
}

func TestActivityLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ada@example.com").AccessToken

	status, data, _ := s.do(t, http.MethodPost, "/api/activities", token, core.Activity{
		Title: "Standup", Date: "2026-03-14", StartTime: "09:30", EndTime: "09:45",
	})
	require.Equal(t, http.StatusCreated, status)
	var created core.Activity
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, core.TypeSchedule, created.Type)
	assert.Equal(t, core.SourceManual, created.Source)
	assert.Equal(t, core.StatusPending, created.Status)
	assert.Equal(t, core.PriorityMedium, created.Priority)

	status, _, _ = s.do(t, http.MethodPost, "/api/activities", token, core.Activity{Title: "Buy milk", Type: core.TypeTask})
	require.Equal(t, http.StatusCreated, status)

	status, data, _ = s.do(t, http.MethodGet, "/api/activities?type=task", token, nil)
	require.Equal(t, http.StatusOK, status)
	var tasks []core.Activity
	require.NoError(t, json.Unmarshal(data, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)
	assert.Equal(t, "2026-03-14", tasks[0].Date)

	status, data, _ = s.do(t, http.MethodPatch, "/api/activities/"+created.ID+"/status", token, map[string]string{"status": "done"})
	require.Equal(t, http.StatusOK, status)
	var updated core.Activity
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, core.StatusDone, updated.Status)

	status, _, _ = s.do(t, http.MethodPatch, "/api/activities/"+created.ID+"/status", token, map[string]string{"status": "finished"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, data, _ = s.do(t, http.MethodPut, "/api/activities/"+created.ID, token, core.Activity{Title: "Daily standup"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, "Daily standup", updated.Title)
	assert.Equal(t, "09:30", updated.StartTime)

	status, _, _ = s.do(t, http.MethodDelete, "/api/activities/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _, _ = s.do(t, http.MethodGet, "/api/activities/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestActivitiesAreScopedToOwner(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada@example.com").AccessToken
	bob := s.register(t, "bob@example.com").AccessToken

	status, data, _ := s.do(t, http.MethodPost, "/api/activities", ada, core.Activity{Title: "Private"})
	require.Equal(t, http.StatusCreated, status)
	var created core.Activity
	require.NoError(t, json.Unmarshal(data, &created))

	status, _, _ = s.do(t, http.MethodGet, "/api/activities/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, data, _ = s.do(t, http.MethodGet, "/api/activities", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(data))
}

func TestNotesPinnedFirst(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ada@example.com").AccessToken

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		status, data, _ := s.do(t, http.MethodPost, "/api/notes", token, core.Note{Title: title, Content: title})
		require.Equal(t, http.StatusCreated, status)
		var n core.Note
		require.NoError(t, json.Unmarshal(data, &n))
		ids = append(ids, n.ID)
	}

	status, data, _ := s.do(t, http.MethodPatch, "/api/notes/"+ids[0]+"/pin", token, nil)
	require.Equal(t, http.StatusOK, status)
	var pinned core.Note
	require.NoError(t, json.Unmarshal(data, &pinned))
	assert.True(t, pinned.IsPinned)

	status, data, _ = s.do(t, http.MethodGet, "/api/notes", token, nil)
	require.Equal(t, http.StatusOK, status)
	var notes []core.Note
	require.NoError(t, json.Unmarshal(data, &notes))
	require.Len(t, notes, 3)
	assert.Equal(t, []string{"first", "third", "second"}, []string{notes[0].Title, notes[1].Title, notes[2].Title})

	status, data, _ = s.do(t, http.MethodGet, "/api/notes?isPinned=true", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &notes))
	require.Len(t, notes, 1)

	status, _, _ = s.do(t, http.MethodGet, "/api/notes?isPinned=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = s.do(t, http.MethodPost, "/api/notes", token, core.Note{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestParsePrompt(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ada@example.com").AccessToken

	status, data, _ := s.do(t, http.MethodPost, "/api/ai/parse", token, map[string]string{
		"prompt": "write report\n\n  gym  \nnote: call mom\nnote:",
	})
	require.Equal(t, http.StatusOK, status)

	var plan core.Plan
	require.NoError(t, json.Unmarshal(data, &plan))
	require.Len(t, plan.Activities, 2)
	assert.Equal(t, "write report", plan.Activities[0].Title)
	assert.Equal(t, "gym", plan.Activities[1].Title)
	assert.Equal(t, core.TypeTask, plan.Activities[1].Type)
	require.Len(t, plan.Notes, 1)
	assert.Equal(t, "call mom", plan.Notes[0].Content)
	assert.Len(t, plan.Warnings, 1)

	status, _, _ = s.do(t, http.MethodPost, "/api/ai/parse", token, map[string]string{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}
