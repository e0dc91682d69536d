package http

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/planclient/core"
	"github.com/layer-3/planclient/ports"
	"golang.org/x/crypto/bcrypt"
)

const dateLayout = "2006-01-02"

type account struct {
	profile      core.UserProfile
	passwordHash []byte
}

type activityRecord struct {
	owner string
	seq   uint64
	core.Activity
}

type noteRecord struct {
	owner string
	seq   uint64
	core.Note
}

// Backend is an in-memory planner backend: accounts, activities and notes,
// each item owned by the user that created it.
type Backend struct {
	tokenizer     ports.Tokenizer
	bcryptCost    int
	rotateRefresh bool
	now           func() time.Time

	mu         sync.RWMutex
	seq        uint64
	accounts   map[string]*account // by lowercased email
	activities map[string]*activityRecord
	notes      map[string]*noteRecord
	retired    map[string]struct{} // refresh token IDs replaced by rotation
}

// BackendOption configures a Backend
type BackendOption func(*Backend)

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) BackendOption {
	return func(b *Backend) { b.bcryptCost = cost }
}

// WithRefreshRotation makes refresh return a new refresh token with every access token
func WithRefreshRotation() BackendOption {
	return func(b *Backend) { b.rotateRefresh = true }
}

// WithBackendClock replaces the time source for timestamps and default dates
func WithBackendClock(now func() time.Time) BackendOption {
	return func(b *Backend) { b.now = now }
}

// NewBackend creates an empty backend that signs tokens with tokenizer
func NewBackend(tokenizer ports.Tokenizer, opts ...BackendOption) *Backend {
	b := &Backend{
		tokenizer:  tokenizer,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		accounts:   make(map[string]*account),
		activities: make(map[string]*activityRecord),
		notes:      make(map[string]*noteRecord),
		retired:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) nextSeq() uint64 {
	b.seq++
	return b.seq
}

// Register creates an account and signs the user in
func (b *Backend) Register(req core.RegisterRequest) (*core.AuthResult, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", core.ErrValidation)
	}
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", core.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), b.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	key := strings.ToLower(strings.TrimSpace(req.Email))
	b.mu.Lock()
	if _, ok := b.accounts[key]; ok {
		b.mu.Unlock()
		return nil, core.ErrAccountExists
	}
	acc := &account{
		profile: core.UserProfile{
			ID:        uuid.NewString(),
			Name:      strings.TrimSpace(req.Name),
			Email:     strings.TrimSpace(req.Email),
			CreatedAt: b.now().UTC(),
		},
		passwordHash: hash,
	}
	b.accounts[key] = acc
	b.mu.Unlock()

	return b.issue(acc.profile)
}

// Login verifies the password and issues a token pair
func (b *Backend) Login(req core.LoginRequest) (*core.AuthResult, error) {
	b.mu.RLock()
	acc, ok := b.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	b.mu.RUnlock()
	if !ok {
		return nil, core.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)); err != nil {
		return nil, core.ErrInvalidCredential
	}
	return b.issue(acc.profile)
}

func (b *Backend) issue(user core.UserProfile) (*core.AuthResult, error) {
	refresh, info, err := b.tokenizer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	access, _, err := b.tokenizer.IssueAccessToken(user.ID, info.ID)
	if err != nil {
		return nil, err
	}
	return &core.AuthResult{User: &user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh issues a new access token for a valid refresh token
func (b *Backend) Refresh(refreshToken string) (*core.RefreshResult, error) {
	info, err := b.tokenizer.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if !b.userExists(info.Subject) {
		return nil, core.ErrInvalidToken
	}
	if b.rotateRefresh && !b.retire(info.ID) {
		return nil, fmt.Errorf("%w: refresh token already used", core.ErrInvalidToken)
	}

	result := &core.RefreshResult{}
	refreshID := info.ID
	if b.rotateRefresh {
		var newInfo core.TokenInfo
		result.RefreshToken, newInfo, err = b.tokenizer.IssueRefreshToken(info.Subject)
		if err != nil {
			return nil, err
		}
		refreshID = newInfo.ID
	}
	result.AccessToken, _, err = b.tokenizer.IssueAccessToken(info.Subject, refreshID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retire marks a refresh token as used. It reports false if it already was.
func (b *Backend) retire(refreshID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.retired[refreshID]; ok {
		return false
	}
	b.retired[refreshID] = struct{}{}
	return true
}

// CheckAccess rejects access tokens minted from a refresh token that rotation has replaced
func (b *Backend) CheckAccess(info core.TokenInfo) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.retired[info.RefreshID]; ok && info.RefreshID != "" {
		return fmt.Errorf("%w: refresh token rotated", core.ErrInvalidToken)
	}
	return nil
}

func (b *Backend) userExists(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, acc := range b.accounts {
		if acc.profile.ID == id {
			return true
		}
	}
	return false
}

// ListActivities returns the owner's activities ordered by date, start time and creation
func (b *Backend) ListActivities(owner string, filter core.ActivityFilter) []core.Activity {
	b.mu.RLock()
	records := make([]*activityRecord, 0)
	for _, r := range b.activities {
		if r.owner != owner {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Date != "" && r.Date != filter.Date {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && r.Priority != filter.Priority {
			continue
		}
		records = append(records, r)
	}
	b.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, c := records[i], records[j]
		if a.Date != c.Date {
			return a.Date < c.Date
		}
		if a.StartTime != c.StartTime {
			return a.StartTime < c.StartTime
		}
		return a.seq < c.seq
	})

	out := make([]core.Activity, len(records))
	for i, r := range records {
		out[i] = r.Activity
	}
	return out
}

// GetActivity returns one of the owner's activities
func (b *Backend) GetActivity(owner, id string) (*core.Activity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.activities[id]
	if !ok || r.owner != owner {
		return nil, core.ErrNotFound
	}
	a := r.Activity
	return &a, nil
}

// CreateActivity validates a, fills in defaults and stores it
func (b *Backend) CreateActivity(owner string, a core.Activity) (*core.Activity, error) {
	if strings.TrimSpace(a.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", core.ErrValidation)
	}
	if a.Type == "" {
		a.Type = core.TypeSchedule
	}
	if a.Type != core.TypeSchedule && a.Type != core.TypeTask {
		return nil, fmt.Errorf("%w: unknown type %q", core.ErrValidation, a.Type)
	}
	if a.Source == "" {
		a.Source = core.SourceManual
	}
	if a.Status == "" {
		a.Status = core.StatusPending
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrValidation, a.Status)
	}
	if a.Priority == "" {
		a.Priority = core.PriorityMedium
	}
	if err := validateDate(a.Date); err != nil {
		return nil, err
	}
	now := b.now().UTC()
	if a.Date == "" {
		a.Date = now.Format(dateLayout)
	}

	a.ID = uuid.NewString()
	a.CreatedAt = &now
	a.UpdatedAt = &now

	b.mu.Lock()
	b.activities[a.ID] = &activityRecord{owner: owner, seq: b.nextSeq(), Activity: a}
	b.mu.Unlock()
	return &a, nil
}

// UpdateActivity applies the non-empty fields of patch
func (b *Backend) UpdateActivity(owner, id string, patch core.Activity) (*core.Activity, error) {
	if patch.Status != "" && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrValidation, patch.Status)
	}
	if err := validateDate(patch.Date); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.activities[id]
	if !ok || r.owner != owner {
		return nil, core.ErrNotFound
	}

	a := &r.Activity
	setIfNotEmpty(&a.Title, patch.Title)
	setIfNotEmpty(&a.Date, patch.Date)
	setIfNotEmpty(&a.StartTime, patch.StartTime)
	setIfNotEmpty(&a.EndTime, patch.EndTime)
	setIfNotEmpty(&a.Description, patch.Description)
	setIfNotEmpty(&a.LinkURL, patch.LinkURL)
	if patch.Status != "" {
		a.Status = patch.Status
	}
	if patch.Priority != "" {
		a.Priority = patch.Priority
	}
	now := b.now().UTC()
	a.UpdatedAt = &now

	out := *a
	return &out, nil
}

// SetActivityStatus changes only the status of an activity
func (b *Backend) SetActivityStatus(owner, id string, status core.Status) (*core.Activity, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrValidation, status)
	}
	return b.UpdateActivity(owner, id, core.Activity{Status: status})
}

// DeleteActivity removes an activity
func (b *Backend) DeleteActivity(owner, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.activities[id]
	if !ok || r.owner != owner {
		return core.ErrNotFound
	}
	delete(b.activities, id)
	return nil
}

// ListNotes returns the owner's notes, pinned first, newest first
func (b *Backend) ListNotes(owner string, filter core.NoteFilter) []core.Note {
	b.mu.RLock()
	records := make([]*noteRecord, 0)
	for _, r := range b.notes {
		if r.owner != owner {
			continue
		}
		if filter.IsPinned != nil && r.IsPinned != *filter.IsPinned {
			continue
		}
		if filter.RelatedDate != "" && r.RelatedDate != filter.RelatedDate {
			continue
		}
		records = append(records, r)
	}
	b.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].IsPinned != records[j].IsPinned {
			return records[i].IsPinned
		}
		return records[i].seq > records[j].seq
	})

	out := make([]core.Note, len(records))
	for i, r := range records {
		out[i] = r.Note
	}
	return out
}

// GetNote returns one of the owner's notes
func (b *Backend) GetNote(owner, id string) (*core.Note, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.notes[id]
	if !ok || r.owner != owner {
		return nil, core.ErrNotFound
	}
	n := r.Note
	return &n, nil
}

// CreateNote stores a new note for owner
func (b *Backend) CreateNote(owner string, n core.Note) (*core.Note, error) {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
		return nil, fmt.Errorf("%w: title or content is required", core.ErrValidation)
	}
	if err := validateDate(n.RelatedDate); err != nil {
		return nil, err
	}
	if n.Source == "" {
		n.Source = core.SourceManual
	}
	now := b.now().UTC()
	n.ID = uuid.NewString()
	n.CreatedAt = &now
	n.UpdatedAt = &now

	b.mu.Lock()
	b.notes[n.ID] = &noteRecord{owner: owner, seq: b.nextSeq(), Note: n}
	b.mu.Unlock()
	return &n, nil
}

// UpdateNote applies the non-empty text fields of patch. Pinning goes through TogglePin.
func (b *Backend) UpdateNote(owner, id string, patch core.Note) (*core.Note, error) {
	if err := validateDate(patch.RelatedDate); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.notes[id]
	if !ok || r.owner != owner {
		return nil, core.ErrNotFound
	}

	n := &r.Note
	setIfNotEmpty(&n.Title, patch.Title)
	setIfNotEmpty(&n.Content, patch.Content)
	setIfNotEmpty(&n.RelatedDate, patch.RelatedDate)
	now := b.now().UTC()
	n.UpdatedAt = &now

	out := *n
	return &out, nil
}

// TogglePin flips the pinned flag of a note
func (b *Backend) TogglePin(owner, id string) (*core.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.notes[id]
	if !ok || r.owner != owner {
		return nil, core.ErrNotFound
	}
	r.IsPinned = !r.IsPinned
	now := b.now().UTC()
	r.UpdatedAt = &now

	out := r.Note
	return &out, nil
}

// DeleteNote removes a note
func (b *Backend) DeleteNote(owner, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.notes[id]
	if !ok || r.owner != owner {
		return core.ErrNotFound
	}
	delete(b.notes, id)
	return nil
}

// notePrefix marks a prompt line that should become a note
const notePrefix = "note:"

// Parse turns a prompt into a plan: one pending task per non-empty line, or
// a note for lines starting with "note:". Nothing is stored.
func (b *Backend) Parse(prompt string) (*core.Plan, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", core.ErrValidation)
	}

	today := b.now().UTC().Format(dateLayout)
	plan := &core.Plan{
		Type:       "plan",
		Warnings:   []string{},
		Activities: []core.Activity{},
		Notes:      []core.Note{},
	}
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) >= len(notePrefix) && strings.EqualFold(line[:len(notePrefix)], notePrefix) {
			content := strings.TrimSpace(line[len(notePrefix):])
			if content == "" {
				plan.Warnings = append(plan.Warnings, "skipped empty note")
				continue
			}
			plan.Notes = append(plan.Notes, core.Note{Title: content, Content: content, RelatedDate: today, Source: core.SourceAI})
			continue
		}
		plan.Activities = append(plan.Activities, core.Activity{
			Title:    line,
			Type:     core.TypeTask,
			Source:   core.SourceAI,
			Status:   core.StatusPending,
			Priority: core.PriorityMedium,
			Date:     today,
		})
	}

	if plan.Empty() {
		plan.Type = "empty"
		plan.Message = "Nothing to plan"
	} else {
		plan.Message = fmt.Sprintf("Planned %d task(s) and %d note(s)", len(plan.Activities), len(plan.Notes))
	}
	return plan, nil
}

func validateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", core.ErrValidation)
	}
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
