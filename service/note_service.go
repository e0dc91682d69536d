package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/layer-3/planclient/client"
	"github.com/layer-3/planclient/core"
)

const notesPath = "/api/notes"

func notePath(id string) string {
	return notesPath + "/" + url.PathEscape(id)
}

// NoteService manages notes
type NoteService struct {
	api Requester
}

// NewNoteService creates a new note service
func NewNoteService(api Requester) *NoteService {
	return &NoteService{api: api}
}

// List returns notes matching filter
func (s *NoteService) List(ctx context.Context, filter core.NoteFilter) ([]core.Note, error) {
	var opts []client.RequestOption
	if q := filter.Query(); len(q) > 0 {
		opts = append(opts, client.WithQuery(q))
	}

	var out []core.Note
	if err := s.api.Request(ctx, http.MethodGet, notesPath, nil, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one note
func (s *NoteService) Get(ctx context.Context, id string) (*core.Note, error) {
	var out core.Note
	if err := s.api.Request(ctx, http.MethodGet, notePath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create saves a new note
func (s *NoteService) Create(ctx context.Context, n core.Note) (*core.Note, error) {
	var out core.Note
	if err := s.api.Request(ctx, http.MethodPost, notesPath, n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBulk creates notes concurrently, keeping input order
func (s *NoteService) CreateBulk(ctx context.Context, notes []core.Note) ([]core.Note, error) {
	return createBulk(ctx, notes, s.Create)
}

// Update replaces the text fields of a note; the pin is left as is
func (s *NoteService) Update(ctx context.Context, id string, n core.Note) (*core.Note, error) {
	var out core.Note
	if err := s.api.Request(ctx, http.MethodPut, notePath(id), n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a note
func (s *NoteService) Delete(ctx context.Context, id string) error {
	return s.api.Request(ctx, http.MethodDelete, notePath(id), nil, nil)
}

// TogglePin flips the pinned flag on the server
func (s *NoteService) TogglePin(ctx context.Context, id string) (*core.Note, error) {
	var out core.Note
	if err := s.api.Request(ctx, http.MethodPatch, notePath(id)+"/pin", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
