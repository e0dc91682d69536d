package service

import (
	"context"
	"net/http"

	"github.com/layer-3/planclient/core"
)

// TaskService manages personal tasks. Tasks share the activities endpoint
// with type "task"; date and times are optional.
type TaskService struct {
	api Requester
}

// NewTaskService creates a new task service
func NewTaskService(api Requester) *TaskService {
	return &TaskService{api: api}
}

// List returns tasks matching filter
func (s *TaskService) List(ctx context.Context, filter core.ActivityFilter) ([]core.Activity, error) {
	filter.Type = core.TypeTask
	return listActivities(ctx, s.api, filter)
}

// Create creates a pending manual task; fields set in t win over the defaults
func (s *TaskService) Create(ctx context.Context, t core.Activity) (*core.Activity, error) {
	if t.Type == "" {
		t.Type = core.TypeTask
	}
	if t.Source == "" {
		t.Source = core.SourceManual
	}
	if t.Status == "" {
		t.Status = core.StatusPending
	}
	return createActivity(ctx, s.api, t)
}

// CreateBulk creates tasks concurrently as AI generated, keeping input order
func (s *TaskService) CreateBulk(ctx context.Context, tasks []core.Activity) ([]core.Activity, error) {
	return createBulk(ctx, tasks, func(ctx context.Context, t core.Activity) (*core.Activity, error) {
		if t.Source == "" {
			t.Source = core.SourceAI
		}
		return s.Create(ctx, t)
	})
}

// Update replaces the editable fields of a task
func (s *TaskService) Update(ctx context.Context, id string, t core.Activity) (*core.Activity, error) {
	return updateActivity(ctx, s.api, id, t)
}

// Delete removes a task
func (s *TaskService) Delete(ctx context.Context, id string) error {
	return s.api.Request(ctx, http.MethodDelete, activityPath(id), nil, nil)
}

// ToggleStatus flips a task between done and pending
func (s *TaskService) ToggleStatus(ctx context.Context, id string, current core.Status) (*core.Activity, error) {
	return updateStatus(ctx, s.api, id, current.Toggled())
}
