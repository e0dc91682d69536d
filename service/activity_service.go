package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/layer-3/planclient/client"
	"github.com/layer-3/planclient/core"
	"golang.org/x/sync/errgroup"
)

const activitiesPath = "/api/activities"

// bulkConcurrency caps parallel creates in CreateBulk
const bulkConcurrency = 8

func activityPath(id string, suffix ...string) string {
	p := activitiesPath + "/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// ActivityService manages scheduled activities (type "schedule")
type ActivityService struct {
	api Requester
}

// NewActivityService creates a new activity service
func NewActivityService(api Requester) *ActivityService {
	return &ActivityService{api: api}
}

// List returns scheduled activities matching filter
func (s *ActivityService) List(ctx context.Context, filter core.ActivityFilter) ([]core.Activity, error) {
	filter.Type = core.TypeSchedule
	return listActivities(ctx, s.api, filter)
}

// Get fetches one activity
func (s *ActivityService) Get(ctx context.Context, id string) (*core.Activity, error) {
	var out core.Activity
	if err := s.api.Request(ctx, http.MethodGet, activityPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create creates a manual schedule entry unless a already names its source or type
func (s *ActivityService) Create(ctx context.Context, a core.Activity) (*core.Activity, error) {
	if a.Source == "" {
		a.Source = core.SourceManual
	}
	if a.Type == "" {
		a.Type = core.TypeSchedule
	}
	return createActivity(ctx, s.api, a)
}

// CreateBulk creates activities concurrently, marking them as AI generated
// unless they name a source. Results keep the input order.
func (s *ActivityService) CreateBulk(ctx context.Context, activities []core.Activity) ([]core.Activity, error) {
	return createBulk(ctx, activities, func(ctx context.Context, a core.Activity) (*core.Activity, error) {
		if a.Source == "" {
			a.Source = core.SourceAI
		}
		return s.Create(ctx, a)
	})
}

// Update replaces the fields set in a
func (s *ActivityService) Update(ctx context.Context, id string, a core.Activity) (*core.Activity, error) {
	return updateActivity(ctx, s.api, id, a)
}

// Delete removes an activity
func (s *ActivityService) Delete(ctx context.Context, id string) error {
	return s.api.Request(ctx, http.MethodDelete, activityPath(id), nil, nil)
}

// UpdateStatus sets the completion status
func (s *ActivityService) UpdateStatus(ctx context.Context, id string, status core.Status) (*core.Activity, error) {
	return updateStatus(ctx, s.api, id, status)
}

func listActivities(ctx context.Context, api Requester, filter core.ActivityFilter) ([]core.Activity, error) {
	var out []core.Activity
	if err := api.Request(ctx, http.MethodGet, activitiesPath, nil, &out, client.WithQuery(filter.Query())); err != nil {
		return nil, err
	}
	return out, nil
}

func createActivity(ctx context.Context, api Requester, a core.Activity) (*core.Activity, error) {
	var out core.Activity
	if err := api.Request(ctx, http.MethodPost, activitiesPath, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func updateActivity(ctx context.Context, api Requester, id string, a core.Activity) (*core.Activity, error) {
	var out core.Activity
	if err := api.Request(ctx, http.MethodPut, activityPath(id), a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func updateStatus(ctx context.Context, api Requester, id string, status core.Status) (*core.Activity, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrValidation, status)
	}
	var out core.Activity
	body := map[string]core.Status{"status": status}
	if err := api.Request(ctx, http.MethodPatch, activityPath(id, "status"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// createBulk runs create for every item with bounded concurrency.
// The first failure cancels the remaining creates.
func createBulk[T any](ctx context.Context, items []T, create func(context.Context, T) (*T, error)) ([]T, error) {
	results := make([]T, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for i, item := range items {
		g.Go(func() error {
			created, err := create(ctx, item)
			if err != nil {
				return err
			}
			results[i] = *created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
