package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/layer-3/planclient/core"
)

const parsePath = "/api/ai/parse"

// AIService turns free text into a plan and saves plans
type AIService struct {
	api        Requester
	activities *ActivityService
	notes      *NoteService
	log        *slog.Logger
}

// NewAIService creates a new AI planning service
func NewAIService(api Requester, log *slog.Logger) *AIService {
	if log == nil {
		log = slog.Default()
	}
	return &AIService{
		api:        api,
		activities: NewActivityService(api),
		notes:      NewNoteService(api),
		log:        log,
	}
}

// ParsePrompt asks the backend to structure prompt into activities and notes
func (s *AIService) ParsePrompt(ctx context.Context, prompt string) (*core.Plan, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is empty", core.ErrValidation)
	}

	var plan core.Plan
	if err := s.api.Request(ctx, http.MethodPost, parsePath, map[string]string{"prompt": prompt}, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ApplyPlan saves every item of plan one by one as AI generated and returns
// how many were saved. A failed item does not stop the others, except when
// the session is gone. Failures are returned joined.
func (s *AIService) ApplyPlan(ctx context.Context, plan core.Plan) (int, error) {
	var (
		saved int
		errs  []error
	)

	for _, a := range plan.Activities {
		if a.Source == "" {
			a.Source = core.SourceAI
		}
		if _, err := s.activities.Create(ctx, a); err != nil {
			s.log.Warn("plan.activity_save_failed", "title", a.Title, "err", err)
			errs = append(errs, fmt.Errorf("activity %q: %w", a.Title, err))
			if errors.Is(err, core.ErrUnauthenticated) {
				return saved, errors.Join(errs...)
			}
			continue
		}
		saved++
	}

	for _, n := range plan.Notes {
		if n.Source == "" {
			n.Source = core.SourceAI
		}
		if _, err := s.notes.Create(ctx, n); err != nil {
			s.log.Warn("plan.note_save_failed", "title", n.Title, "err", err)
			errs = append(errs, fmt.Errorf("note %q: %w", n.Title, err))
			if errors.Is(err, core.ErrUnauthenticated) {
				return saved, errors.Join(errs...)
			}
			continue
		}
		saved++
	}

	s.log.Info("plan.saved", "saved", saved, "failed", len(errs))
	return saved, errors.Join(errs...)
}
