package core

import (
	"net/url"
	"strconv"
	"time"
)

// ActivityType distinguishes scheduled activities from free-form tasks
type ActivityType string

const (
	TypeSchedule ActivityType = "schedule"
	TypeTask     ActivityType = "task"
)

// Status is the completion state of an activity or task
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is a status the backend accepts
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDone, StatusSkipped:
		return true
	}
	return false
}

// Toggled flips done to pending and anything else to done
func (s Status) Toggled() Status {
	if s == StatusDone {
		return StatusPending
	}
	return StatusDone
}

// Priority of an activity
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Source records who created an item
type Source string

const (
	SourceManual Source = "manual"
	SourceAI     Source = "ai"
)

// Activity is a schedule entry or a task. Date, StartTime and EndTime are optional for tasks.
type Activity struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title"`
	Type        ActivityType `json:"type,omitempty"`
	Source      Source       `json:"source,omitempty"`
	Status      Status       `json:"status,omitempty"`
	Priority    Priority     `json:"priority,omitempty"`
	Date        string       `json:"date,omitempty"`      // YYYY-MM-DD
	StartTime   string       `json:"startTime,omitempty"` // HH:MM
	EndTime     string       `json:"endTime,omitempty"`   // HH:MM
	Description string       `json:"description,omitempty"`
	LinkURL     string       `json:"linkUrl,omitempty"`
	CreatedAt   *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time   `json:"updatedAt,omitempty"`
}

// ActivityFilter narrows an activity listing
type ActivityFilter struct {
	Type     ActivityType
	Date     string
	Status   Status
	Priority Priority
}

// Query encodes the filter as URL query parameters
func (f ActivityFilter) Query() url.Values {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	return q
}

// Note is a free-text note, optionally pinned or tied to a date
type Note struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	IsPinned    bool       `json:"isPinned"`
	RelatedDate string     `json:"relatedDate,omitempty"`
	Source      Source     `json:"source,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// NoteFilter narrows a note listing
type NoteFilter struct {
	IsPinned    *bool
	RelatedDate string
}

// Query encodes the filter as URL query parameters
func (f NoteFilter) Query() url.Values {
	q := url.Values{}
	if f.IsPinned != nil {
		q.Set("isPinned", strconv.FormatBool(*f.IsPinned))
	}
	if f.RelatedDate != "" {
		q.Set("relatedDate", f.RelatedDate)
	}
	return q
}

// Plan is the structured result of parsing a natural language prompt
type Plan struct {
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	Warnings   []string   `json:"warnings"`
	Activities []Activity `json:"activities"`
	Notes      []Note     `json:"notes"`
}

// Empty reports whether the plan has nothing to save
func (p Plan) Empty() bool {
	return len(p.Activities) == 0 && len(p.Notes) == 0
}
