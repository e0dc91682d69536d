package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/planclient/ports"
)

const (
	// UnauthenticatedTopic carries the "log in again" signal
	UnauthenticatedTopic = "planclient.unauthenticated"
	// LogoutTopic carries explicit logouts
	LogoutTopic = "planclient.logout"
)

// UnauthenticatedEvent is published when the session is cleared because it cannot be recovered
type UnauthenticatedEvent struct {
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LogoutEvent is published on explicit logout
type LogoutEvent struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishUnauthenticated publishes an unauthenticated event
func (p *WatermillPublisher) PublishUnauthenticated(ctx context.Context, reason string) error {
	return p.publish(ctx, UnauthenticatedTopic, UnauthenticatedEvent{
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID string) error {
	return p.publish(ctx, LogoutTopic, LogoutEvent{
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishUnauthenticated does nothing
func (NopPublisher) PublishUnauthenticated(context.Context, string) error { return nil }

// PublishLogout does nothing
func (NopPublisher) PublishLogout(context.Context, string) error { return nil }
