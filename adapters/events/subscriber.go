package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// SubscribeUnauthenticated calls handle for every unauthenticated event until ctx is done.
// Undecodable messages are logged and acked so they are not redelivered.
func SubscribeUnauthenticated(ctx context.Context, sub message.Subscriber, log *slog.Logger, handle func(UnauthenticatedEvent)) error {
	messages, err := sub.Subscribe(ctx, UnauthenticatedTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", UnauthenticatedTopic, err)
	}

	go func() {
		for msg := range messages {
			var ev UnauthenticatedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn("events.malformed", "topic", UnauthenticatedTopic, "message_id", msg.UUID, "err", err)
				msg.Ack()
				continue
			}
			handle(ev)
			msg.Ack()
		}
	}()
	return nil
}
