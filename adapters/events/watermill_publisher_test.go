package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishUnauthenticated(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, UnauthenticatedTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	require.NoError(t, pub.PublishUnauthenticated(ctx, "refresh failed"))

	select {
	case msg := <-messages:
		msg.Ack()
		var ev UnauthenticatedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "refresh failed", ev.Reason)
		assert.False(t, ev.OccurredAt.IsZero())
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestPublishLogout(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, LogoutTopic)
	require.NoError(t, err)

	require.NoError(t, NewWatermillPublisher(pubSub).PublishLogout(ctx, "user-1"))

	select {
	case msg := <-messages:
		msg.Ack()
		var ev LogoutEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "user-1", ev.UserID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestSubscribeUnauthenticated(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan UnauthenticatedEvent, 1)
	err := SubscribeUnauthenticated(ctx, pubSub, slog.New(slog.NewTextHandler(io.Discard, nil)), func(ev UnauthenticatedEvent) {
		received <- ev
	})
	require.NoError(t, err)

	// A malformed message must not stop the subscription
	require.NoError(t, pubSub.Publish(UnauthenticatedTopic, message.NewMessage(watermill.NewUUID(), []byte("{"))))
	require.NoError(t, NewWatermillPublisher(pubSub).PublishUnauthenticated(ctx, "no refresh token"))

	select {
	case ev := <-received:
		assert.Equal(t, "no refresh token", ev.Reason)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestNopPublisher(t *testing.T) {
	var p NopPublisher
	assert.NoError(t, p.PublishUnauthenticated(context.Background(), "x"))
	assert.NoError(t, p.PublishLogout(context.Background(), "u"))
}
