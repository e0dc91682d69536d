package ports

import "context"

// EventPublisher notifies the surrounding application about session changes
type EventPublisher interface {
	// PublishUnauthenticated signals that the session is gone and the user must log in again
	PublishUnauthenticated(ctx context.Context, reason string) error
	PublishLogout(ctx context.Context, userID string) error
}
