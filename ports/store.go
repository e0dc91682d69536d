package ports

import "context"

// Store is a durable key/value backend for client-side session state.
// Get returns core.ErrNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMulti writes all values in one operation so readers never observe a partial update
	SetMulti(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}
