package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/layer-3/planclient/core"
)

// RefreshFunc performs the actual token refresh and returns the new access token
type RefreshFunc func(ctx context.Context) (string, error)

type refreshResult struct {
	token string
	err   error
}

// CoordinatorStats counts what a RefreshCoordinator did since it was created
type CoordinatorStats struct {
	Refreshes uint64 // refresh calls started
	Waits     uint64 // callers that waited on someone else's refresh
	Reused    uint64 // callers that found a newer token and skipped refreshing
}

// RefreshCoordinator guarantees at most one token refresh in flight.
// Callers that hit an expired token while a refresh runs are queued and
// released in FIFO order once it settles, all with the same outcome.
type RefreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	pending    []chan refreshResult

	refreshes atomic.Uint64
	waits     atomic.Uint64
	reused    atomic.Uint64
}

// NewRefreshCoordinator creates an idle coordinator
func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{}
}

// Refresh returns an access token to retry with.
//
// stale is the token the failed request was sent with and current reads the
// token stored right now. If a refresh is running the caller waits for it. If
// the stored token already differs from stale, a refresh finished after the
// request was sent and the stored token is returned as is. Otherwise the
// caller runs fn while every later caller queues behind it.
func (rc *RefreshCoordinator) Refresh(ctx context.Context, stale string, current func() string, fn RefreshFunc) (string, error) {
	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan refreshResult, 1)
		rc.pending = append(rc.pending, ch)
		rc.mu.Unlock()
		rc.waits.Add(1)

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			// The buffered channel still receives the result; nobody reads it
			return "", ctx.Err()
		}
	}

	if tok := current(); tok != "" && tok != stale {
		rc.mu.Unlock()
		rc.reused.Add(1)
		return tok, nil
	}

	rc.refreshing = true
	rc.mu.Unlock()
	rc.refreshes.Add(1)

	token, err := "", error(core.ErrRefreshFailed)
	defer func() { rc.settle(token, err) }()

	token, err = fn(ctx)
	return token, err
}

// settle clears the in-flight flag and then releases the queue it snapshotted
func (rc *RefreshCoordinator) settle(token string, err error) {
	rc.mu.Lock()
	rc.refreshing = false
	waiters := rc.pending
	rc.pending = nil
	rc.mu.Unlock()

	res := refreshResult{token: token, err: err}
	for _, ch := range waiters {
		ch <- res
	}
}

// InFlight reports whether a refresh is running
func (rc *RefreshCoordinator) InFlight() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.refreshing
}

// Pending returns the number of queued callers
func (rc *RefreshCoordinator) Pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.pending)
}

// Stats returns a snapshot of the coordinator counters
func (rc *RefreshCoordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		Refreshes: rc.refreshes.Load(),
		Waits:     rc.waits.Load(),
		Reused:    rc.reused.Load(),
	}
}
