package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/planclient/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, time.Millisecond)
}

func TestCoordinatorSingleFlight(t *testing.T) {
	rc := NewRefreshCoordinator()
	const n = 16

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fresh", nil
	}
	current := func() string { return "stale" }

	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = rc.Refresh(context.Background(), "stale", current, fn)
		}(i)
	}

	waitFor(t, func() bool { return rc.InFlight() && rc.Pending() == n-1 })
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", tokens[i])
	}
	assert.False(t, rc.InFlight())
	assert.Zero(t, rc.Pending())

	stats := rc.Stats()
	assert.Equal(t, uint64(1), stats.Refreshes)
	assert.Equal(t, uint64(n-1), stats.Waits)
}

func TestCoordinatorSharesFailure(t *testing.T) {
	rc := NewRefreshCoordinator()
	boom := errors.New("refresh endpoint down")

	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		<-release
		return "", boom
	}
	current := func() string { return "stale" }

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rc.Refresh(context.Background(), "stale", current, fn)
		}(i)
	}

	waitFor(t, func() bool { return rc.Pending() == 2 })
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestCoordinatorReusesNewerToken(t *testing.T) {
	rc := NewRefreshCoordinator()

	token, err := rc.Refresh(context.Background(), "old", func() string { return "new" }, func(context.Context) (string, error) {
		t.Fatal("refresh must not run when a newer token is stored")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", token)
	assert.Equal(t, uint64(1), rc.Stats().Reused)
}

func TestCoordinatorWaiterCancellation(t *testing.T) {
	rc := NewRefreshCoordinator()
	release := make(chan struct{})
	current := func() string { return "" }

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = rc.Refresh(context.Background(), "", current, func(context.Context) (string, error) {
			<-release
			return "t", nil
		})
	}()
	waitFor(t, rc.InFlight)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := rc.Refresh(ctx, "", current, nil)
		errCh <- err
	}()
	waitFor(t, func() bool { return rc.Pending() == 1 })
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done
	assert.False(t, rc.InFlight())
	assert.Zero(t, rc.Pending())
}

func TestCoordinatorReleasesWaitersOnPanic(t *testing.T) {
	rc := NewRefreshCoordinator()
	current := func() string { return "" }

	go func() {
		defer func() { _ = recover() }()
		_, _ = rc.Refresh(context.Background(), "", current, func(context.Context) (string, error) {
			for rc.Pending() != 1 {
				time.Sleep(time.Millisecond)
			}
			panic("refresh exploded")
		})
	}()
	waitFor(t, rc.InFlight)

	_, err := rc.Refresh(context.Background(), "", current, nil)
	assert.ErrorIs(t, err, core.ErrRefreshFailed)
	assert.False(t, rc.InFlight())
}
