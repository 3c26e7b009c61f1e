package vectorstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestRunShared_CallerCancelDoesNotFailFlight(t *testing.T) {
	var group singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	flightErr := make(chan error, 1)

	fn := func(ctx context.Context) error {
		close(started)
		<-release
		flightErr <- ctx.Err()
		return ctx.Err()
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- runShared(ctxA, &group, "docs", time.Minute, fn) }()

	<-started
	errB := make(chan error, 1)
	go func() {
		errB <- runShared(context.Background(), &group, "docs", time.Minute, func(ctx context.Context) error {
			return ctx.Err()
		})
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	require.NoError(t, <-flightErr, "shared round trip must not see the first caller's cancellation")
	assert.NoError(t, <-errB)
}

func TestRunShared_SharesOneRoundTrip(t *testing.T) {
	var group singleflight.Group
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- runShared(context.Background(), &group, "docs", time.Minute, fn) }()
	}

	// Let the callers queue up behind the first flight before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < callers; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunShared_FlightIsBounded(t *testing.T) {
	var group singleflight.Group

	err := runShared(context.Background(), &group, "docs", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
