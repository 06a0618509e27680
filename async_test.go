package typebus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/typebus/config"
	"github.com/coachpo/typebus/errs"
	"github.com/coachpo/typebus/resolver"
	"github.com/coachpo/typebus/typeid"
)

func newAsyncBus(t *testing.T, async config.AsyncConfig) *Bus {
	t.Helper()
	b := New(
		WithStrategy(resolver.NewMap(typeid.NewRegistry())),
		WithAsync(async),
	)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishAsyncDelivers(t *testing.T) {
	b := newAsyncBus(t, config.AsyncConfig{QueueSize: 16, Workers: config.Workers(2)})

	const messages = 10
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(messages)
	Subscribe(b, func(p ping) {
		mu.Lock()
		got = append(got, p.seq)
		mu.Unlock()
		wg.Done()
	})

	for i := 0; i < messages; i++ {
		require.NoError(t, PublishAsync(context.Background(), b, ping{seq: i}))
	}
	wg.Wait()

	require.Len(t, got, messages)
	require.Equal(t, uint64(messages), b.Stats().AsyncPublished)
}

func TestPublishAsyncWithoutDispatcherFails(t *testing.T) {
	b := newIsolatedBus(t)

	err := PublishAsync(context.Background(), b, ping{})
	require.Error(t, err)
	require.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
}

func TestPublishAsyncQueueSaturation(t *testing.T) {
	b := newAsyncBus(t, config.AsyncConfig{
		QueueSize:   1,
		Workers:     config.Workers(1),
		EnqueueWait: config.Duration(30 * time.Millisecond),
	})

	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	Subscribe(b, func(ping) {
		once.Do(func() { close(started) })
		<-gate
	})
	defer close(gate)

	// First message occupies the single worker.
	require.NoError(t, PublishAsync(context.Background(), b, ping{seq: 1}))
	<-started

	// Fill the run loop's in-flight slot and the queue, then expect the
	// next enqueue to time out against the saturated queue.
	require.NoError(t, PublishAsync(context.Background(), b, ping{seq: 2}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, PublishAsync(context.Background(), b, ping{seq: 3}))
	time.Sleep(20 * time.Millisecond)

	var saturated error
	for i := 0; i < 4; i++ {
		if saturated = PublishAsync(context.Background(), b, ping{seq: 100 + i}); saturated != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, saturated)
	require.Equal(t, errs.CodeUnavailable, errs.CodeOf(saturated))
	require.GreaterOrEqual(t, b.Stats().AsyncDropped, uint64(1))
}

func TestPublishAsyncRespectsCallerContext(t *testing.T) {
	b := newAsyncBus(t, config.AsyncConfig{
		QueueSize:   1,
		Workers:     config.Workers(1),
		EnqueueWait: config.Duration(time.Second),
	})

	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	Subscribe(b, func(ping) {
		once.Do(func() { close(started) })
		<-gate
	})
	defer close(gate)

	require.NoError(t, PublishAsync(context.Background(), b, ping{}))
	<-started
	require.NoError(t, PublishAsync(context.Background(), b, ping{}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, PublishAsync(context.Background(), b, ping{}))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	deadline := time.Now().Add(500 * time.Millisecond)
	var err error
	for time.Now().Before(deadline) {
		if err = PublishAsync(ctx, b, ping{}); err != nil {
			break
		}
	}
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPublishAsyncAfterCloseFails(t *testing.T) {
	b := New(
		WithStrategy(resolver.NewMap(typeid.NewRegistry())),
		WithAsync(config.AsyncConfig{QueueSize: 4}),
	)
	require.NoError(t, b.Close())

	err := PublishAsync(context.Background(), b, ping{})
	require.Error(t, err)
	require.Equal(t, errs.CodeClosed, errs.CodeOf(err))
}

func TestPublishAsyncRateLimitStillDelivers(t *testing.T) {
	b := newAsyncBus(t, config.AsyncConfig{
		QueueSize: 8,
		Workers:   config.Workers(2),
		RateLimit: 1000,
	})

	var wg sync.WaitGroup
	wg.Add(5)
	Subscribe(b, func(ping) { wg.Done() })

	for i := 0; i < 5; i++ {
		require.NoError(t, PublishAsync(context.Background(), b, ping{seq: i}))
	}
	wg.Wait()
}
