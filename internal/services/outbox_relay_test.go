package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presupuestos/internal/core"
	"presupuestos/internal/storage/memory"
)

type fakePublisher struct {
	mu        sync.Mutex
	fail      bool
	published []core.Event
}

func (p *fakePublisher) PublishEvent(_ context.Context, ev core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("connection refused")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestDefaultOutboxRelayConfig(t *testing.T) {
	cfg := DefaultOutboxRelayConfig()
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestOutboxRelayPublishes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLine(t, s, 100)
	pub := &fakePublisher{}
	relay := NewOutboxRelay(s, pub, DefaultOutboxRelayConfig())

	assert.Equal(t, 1, relay.ProcessBatch(ctx))
	assert.Equal(t, 0, relay.ProcessBatch(ctx))
	assert.Equal(t, core.EventCatalogReplaced, pub.published[0].Type)

	stats, err := relay.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, 0, stats.Pending)
}

func TestOutboxRelayRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedLine(t, s, 100)
	pub := &fakePublisher{fail: true}
	cfg := DefaultOutboxRelayConfig()
	cfg.MaxRetries = 2
	relay := NewOutboxRelay(s, pub, cfg)

	relay.ProcessBatch(ctx)
	stats, err := relay.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	relay.ProcessBatch(ctx)
	stats, err = relay.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Failed)
}

func TestOutboxRelayLifecycle(t *testing.T) {
	s := memory.New()
	seedLine(t, s, 100)
	pub := &fakePublisher{}
	cfg := DefaultOutboxRelayConfig()
	cfg.PollInterval = 10 * time.Millisecond
	relay := NewOutboxRelay(s, pub, cfg)

	ctx := context.Background()
	require.NoError(t, relay.Start(ctx))
	assert.True(t, relay.IsRunning())
	assert.Error(t, relay.Start(ctx))

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, relay.Stop(stopCtx))
	assert.False(t, relay.IsRunning())
	require.NoError(t, relay.Stop(stopCtx))
}

func TestOutboxRelayReleasesClaimsOnShutdown(t *testing.T) {
	s := memory.New()
	seedLine(t, s, 100)
	pub := &fakePublisher{}
	relay := NewOutboxRelay(s, pub, DefaultOutboxRelayConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, relay.ProcessBatch(ctx))
	assert.Zero(t, pub.count())

	stats, err := relay.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending, "claims go back to pending even with a cancelled context")
	assert.Zero(t, stats.Processing)

	events, err := s.DequeueEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Attempts, "a shutdown hand-back is not a failed attempt")
}

func TestOutboxRelayResetsStaleClaimsWhileRunning(t *testing.T) {
	s := memory.New()
	pub := &fakePublisher{}
	cfg := DefaultOutboxRelayConfig()
	cfg.PollInterval = time.Hour
	cfg.CleanupInterval = 5 * time.Millisecond
	cfg.StaleAfter = 0
	relay := NewOutboxRelay(s, pub, cfg)

	ctx := context.Background()
	require.NoError(t, relay.Start(ctx))
	t.Cleanup(func() { _ = relay.Stop(ctx) })

	// Claimed after start, as if by a relay that died mid-batch.
	seedLine(t, s, 100)
	events, err := s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Eventually(t, func() bool {
		st, err := s.Stats(ctx)
		return err == nil && st.Pending == 1 && st.Processing == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOutboxRelayConcurrentStop(t *testing.T) {
	s := memory.New()
	pub := &fakePublisher{}
	cfg := DefaultOutboxRelayConfig()
	cfg.PollInterval = 5 * time.Millisecond
	relay := NewOutboxRelay(s, pub, cfg)

	ctx := context.Background()
	require.NoError(t, relay.Start(ctx))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			assert.NotPanics(t, func() { _ = relay.Stop(stopCtx) })
		}()
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return !relay.IsRunning() }, time.Second, 5*time.Millisecond)
}
