package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

// Publisher sends a budget event to the message bus.
type Publisher interface {
	PublishEvent(ctx context.Context, ev core.Event) error
}

// OutboxRelayConfig holds configuration for the outbox relay
type OutboxRelayConfig struct {
	// PollInterval is how often to check for pending events (default: 5s)
	PollInterval time.Duration

	// BatchSize is the max number of events to publish per poll (default: 20)
	BatchSize int

	// MaxRetries is the number of attempts before an event is marked failed (default: 5)
	MaxRetries int

	// StaleAfter returns events claimed by a crashed relay to pending (default: 5m)
	StaleAfter time.Duration

	// CleanupInterval is how often published events are purged (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old published events must be before purging (default: 24h)
	CleanupAge time.Duration
}

const releaseTimeout = 5 * time.Second

func DefaultOutboxRelayConfig() OutboxRelayConfig {
	return OutboxRelayConfig{
		PollInterval:    5 * time.Second,
		BatchSize:       20,
		MaxRetries:      5,
		StaleAfter:      5 * time.Minute,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// OutboxRelay publishes events written to the outbox by catalog replaces and
// postings.
type OutboxRelay struct {
	outbox    budget.Outbox
	publisher Publisher
	config    OutboxRelayConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewOutboxRelay(outbox budget.Outbox, publisher Publisher, config OutboxRelayConfig) *OutboxRelay {
	return &OutboxRelay{outbox: outbox, publisher: publisher, config: config}
}

// Start begins the relay loop. Returns an error if already running.
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay is already running")
	}
	r.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.stopCh, r.doneCh = stopCh, doneCh
	r.mu.Unlock()

	r.resetStale(ctx)

	go r.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Outbox relay started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (r *OutboxRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running || r.stopCh == nil {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh = nil
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Outbox relay stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox relay stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *OutboxRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *OutboxRelay) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	r.processBatch(ctx, stopCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.processBatch(ctx, stopCh)
		case <-cleanupTicker.C:
			r.resetStale(ctx)
			r.cleanup(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were published.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) int {
	return r.processBatch(ctx, nil)
}

func (r *OutboxRelay) processBatch(ctx context.Context, stopCh <-chan struct{}) int {
	items, err := r.outbox.DequeueEvents(ctx, r.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue outbox events", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Publishing outbox batch", "count", len(items))

	published := 0
	for i, item := range items {
		if stopping(ctx, stopCh) {
			r.release(ctx, items[i:])
			return published
		}
		if err := r.publisher.PublishEvent(ctx, item.Event); err != nil {
			r.handleFailure(ctx, item, err)
			continue
		}
		if err := r.outbox.MarkPublished(ctx, item.Seq); err != nil {
			slog.ErrorContext(ctx, "Failed to mark event published", "seq", item.Seq, "error", err)
			continue
		}
		published++
	}
	return published
}

func stopping(ctx context.Context, stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// release hands unpublished claims back for the next run. ctx is usually
// cancelled by then, so the writes run detached under a short deadline.
func (r *OutboxRelay) release(ctx context.Context, items []budget.OutboxEvent) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	for _, item := range items {
		if err := r.outbox.Release(rctx, item.Seq); err != nil {
			slog.ErrorContext(rctx, "Failed to release outbox event", "seq", item.Seq, "error", err)
		}
	}
	slog.InfoContext(rctx, "Released unpublished outbox events", "count", len(items))
}

func (r *OutboxRelay) resetStale(ctx context.Context) {
	n, err := r.outbox.ResetStale(ctx, r.config.StaleAfter)
	if err != nil {
		slog.WarnContext(ctx, "Failed to reset stale outbox events", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale outbox events", "count", n)
	}
}

func (r *OutboxRelay) handleFailure(ctx context.Context, item budget.OutboxEvent, cause error) {
	slog.WarnContext(ctx, "Event publishing failed",
		"seq", item.Seq,
		"event_type", item.Event.Type,
		"attempt", item.Attempts+1,
		"error", cause)

	if item.Attempts+1 >= r.config.MaxRetries {
		if err := r.outbox.MarkFailed(ctx, item.Seq, cause.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark event failed", "seq", item.Seq, "error", err)
		}
		slog.ErrorContext(ctx, "Event failed permanently after max retries",
			"seq", item.Seq,
			"event_id", item.Event.ID,
			"attempts", item.Attempts+1)
		return
	}
	if err := r.outbox.MarkRetry(ctx, item.Seq, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to schedule event retry", "seq", item.Seq, "error", err)
	}
}

func (r *OutboxRelay) cleanup(ctx context.Context) {
	n, err := r.outbox.Cleanup(ctx, time.Now().Add(-r.config.CleanupAge))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to clean up published events", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up published events", "count", n)
	}
}

func (r *OutboxRelay) Stats(ctx context.Context) (budget.OutboxStats, error) {
	return r.outbox.Stats(ctx)
}
