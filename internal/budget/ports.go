// Package budget declares the storage ports shared by the catalog, the
// allocation ledger and the report aggregator.
package budget

import (
	"context"
	"time"

	"presupuestos/internal/core"
)

type (
	// CatalogReader answers point lookups against the budget catalog.
	CatalogReader interface {
		// Find returns the line with the given natural key or core.ErrNotFound.
		Find(ctx context.Context, key core.LineKey) (core.BudgetLine, error)
		LineByID(ctx context.Context, id int64) (core.BudgetLine, error)
		// FamilyThrough returns the lines of family with month <= through,
		// ordered by month ascending.
		FamilyThrough(ctx context.Context, family core.Family, through core.Month) ([]core.BudgetLine, error)
		// Lines returns every line of a fiscal year.
		Lines(ctx context.Context, year int) ([]core.BudgetLine, error)
	}

	// CatalogWriter swaps the whole catalog atomically.
	CatalogWriter interface {
		// ReplaceAll deletes every line and inserts lines in one transaction.
		// Ledger records are kept.
		ReplaceAll(ctx context.Context, lines []core.BudgetLine, ev core.Event) (int, error)
	}

	// Tx is the unit of work used to post one expense. Every balance change
	// and every record appended through it commits or rolls back together.
	Tx interface {
		LineByID(ctx context.Context, id int64) (core.BudgetLine, error)
		// Family returns all twelve-or-fewer lines of a family ordered by month.
		Family(ctx context.Context, family core.Family) ([]core.BudgetLine, error)
		// ApplyDelta adds delta to the line's current amount. It fails with
		// core.ErrInsufficientFunds when the result leaves [0, initial].
		ApplyDelta(ctx context.Context, id int64, delta core.Money) (core.BudgetLine, error)
		MarkOverflow(ctx context.Context, id int64, amount core.Money, target core.Month) error
		AppendExpense(ctx context.Context, rec core.ExpenseRecord) error
		Enqueue(ctx context.Context, ev core.Event) error
	}

	Transactor interface {
		WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	}

	// ExpenseFilter narrows ledger reads. Zero values match everything.
	ExpenseFilter struct {
		Year     int
		Store    string
		Month    core.Month
		GroupRef string
		Limit    int
	}

	LedgerReader interface {
		// Expenses returns matching records, newest first.
		Expenses(ctx context.Context, f ExpenseFilter) ([]core.ExpenseRecord, error)
	}

	// SnapshotReader returns catalog and ledger as of one consistent read.
	SnapshotReader interface {
		Snapshot(ctx context.Context, year int) (core.Snapshot, error)
	}

	// OutboxEvent is an event waiting to be published.
	OutboxEvent struct {
		Seq      int64
		Event    core.Event
		Attempts int
	}

	// Outbox is the transactional queue events are published from.
	Outbox interface {
		// DequeueEvents claims up to limit pending events for publishing.
		DequeueEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
		MarkPublished(ctx context.Context, seq int64) error
		// MarkRetry returns the event to pending with the failure recorded.
		MarkRetry(ctx context.Context, seq int64, cause string) error
		// Release returns a claimed event to pending without counting an attempt.
		Release(ctx context.Context, seq int64) error
		MarkFailed(ctx context.Context, seq int64, cause string) error
		// ResetStale returns events stuck in processing for longer than age.
		ResetStale(ctx context.Context, age time.Duration) (int, error)
		Cleanup(ctx context.Context, before time.Time) (int, error)
		Stats(ctx context.Context) (OutboxStats, error)
	}

	OutboxStats struct {
		Pending    int
		Processing int
		Published  int
		Failed     int
	}

	// Store is the full persistence surface. Both the SQLite and the
	// in-memory backends implement it.
	Store interface {
		CatalogReader
		CatalogWriter
		Transactor
		LedgerReader
		SnapshotReader
		Outbox
		Ping(ctx context.Context) error
		Close() error
	}
)
