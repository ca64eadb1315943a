package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "presupuestos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCatalog() []core.BudgetLine {
	return []core.BudgetLine{
		core.NewLine("Papelería", "SPS", 2025, core.Ene, core.Administration, core.Lempiras(1000)),
		core.NewLine("Papelería", "SPS", 2025, core.Feb, core.Administration, core.Lempiras(1000)),
		core.NewLine("Papelería", "SPS", 2025, core.Mar, core.Administration, core.Lempiras(1000)),
		core.NewLine("Planilla", "VA", 2025, core.Ene, core.Personnel, core.Lempiras(5000)),
	}
}

func withoutIDs(lines []core.BudgetLine) []core.BudgetLine {
	out := make([]core.BudgetLine, len(lines))
	for i, l := range lines {
		l.ID = 0
		out[i] = l
	}
	return out
}

func TestReplaceAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	first, err := s.Lines(ctx, 2025)
	require.NoError(t, err)

	_, err = s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	second, err := s.Lines(ctx, 2025)
	require.NoError(t, err)

	assert.Equal(t, withoutIDs(first), withoutIDs(second))
	assert.Greater(t, second[0].ID, first[len(first)-1].ID, "ids are never reused")
}

func TestReplaceAllKeepsPreviousCatalogOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)

	dup := core.NewLine("Internet", "SPS", 2025, core.Ene, core.Administration, core.Lempiras(10))
	_, err = s.ReplaceAll(ctx, []core.BudgetLine{dup, dup}, core.NewEvent(core.EventCatalogReplaced))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)

	lines, err := s.Lines(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, lines, 4)

	_, err = s.Find(ctx, core.LineKey{Family: core.Family{LineName: "Internet", Store: "SPS", Year: 2025}, Month: core.Ene})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReplaceAllRejectsInvalidLines(t *testing.T) {
	s := newTestStore(t)
	bad := core.NewLine("", "SPS", 2025, core.Ene, core.Sales, core.Lempiras(1))
	_, err := s.ReplaceAll(context.Background(), []core.BudgetLine{bad}, core.NewEvent(core.EventCatalogReplaced))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFindAndFamilyThrough(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)

	fam := core.Family{LineName: "Papelería", Store: "SPS", Year: 2025}
	line, err := s.Find(ctx, core.LineKey{Family: fam, Month: core.Feb})
	require.NoError(t, err)
	assert.Equal(t, core.Lempiras(1000), line.Current)

	through, err := s.FamilyThrough(ctx, fam, core.Feb)
	require.NoError(t, err)
	require.Len(t, through, 2)
	assert.Equal(t, core.Ene, through[0].Month)
	assert.Equal(t, core.Feb, through[1].Month)

	other, err := s.FamilyThrough(ctx, core.Family{LineName: "Papelería", Store: "SPS", Year: 2024}, core.Dic)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestApplyDeltaStaysWithinBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	lines, err := s.Lines(ctx, 2025)
	require.NoError(t, err)
	id := lines[0].ID

	apply := func(delta core.Money) (core.BudgetLine, error) {
		var out core.BudgetLine
		err := s.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
			var err error
			out, err = tx.ApplyDelta(ctx, id, delta)
			return err
		})
		return out, err
	}

	line, err := apply(core.Lempiras(-600))
	require.NoError(t, err)
	assert.Equal(t, core.Lempiras(400), line.Current)

	_, err = apply(core.Lempiras(-600))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	_, err = apply(core.Lempiras(700))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds, "current may not exceed initial")

	err = s.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
		_, err := tx.ApplyDelta(ctx, 9999, core.Lempiras(-1))
		return err
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := s.LineByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.Lempiras(400), got.Current)
}

func TestApplyDeltaConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	lines, err := s.Lines(ctx, 2025)
	require.NoError(t, err)
	id := lines[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
				_, err := tx.ApplyDelta(ctx, id, core.Lempiras(-600))
				return err
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, core.ErrInsufficientFunds)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	got, err := s.LineByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.Lempiras(400), got.Current)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	lines, err := s.Lines(ctx, 2025)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
		if _, err := tx.ApplyDelta(ctx, lines[0].ID, core.Lempiras(-100)); err != nil {
			return err
		}
		if err := tx.MarkOverflow(ctx, lines[0].ID, core.Lempiras(5), core.Feb); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.LineByID(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.Lempiras(1000), got.Current)
	assert.True(t, got.OverflowAmount.IsZero())
}

func TestExpensesSurviveReplace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)
	lines, err := s.Lines(ctx, 2025)
	require.NoError(t, err)
	line := lines[0]

	rec := core.ExpenseRecord{
		ID:          "rec-1",
		LineID:      line.ID,
		LineName:    line.Name,
		Store:       line.Store,
		Category:    line.Category,
		Year:        2025,
		Month:       line.Month,
		Amount:      core.Lempiras(150),
		Description: "Resmas de papel",
		Date:        core.NewDate(2025, 1, 15),
		Receipt:     "receipts/1.pdf",
		CreatedBy:   "ana@example.com",
		Trace:       []core.DistributionStep{{LineID: line.ID, Month: core.Ene, Amount: core.Lempiras(150)}},
		GroupRef:    "group-1",
		CreatedAt:   time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
		return tx.AppendExpense(ctx, rec)
	}))

	_, err = s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)

	got, err := s.Expenses(ctx, budget.ExpenseFilter{Year: 2025, Store: "SPS", GroupRef: "group-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])

	none, err := s.Expenses(ctx, budget.ExpenseFilter{Year: 2025, Store: "VA"})
	require.NoError(t, err)
	assert.Empty(t, none)

	snap, err := s.Snapshot(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 4)
	assert.Len(t, snap.Expenses, 1)
}

func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := core.NewEvent(core.EventCatalogReplaced)
	ev.Year = 2025
	ev.Lines = 4
	_, err := s.ReplaceAll(ctx, sampleCatalog(), ev)
	require.NoError(t, err)

	events, err := s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].Event.ID)
	assert.Equal(t, 4, events[0].Event.Lines)

	again, err := s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed events are not handed out twice")

	n, err := s.ResetStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err = s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NoError(t, s.MarkPublished(ctx, events[0].Seq))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, budget.OutboxStats{Published: 1}, st)

	removed, err := s.Cleanup(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestOutboxRelease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.ReplaceAll(ctx, sampleCatalog(), core.NewEvent(core.EventCatalogReplaced))
	require.NoError(t, err)

	events, err := s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NoError(t, s.Release(ctx, events[0].Seq))

	events, err = s.DequeueEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1, "released events are claimable again")
	assert.Zero(t, events[0].Attempts)

	require.NoError(t, s.MarkPublished(ctx, events[0].Seq))
	require.NoError(t, s.Release(ctx, events[0].Seq))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, budget.OutboxStats{Published: 1}, st, "release leaves published events alone")
}
