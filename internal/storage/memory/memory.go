// Package memory is an in-process budget.Store used by tests and by the
// memory data backend. Transactions run under one mutex against a
// copy-on-write clone that replaces the live state on commit.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

type state struct {
	lines    map[int64]core.BudgetLine
	expenses []core.ExpenseRecord
	outbox   []outboxItem
}

type outboxItem struct {
	budget.OutboxEvent
	status      string
	lastError   string
	updatedAt   time.Time
	processedAt time.Time
}

func (st *state) clone() *state {
	return &state{
		lines:    maps.Clone(st.lines),
		expenses: slices.Clone(st.expenses),
		outbox:   slices.Clone(st.outbox),
	}
}

type Store struct {
	mu      sync.RWMutex
	st      *state
	nextID  int64
	nextSeq int64
}

var _ budget.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{lines: map[int64]core.BudgetLine{}}}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func sortLines(lines []core.BudgetLine) {
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.Store != b.Store {
			return a.Store < b.Store
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Month < b.Month
	})
}

func (st *state) family(f core.Family, through core.Month) []core.BudgetLine {
	var out []core.BudgetLine
	for _, l := range st.lines {
		if l.Family() == f && l.Month <= through {
			out = append(out, l)
		}
	}
	sortLines(out)
	return out
}

func (st *state) line(id int64) (core.BudgetLine, error) {
	l, ok := st.lines[id]
	if !ok {
		return core.BudgetLine{}, core.Failf(core.KindNotFound, "budget line %d does not exist", id)
	}
	return l, nil
}

func (s *Store) Find(_ context.Context, key core.LineKey) (core.BudgetLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.st.lines {
		if l.Key() == key {
			return l, nil
		}
	}
	return core.BudgetLine{}, core.Failf(core.KindNotFound, "no %s line %q for %s in %d",
		key.Month, key.LineName, key.Store, key.Year)
}

func (s *Store) LineByID(_ context.Context, id int64) (core.BudgetLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.line(id)
}

func (s *Store) FamilyThrough(_ context.Context, f core.Family, through core.Month) ([]core.BudgetLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.family(f, through), nil
}

func (s *Store) Lines(_ context.Context, year int) ([]core.BudgetLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.linesOf(year), nil
}

func (st *state) linesOf(year int) []core.BudgetLine {
	var out []core.BudgetLine
	for _, l := range st.lines {
		if l.Year == year {
			out = append(out, l)
		}
	}
	sortLines(out)
	return out
}

func (s *Store) ReplaceAll(_ context.Context, lines []core.BudgetLine, ev core.Event) (int, error) {
	next := map[int64]core.BudgetLine{}
	seen := map[core.LineKey]bool{}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return 0, core.Failf(core.KindValidation, "line %d (%s/%s/%s): %v", i, l.Name, l.Store, l.Month, err)
		}
		if seen[l.Key()] {
			return 0, core.Persistence("insert budget line",
				fmt.Errorf("duplicate line %s/%s/%d/%s", l.Name, l.Store, l.Year, l.Month))
		}
		seen[l.Key()] = true
		id++
		l.ID = id
		next[id] = l
	}
	st := s.st.clone()
	st.lines = next
	s.enqueue(st, ev)
	s.st = st
	s.nextID = id
	return len(lines), nil
}

func (s *Store) enqueue(st *state, ev core.Event) {
	s.nextSeq++
	st.outbox = append(st.outbox, outboxItem{
		OutboxEvent: budget.OutboxEvent{Seq: s.nextSeq, Event: ev},
		status:      "pending",
		updatedAt:   time.Now(),
	})
}

// WithTx runs fn against a private clone; the clone becomes the live state
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx budget.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	tx := &memTx{store: s, st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		s.nextSeq = seq
		return err
	}
	s.st = tx.st
	return nil
}

type memTx struct {
	store *Store
	st    *state
}

func (t *memTx) LineByID(_ context.Context, id int64) (core.BudgetLine, error) {
	return t.st.line(id)
}

func (t *memTx) Family(_ context.Context, f core.Family) ([]core.BudgetLine, error) {
	return t.st.family(f, core.Dic), nil
}

func (t *memTx) ApplyDelta(_ context.Context, id int64, delta core.Money) (core.BudgetLine, error) {
	l, err := t.st.line(id)
	if err != nil {
		return core.BudgetLine{}, err
	}
	next := l.Current.Add(delta)
	if next.Cents < 0 || l.Initial.Less(next) {
		return core.BudgetLine{}, core.Failf(core.KindInsufficientFunds,
			"%s %s/%s has %s, cannot apply %s", l.Month, l.Name, l.Store, l.Current, delta)
	}
	l.Current = next
	t.st.lines[id] = l
	return l, nil
}

func (t *memTx) MarkOverflow(_ context.Context, id int64, amount core.Money, target core.Month) error {
	l, err := t.st.line(id)
	if err != nil {
		return err
	}
	l.OverflowAmount = amount
	l.OverflowTarget = target
	t.st.lines[id] = l
	return nil
}

func (t *memTx) AppendExpense(_ context.Context, rec core.ExpenseRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Trace = slices.Clone(rec.Trace)
	t.st.expenses = append(t.st.expenses, rec)
	return nil
}

func (t *memTx) Enqueue(_ context.Context, ev core.Event) error {
	t.store.enqueue(t.st, ev)
	return nil
}

func (s *Store) Expenses(_ context.Context, f budget.ExpenseFilter) ([]core.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.filterExpenses(f), nil
}

func (st *state) filterExpenses(f budget.ExpenseFilter) []core.ExpenseRecord {
	var out []core.ExpenseRecord
	// newest first
	for i := len(st.expenses) - 1; i >= 0; i-- {
		e := st.expenses[i]
		if f.Year != 0 && e.Year != f.Year {
			continue
		}
		if f.Store != "" && f.Store != core.AllStores && e.Store != f.Store {
			continue
		}
		if f.Month.Valid() && e.Month != f.Month {
			continue
		}
		if f.GroupRef != "" && e.GroupRef != f.GroupRef {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Store) Snapshot(_ context.Context, year int) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Snapshot{
		Lines:    s.st.linesOf(year),
		Expenses: s.st.filterExpenses(budget.ExpenseFilter{Year: year}),
	}, nil
}
