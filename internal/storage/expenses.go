package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

const expenseColumns = `id, line_id, line_name, store, category, fiscal_year, month, amount_cents,
	description, expense_date, receipt_ref, created_by, is_overflow, overflow_cents,
	overflow_target_month, distribution, group_ref, created_at`

type traceStep struct {
	LineID int64 `json:"line_id"`
	Month  int   `json:"month"`
	Cents  int64 `json:"cents"`
}

func encodeTrace(steps []core.DistributionStep) (string, error) {
	out := make([]traceStep, len(steps))
	for i, s := range steps {
		out[i] = traceStep{LineID: s.LineID, Month: int(s.Month), Cents: s.Amount.Cents}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTrace(raw string) ([]core.DistributionStep, error) {
	var in []traceStep
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, nil
	}
	steps := make([]core.DistributionStep, len(in))
	for i, s := range in {
		steps[i] = core.DistributionStep{LineID: s.LineID, Month: core.Month(s.Month), Amount: core.Money{Cents: s.Cents}}
	}
	return steps, nil
}

func scanExpense(r rowScanner) (core.ExpenseRecord, error) {
	var (
		rec       core.ExpenseRecord
		category  string
		month     int64
		target    int64
		date      string
		trace     string
		createdAt int64
	)
	err := r.Scan(&rec.ID, &rec.LineID, &rec.LineName, &rec.Store, &category, &rec.Year, &month,
		&rec.Amount.Cents, &rec.Description, &date, &rec.Receipt, &rec.CreatedBy, &rec.IsOverflow,
		&rec.OverflowAmount.Cents, &target, &trace, &rec.GroupRef, &createdAt)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	rec.Category = core.Category(category)
	rec.Month = core.Month(month)
	rec.OverflowTarget = core.Month(target)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	if rec.Date, err = core.ParseDate(date); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("parse expense date %q: %w", date, err)
	}
	if rec.Trace, err = decodeTrace(trace); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("decode distribution: %w", err)
	}
	return rec, nil
}

func queryExpenses(ctx context.Context, q queryer, f budget.ExpenseFilter) ([]core.ExpenseRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Year != 0 {
		where = append(where, "fiscal_year = ?")
		args = append(args, f.Year)
	}
	if f.Store != "" && f.Store != core.AllStores {
		where = append(where, "store = ?")
		args = append(args, f.Store)
	}
	if f.Month.Valid() {
		where = append(where, "month = ?")
		args = append(args, int(f.Month))
	}
	if f.GroupRef != "" {
		where = append(where, "group_ref = ?")
		args = append(args, f.GroupRef)
	}

	query := `SELECT ` + expenseColumns + ` FROM expense_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ExpenseRecord
	for rows.Next() {
		rec, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Expenses implements budget.LedgerReader.
func (s *SQLiteStore) Expenses(ctx context.Context, f budget.ExpenseFilter) ([]core.ExpenseRecord, error) {
	out, err := queryExpenses(ctx, s.db, f)
	if err != nil {
		return nil, core.Persistence("list expenses", err)
	}
	return out, nil
}

// Snapshot implements budget.SnapshotReader.
func (s *SQLiteStore) Snapshot(ctx context.Context, year int) (core.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, core.Persistence("begin snapshot", err)
	}
	defer tx.Rollback()

	lines, err := queryLines(ctx, tx,
		`SELECT `+lineColumns+` FROM budget_lines WHERE fiscal_year = ? ORDER BY store, name, month`, year)
	if err != nil {
		return core.Snapshot{}, core.Persistence("snapshot lines", err)
	}
	expenses, err := queryExpenses(ctx, tx, budget.ExpenseFilter{Year: year})
	if err != nil {
		return core.Snapshot{}, core.Persistence("snapshot expenses", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Snapshot{}, core.Persistence("end snapshot", err)
	}
	return core.Snapshot{Lines: lines, Expenses: expenses}, nil
}
