package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements budget.Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ budget.Store = (*SQLiteStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DSN builds the connection string used for dbPath: WAL journal, a busy
// timeout and immediate transactions so writers queue instead of failing.
func DSN(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + dbPath + "?" + q.Encode()
}

// NewSQLiteStore opens (creating if needed) and migrates the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	if err := RunMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: every write transaction is serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.InfoContext(ctx, "SQLite store ready", "db_path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const lineColumns = `id, name, store, fiscal_year, month, category,
	initial_cents, current_cents, overflow_cents, overflow_target_month`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(r rowScanner) (core.BudgetLine, error) {
	var (
		l        core.BudgetLine
		month    int64
		target   int64
		category string
	)
	err := r.Scan(&l.ID, &l.Name, &l.Store, &l.Year, &month, &category,
		&l.Initial.Cents, &l.Current.Cents, &l.OverflowAmount.Cents, &target)
	if err != nil {
		return core.BudgetLine{}, err
	}
	l.Month = core.Month(month)
	l.OverflowTarget = core.Month(target)
	l.Category = core.Category(category)
	return l, nil
}

func queryLines(ctx context.Context, q queryer, query string, args ...any) ([]core.BudgetLine, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []core.BudgetLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func lineByID(ctx context.Context, q queryer, id int64) (core.BudgetLine, error) {
	l, err := scanLine(q.QueryRowContext(ctx,
		`SELECT `+lineColumns+` FROM budget_lines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetLine{}, core.Failf(core.KindNotFound, "budget line %d does not exist", id)
	}
	if err != nil {
		return core.BudgetLine{}, core.Persistence("get budget line", err)
	}
	return l, nil
}

// Find implements budget.CatalogReader.
func (s *SQLiteStore) Find(ctx context.Context, key core.LineKey) (core.BudgetLine, error) {
	l, err := scanLine(s.db.QueryRowContext(ctx,
		`SELECT `+lineColumns+` FROM budget_lines
		 WHERE name = ? AND store = ? AND fiscal_year = ? AND month = ?`,
		key.LineName, key.Store, key.Year, int(key.Month)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetLine{}, core.Failf(core.KindNotFound, "no %s line %q for %s in %d",
			key.Month, key.LineName, key.Store, key.Year)
	}
	if err != nil {
		return core.BudgetLine{}, core.Persistence("find budget line", err)
	}
	return l, nil
}

// LineByID implements budget.CatalogReader.
func (s *SQLiteStore) LineByID(ctx context.Context, id int64) (core.BudgetLine, error) {
	return lineByID(ctx, s.db, id)
}

// FamilyThrough implements budget.CatalogReader.
func (s *SQLiteStore) FamilyThrough(ctx context.Context, f core.Family, through core.Month) ([]core.BudgetLine, error) {
	lines, err := queryLines(ctx, s.db,
		`SELECT `+lineColumns+` FROM budget_lines
		 WHERE name = ? AND store = ? AND fiscal_year = ? AND month <= ?
		 ORDER BY month`,
		f.LineName, f.Store, f.Year, int(through))
	if err != nil {
		return nil, core.Persistence("list family", err)
	}
	return lines, nil
}

// Lines implements budget.CatalogReader.
func (s *SQLiteStore) Lines(ctx context.Context, year int) ([]core.BudgetLine, error) {
	lines, err := queryLines(ctx, s.db,
		`SELECT `+lineColumns+` FROM budget_lines WHERE fiscal_year = ? ORDER BY store, name, month`, year)
	if err != nil {
		return nil, core.Persistence("list budget lines", err)
	}
	return lines, nil
}

// ReplaceAll implements budget.CatalogWriter. The delete, the inserts and the
// event are one transaction; on any failure the previous catalog stays.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, lines []core.BudgetLine, ev core.Event) (int, error) {
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return 0, core.Failf(core.KindValidation, "line %d (%s/%s/%s): %v", i, l.Name, l.Store, l.Month, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.Persistence("begin replace", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM budget_lines`)
	if err != nil {
		return 0, core.Persistence("delete budget lines", err)
	}
	removed, _ := res.RowsAffected()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO budget_lines
		(name, store, fiscal_year, month, category, initial_cents, current_cents, overflow_cents, overflow_target_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, core.Persistence("prepare insert", err)
	}
	defer stmt.Close()

	for _, l := range lines {
		if _, err := stmt.ExecContext(ctx, l.Name, l.Store, l.Year, int(l.Month), string(l.Category),
			l.Initial.Cents, l.Current.Cents, l.OverflowAmount.Cents, int(l.OverflowTarget)); err != nil {
			return 0, core.Persistence(fmt.Sprintf("insert %s/%s/%s", l.Name, l.Store, l.Month), err)
		}
	}

	if err := enqueue(ctx, tx, ev); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, core.Persistence("commit replace", err)
	}

	slog.InfoContext(ctx, "Budget catalog replaced", "removed", removed, "inserted", len(lines))
	return len(lines), nil
}

// WithTx implements budget.Transactor.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx budget.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Persistence("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.Persistence("commit transaction", err)
	}
	return nil
}

// sqliteTx implements budget.Tx. It must only touch tx: the pool holds a
// single connection, which the open transaction already owns.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LineByID(ctx context.Context, id int64) (core.BudgetLine, error) {
	return lineByID(ctx, t.tx, id)
}

func (t *sqliteTx) Family(ctx context.Context, f core.Family) ([]core.BudgetLine, error) {
	lines, err := queryLines(ctx, t.tx,
		`SELECT `+lineColumns+` FROM budget_lines
		 WHERE name = ? AND store = ? AND fiscal_year = ? ORDER BY month`,
		f.LineName, f.Store, f.Year)
	if err != nil {
		return nil, core.Persistence("list family", err)
	}
	return lines, nil
}

func (t *sqliteTx) ApplyDelta(ctx context.Context, id int64, delta core.Money) (core.BudgetLine, error) {
	return applyDelta(ctx, t.tx, id, delta)
}

// applyDelta is a single conditional update; the balance never leaves
// [0, initial] regardless of concurrent callers.
func applyDelta(ctx context.Context, q queryer, id int64, delta core.Money) (core.BudgetLine, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE budget_lines SET current_cents = current_cents + ?1
		 WHERE id = ?2 AND current_cents + ?1 BETWEEN 0 AND initial_cents`,
		delta.Cents, id)
	if err != nil {
		return core.BudgetLine{}, core.Persistence("apply delta", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.BudgetLine{}, core.Persistence("apply delta", err)
	}
	line, err := lineByID(ctx, q, id)
	if err != nil {
		return core.BudgetLine{}, err
	}
	if n == 0 {
		return core.BudgetLine{}, core.Failf(core.KindInsufficientFunds,
			"%s %s/%s has %s, cannot apply %s", line.Month, line.Name, line.Store, line.Current, delta)
	}
	return line, nil
}

func (t *sqliteTx) MarkOverflow(ctx context.Context, id int64, amount core.Money, target core.Month) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE budget_lines SET overflow_cents = ?, overflow_target_month = ? WHERE id = ?`,
		amount.Cents, int(target), id)
	if err != nil {
		return core.Persistence("mark overflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Failf(core.KindNotFound, "budget line %d does not exist", id)
	}
	return nil
}

func (t *sqliteTx) AppendExpense(ctx context.Context, rec core.ExpenseRecord) error {
	trace, err := encodeTrace(rec.Trace)
	if err != nil {
		return core.Persistence("encode distribution", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO expense_records
		(id, line_id, line_name, store, category, fiscal_year, month, amount_cents, description,
		 expense_date, receipt_ref, created_by, is_overflow, overflow_cents, overflow_target_month,
		 distribution, group_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LineID, rec.LineName, rec.Store, string(rec.Category), rec.Year, int(rec.Month),
		rec.Amount.Cents, rec.Description, rec.Date.String(), rec.Receipt, rec.CreatedBy,
		rec.IsOverflow, rec.OverflowAmount.Cents, int(rec.OverflowTarget),
		trace, rec.GroupRef, createdAt.UnixMilli())
	if err != nil {
		return core.Persistence("append expense", err)
	}
	return nil
}

func (t *sqliteTx) Enqueue(ctx context.Context, ev core.Event) error {
	return enqueue(ctx, t.tx, ev)
}
