package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
	"presupuestos/internal/sheets"
)

// Workbook is an in-memory spreadsheet: a budget tab to import from and one
// tab per written report.
type Workbook struct {
	mu      sync.Mutex
	rows    []sheets.Row
	reports map[string]core.Report
	writes  int
}

var (
	_ sheets.RowSource    = (*Workbook)(nil)
	_ sheets.ReportWriter = (*Workbook)(nil)
)

func New(rows []sheets.Row) *Workbook {
	return &Workbook{rows: cloneRows(rows), reports: map[string]core.Report{}}
}

// NewFromFiles seeds the budget tab from base/presupuesto.csv when present.
func NewFromFiles(base string) (*Workbook, error) {
	path := filepath.Join(base, "presupuesto.csv")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer f.Close()

	rows, err := sheets.NewCSVSource(f).ReadRows(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return New(rows), nil
}

// SetRows replaces the budget tab.
func (w *Workbook) SetRows(rows []sheets.Row) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = cloneRows(rows)
}

// ReadRows implements sheets.RowSource.
func (w *Workbook) ReadRows(_ context.Context) ([]sheets.Row, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneRows(w.rows), nil
}

// WriteReport implements sheets.ReportWriter.
func (w *Workbook) WriteReport(_ context.Context, rep core.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reports[export.Title(rep.Query)] = rep
	w.writes++
	return nil
}

// Report returns the last report written under title.
func (w *Workbook) Report(title string) (core.Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rep, ok := w.reports[title]
	return rep, ok
}

// Writes counts WriteReport calls.
func (w *Workbook) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func cloneRows(in []sheets.Row) []sheets.Row {
	if in == nil {
		return nil
	}
	out := make([]sheets.Row, len(in))
	for i, r := range in {
		c := make(sheets.Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
