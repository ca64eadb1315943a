// Package export lays a report out as spreadsheet rows and writes it as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"presupuestos/internal/core"
	"presupuestos/internal/sheets"
)

// Header is the column layout shared by every export sink.
var Header = []string{"Línea", "Tienda/Sede", "Presupuesto", "Gasto Real", "Saldo Disponible"}

// Amount renders m as a plain two-decimal number.
func Amount(m core.Money) string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

// Title names the report, e.g. "Reporte SPS anual 2025" or "Reporte TODAS Mar 2025".
func Title(q core.ReportQuery) string {
	period := "anual"
	if q.View == core.Monthly {
		period = q.Month.Code()
	}
	return fmt.Sprintf("Reporte %s %s %d", q.Store, period, q.Year)
}

// Rows lays rep out as a ranking table, a totals row and a category rollup.
func Rows(rep core.Report) [][]string {
	rows := [][]string{Header}
	for _, r := range rep.Ranking {
		store := r.Store
		if store == "" {
			store = rep.Query.Store
		}
		rows = append(rows, []string{r.Name, store, Amount(r.Initial), Amount(r.Spent()), Amount(r.Current)})
	}
	rows = append(rows, []string{"TOTAL", rep.Query.Store,
		Amount(rep.Totals.Initial), Amount(rep.Totals.Spent), Amount(rep.Totals.Current)})

	rows = append(rows, []string{}, []string{"Categoría", "", "Presupuesto", "Gasto Real", "Saldo Disponible"})
	for _, c := range rep.Categories {
		rows = append(rows, []string{string(c.Category), "", Amount(c.Initial), Amount(c.Spent), Amount(c.Current)})
	}
	rows = append(rows, []string{"% Consumido", "", decimal.NewFromFloat(rep.Totals.PercentConsumed).StringFixed(2), "", ""})
	return rows
}

// WriteCSV writes Rows(rep) to w.
func WriteCSV(w io.Writer, rep core.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(rep)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// FileWriter stores each report as a CSV file in Dir.
type FileWriter struct {
	Dir string
}

var _ sheets.ReportWriter = FileWriter{}

// Path returns the file a report for q is written to.
func (f FileWriter) Path(q core.ReportQuery) string {
	name := strings.ReplaceAll(strings.ToLower(Title(q)), " ", "_") + ".csv"
	return filepath.Join(f.Dir, name)
}

// WriteReport implements sheets.ReportWriter. The file is replaced atomically.
func (f FileWriter) WriteReport(_ context.Context, rep core.Report) error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, ".report-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, rep); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path(rep.Query)); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
