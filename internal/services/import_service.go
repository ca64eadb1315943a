package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"presupuestos/internal/budget"
	"presupuestos/internal/core"
	"presupuestos/internal/importer"
	"presupuestos/internal/sheets"
)

type ImportOptions struct {
	Year int
	// AllowPartial replaces the catalog even when some rows were rejected.
	AllowPartial bool
}

type ImportReport struct {
	importer.Result
	Replaced int
}

// ImportService replaces the budget catalog from a workbook.
type ImportService struct {
	catalog budget.CatalogWriter
	reports Invalidator
}

func NewImportService(catalog budget.CatalogWriter, reports Invalidator) *ImportService {
	return &ImportService{catalog: catalog, reports: reports}
}

// maxListedIssues bounds the rejection list quoted in an error.
const maxListedIssues = 5

// Import reads src, normalizes it and swaps the catalog. It refuses to
// replace anything when rows were rejected, unless opts.AllowPartial, or
// when no line would remain.
func (s *ImportService) Import(ctx context.Context, src sheets.RowSource, opts ImportOptions) (ImportReport, error) {
	rows, err := src.ReadRows(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read budget rows: %w", err)
	}

	res, err := importer.Normalize(rows, opts.Year)
	if err != nil {
		return ImportReport{}, err
	}
	rep := ImportReport{Result: res}

	if len(res.Rejected) > 0 && !opts.AllowPartial {
		return rep, core.Failf(core.KindValidation, "%d rows rejected: %s", len(res.Rejected), summarize(res.Rejected))
	}
	if len(res.Lines) == 0 {
		return rep, core.Failf(core.KindValidation, "import produced no budget lines")
	}

	ev := core.NewEvent(core.EventCatalogReplaced)
	ev.Store = core.AllStores
	ev.Year = opts.Year
	ev.Lines = len(res.Lines)
	n, err := s.catalog.ReplaceAll(ctx, res.Lines, ev)
	if err != nil {
		return rep, fmt.Errorf("replace catalog: %w", err)
	}
	rep.Replaced = n

	if s.reports != nil {
		s.reports.Invalidate()
	}
	slog.InfoContext(ctx, "Budget catalog replaced",
		"fiscal_year", opts.Year,
		"rows", res.Rows,
		"lines", n,
		"skipped", len(res.Skipped),
		"rejected", len(res.Rejected))
	return rep, nil
}

func summarize(issues []importer.Issue) string {
	parts := make([]string, 0, maxListedIssues+1)
	for i, is := range issues {
		if i == maxListedIssues {
			parts = append(parts, fmt.Sprintf("and %d more", len(issues)-i))
			break
		}
		parts = append(parts, is.String())
	}
	return strings.Join(parts, "; ")
}
