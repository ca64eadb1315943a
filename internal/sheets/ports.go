package sheets

import (
	"context"

	"presupuestos/internal/core"
)

// Row is one raw tabular row keyed by its header cell.
type Row map[string]string

// Ports for outbound adapters.
type (
	// RowSource produces the raw rows of a budget workbook.
	RowSource interface {
		ReadRows(ctx context.Context) ([]Row, error)
	}

	// ReportWriter serializes a report to an external spreadsheet.
	ReportWriter interface {
		WriteReport(ctx context.Context, rep core.Report) error
	}
)
