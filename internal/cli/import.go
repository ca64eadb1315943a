package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"presupuestos/internal/core"
	"presupuestos/internal/importer"
	"presupuestos/internal/services"
	"presupuestos/internal/sheets"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Sheets       bool
	AllowPartial bool
}

type issueOut struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type importOut struct {
	Year     int        `json:"fiscal_year"`
	Rows     int        `json:"rows"`
	Lines    int        `json:"lines"`
	Replaced int        `json:"replaced"`
	Skipped  []issueOut `json:"skipped"`
	Rejected []issueOut `json:"rejected"`
	Error    string     `json:"error,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Replace the budget catalog from a workbook",
		Long: `Replace the whole budget catalog with the lines of a workbook.

The workbook is read from a CSV export, or with --sheets from the
configured Google spreadsheet. Nothing is replaced when a row is
rejected unless --allow-partial is given.

Examples:
  presupuestosctl import presupuesto_2025.csv --year 2025
  presupuestosctl import --sheets --allow-partial`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Sheets, "sheets", false, "read the configured spreadsheet instead of a file")
	cmd.Flags().BoolVar(&opts.AllowPartial, "allow-partial", false, "import the valid rows even when some were rejected")
	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command, args []string) error {
	app := opts.App
	var src sheets.RowSource
	switch {
	case opts.Sheets && len(args) > 0:
		return core.Failf(core.KindValidation, "give either a file or --sheets, not both")
	case opts.Sheets:
		if app.Backend.Rows == nil {
			return core.Failf(core.KindValidation, "no spreadsheet configured: set GOOGLE_SPREADSHEET_ID")
		}
		src = app.Backend.Rows
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		src = sheets.NewCSVSource(f)
	default:
		return core.Failf(core.KindValidation, "a workbook file or --sheets is required")
	}

	year := opts.year()
	rep, err := app.Imports.Import(cmd.Context(), src, services.ImportOptions{Year: year, AllowPartial: opts.AllowPartial})
	if err != nil && rep.Rows == 0 {
		return err
	}

	out := importOut{
		Year:     year,
		Rows:     rep.Rows,
		Lines:    len(rep.Lines),
		Replaced: rep.Replaced,
		Skipped:  issuesOf(rep.Skipped),
		Rejected: issuesOf(rep.Rejected),
	}
	if err != nil {
		out.Error = err.Error()
	}
	if werr := printImport(cmd.OutOrStdout(), opts.Format, out); werr != nil {
		return werr
	}
	return err
}

func issuesOf(in []importer.Issue) []issueOut {
	out := make([]issueOut, 0, len(in))
	for _, is := range in {
		out = append(out, issueOut{Row: is.Row, Reason: is.Reason})
	}
	return out
}

func printImport(w io.Writer, format string, out importOut) error {
	if format == "json" {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "Año fiscal %d: %d filas, %d líneas, %d reemplazadas\n", out.Year, out.Rows, out.Lines, out.Replaced)
	for _, is := range out.Skipped {
		fmt.Fprintf(w, "  omitida fila %d: %s\n", is.Row, is.Reason)
	}
	for _, is := range out.Rejected {
		fmt.Fprintf(w, "  rechazada fila %d: %s\n", is.Row, is.Reason)
	}
	return nil
}
