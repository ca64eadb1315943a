package cli

import (
	"encoding/csv"
	"fmt"

	"github.com/spf13/cobra"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	scopeFlags
	Limit int
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List posted expenses, newest first",
		Long: `List the expense history of a store or of every store.

The monthly view lists each record of the month. The annual view merges
the records of one posting, so a carried-forward expense shows once.

Examples:
  presupuestosctl ledger --store SPS --month Feb
  presupuestosctl ledger --view anual --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, cmd)
		},
	}

	opts.register(cmd)
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max entries, 0 for all")
	return cmd
}

func runLedger(opts *LedgerOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return core.Failf(core.KindValidation, "limit must not be negative")
	}
	scope, err := opts.scope(opts.RootOptions)
	if err != nil {
		return err
	}
	q := scope.Query(false, opts.Limit)
	rep, err := opts.App.Reports.Report(cmd.Context(), q)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch opts.Format {
	case "json":
		return writeJSON(w, entriesOf(rep.Ledger))
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(entryRows(rep.Ledger)); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	}
	if len(rep.Ledger) == 0 {
		fmt.Fprintf(w, "%s: sin gastos registrados\n", export.Title(q))
		return nil
	}
	return table(w, entryRows(rep.Ledger))
}
