package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	scopeFlags
	Consolidate bool
	Limit       int
	Publish     bool
}

type rankingOut struct {
	Name    string `json:"name"`
	Store   string `json:"store,omitempty"`
	Initial string `json:"initial"`
	Spent   string `json:"spent"`
	Current string `json:"current"`
}

type categoryOut struct {
	Category string `json:"category"`
	Initial  string `json:"initial"`
	Spent    string `json:"spent"`
	Current  string `json:"current"`
}

type reportOut struct {
	Title           string        `json:"title"`
	Store           string        `json:"store"`
	Year            int           `json:"fiscal_year"`
	View            string        `json:"view"`
	Month           string        `json:"month,omitempty"`
	Initial         string        `json:"initial"`
	Spent           string        `json:"spent"`
	Current         string        `json:"current"`
	PercentConsumed string        `json:"percent_consumed"`
	Ranking         []rankingOut  `json:"ranking"`
	Categories      []categoryOut `json:"categories"`
	Ledger          []entryOut    `json:"ledger"`
}

func reportOf(rep core.Report) reportOut {
	q := rep.Query
	out := reportOut{
		Title:           export.Title(q),
		Store:           q.Store,
		Year:            q.Year,
		View:            string(q.View),
		Initial:         export.Amount(rep.Totals.Initial),
		Spent:           export.Amount(rep.Totals.Spent),
		Current:         export.Amount(rep.Totals.Current),
		PercentConsumed: decimal.NewFromFloat(rep.Totals.PercentConsumed).StringFixed(2),
		Ranking:         make([]rankingOut, 0, len(rep.Ranking)),
		Categories:      make([]categoryOut, 0, len(rep.Categories)),
		Ledger:          entriesOf(rep.Ledger),
	}
	if q.View == core.Monthly {
		out.Month = q.Month.Code()
	}
	for _, r := range rep.Ranking {
		out.Ranking = append(out.Ranking, rankingOut{
			Name:    r.Name,
			Store:   r.Store,
			Initial: export.Amount(r.Initial),
			Spent:   export.Amount(r.Spent()),
			Current: export.Amount(r.Current),
		})
	}
	for _, c := range rep.Categories {
		out.Categories = append(out.Categories, categoryOut{
			Category: string(c.Category),
			Initial:  export.Amount(c.Initial),
			Spent:    export.Amount(c.Spent),
			Current:  export.Amount(c.Current),
		})
	}
	return out
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the budget ranking, totals and category rollup",
		Long: `Show the report for one store, or for every store with --store TODAS.

--consolidate groups the ranking by line name across stores and only
applies to TODAS. --publish also writes the report to the configured
export sink.

Examples:
  presupuestosctl report --store SPS --month Mar
  presupuestosctl report --view anual --consolidate --format csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.Consolidate, "consolidate", false, "group the ranking by line name across stores")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "max ledger entries, 0 for all")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "write the report to the export sink")
	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return core.Failf(core.KindValidation, "limit must not be negative")
	}
	scope, err := opts.scope(opts.RootOptions)
	if err != nil {
		return err
	}
	consolidate := opts.Consolidate && scope.Store == core.AllStores
	q := scope.Query(consolidate, opts.Limit)

	ctx := cmd.Context()
	rep, err := opts.App.Reports.Report(ctx, q)
	if err != nil {
		return err
	}

	if opts.Publish {
		if opts.App.Backend.Reports == nil {
			return core.Failf(core.KindValidation, "no export sink configured")
		}
		if err := opts.App.Backend.Reports.WriteReport(ctx, rep); err != nil {
			return fmt.Errorf("publish report: %w", err)
		}
		opts.App.Logger.InfoContext(ctx, "Report published", "title", export.Title(q))
	}

	w := cmd.OutOrStdout()
	switch opts.Format {
	case "json":
		return writeJSON(w, reportOf(rep))
	case "csv":
		return export.WriteCSV(w, rep)
	}
	fmt.Fprintln(w, export.Title(q))
	fmt.Fprintln(w)
	return table(w, export.Rows(rep))
}
