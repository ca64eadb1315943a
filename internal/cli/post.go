package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"presupuestos/internal/allocation"
	"presupuestos/internal/core"
	"presupuestos/internal/export"
	"presupuestos/internal/ledger"
	"presupuestos/internal/log"
	"presupuestos/internal/services"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	LineID      int64
	Amount      string
	Description string
	Date        string
	Receipt     string
	Confirm     bool
	NoOverflow  bool
	Preview     bool
}

type postOut struct {
	GroupRef string  `json:"group_ref,omitempty"`
	Records  int     `json:"records"`
	Receipt  string  `json:"receipt,omitempty"`
	Plan     planOut `json:"plan"`
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Record an expense against a budget line",
		Long: `Record an expense against a budget line, consuming the balances of
the line's months oldest first up to the expense month.

When the balances fall short and the line may carry forward, the rest is
taken from the following month. That needs --confirm. --preview shows the
plan without recording anything.

Examples:
  presupuestosctl post --line 12 --amount 150.50 --description "Tinta" --date 2025-02-03
  presupuestosctl post --line 12 --amount 900 --description "Resmas" --confirm --receipt factura.pdf`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.LineID, "line", 0, "budget line id (required)")
	_ = cmd.MarkFlagRequired("line")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount in lempiras (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what was bought (required)")
	_ = cmd.MarkFlagRequired("description")
	cmd.Flags().StringVar(&opts.Date, "date", "", "expense date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.Receipt, "receipt", "", "receipt file to attach")
	cmd.Flags().BoolVar(&opts.Confirm, "confirm", false, "accept carrying the shortfall into the next month")
	cmd.Flags().BoolVar(&opts.NoOverflow, "no-overflow", false, "never carry forward, fail instead")
	cmd.Flags().BoolVar(&opts.Preview, "preview", false, "show the allocation plan only")
	return cmd
}

func (opts *PostOptions) request(user string) (ledger.Request, error) {
	cents, err := core.ParseDecimalToCents(opts.Amount)
	if err != nil {
		return ledger.Request{}, core.Invalid(err)
	}
	now := time.Now()
	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if opts.Date != "" {
		d, err := core.ParseDate(opts.Date)
		if err != nil {
			return ledger.Request{}, core.Invalid(err)
		}
		date = d
	}
	return ledger.Request{
		LineID:          opts.LineID,
		Amount:          core.Money{Cents: cents},
		Description:     strings.TrimSpace(opts.Description),
		Date:            date,
		RequestedBy:     user,
		ConfirmOverflow: opts.Confirm,
		NoOverflow:      opts.NoOverflow,
	}, nil
}

func runPost(opts *PostOptions, cmd *cobra.Command) error {
	app := opts.App
	ctx := cmd.Context()

	scope, err := app.Scope(opts.User, "", opts.year(), core.Monthly, 0)
	if err != nil {
		return err
	}
	req, err := opts.request(scope.User)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.Preview {
		plan, err := app.Expenses.Preview(ctx, scope, req)
		if err != nil {
			return err
		}
		return printPlan(w, opts.Format, plan)
	}

	var receipt *services.Receipt
	if opts.Receipt != "" {
		f, err := os.Open(opts.Receipt)
		if err != nil {
			return fmt.Errorf("open receipt: %w", err)
		}
		defer f.Close()
		receipt = &services.Receipt{
			Filename:    filepath.Base(opts.Receipt),
			ContentType: mime.TypeByExtension(filepath.Ext(opts.Receipt)),
			Body:        f,
		}
	}

	res, err := app.Expenses.Post(ctx, scope, req, receipt)
	if errors.Is(err, core.ErrOverflowConfirmation) {
		if plan, perr := app.Expenses.Preview(ctx, scope, req); perr == nil {
			_ = printPlan(w, opts.Format, plan)
		}
		return fmt.Errorf("%w (rerun with --confirm to carry it forward)", err)
	}
	if err != nil {
		return err
	}

	app.Logger.InfoContext(ctx, "Expense posted",
		log.FieldGroupRef, res.GroupRef,
		log.FieldLine, req.LineID,
		log.FieldAmountCents, req.Amount.Cents,
		log.FieldUser, scope.User,
		"records", len(res.Records))

	out := postOut{GroupRef: res.GroupRef, Records: len(res.Records), Plan: planOf(res.Plan)}
	if len(res.Records) > 0 {
		out.Receipt = res.Records[0].Receipt
	}
	if opts.Format == "json" {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "Gasto %s registrado: %s en %s (%s)\n",
		res.GroupRef, export.Amount(req.Amount), res.Plan.Target.Name, res.Plan.Target.Store)
	return table(w, planRows(res.Plan))
}

func printPlan(w io.Writer, format string, plan allocation.Plan) error {
	if format == "json" {
		return writeJSON(w, planOf(plan))
	}
	fmt.Fprintf(w, "%s (%s) %s: solicitado %s, disponible acumulado %s, disponible anual %s\n",
		plan.Target.Name, plan.Target.Store, plan.Target.Month.Code(),
		export.Amount(plan.Requested), export.Amount(plan.CumulativeAvailable), export.Amount(plan.AnnualAvailable))
	return table(w, planRows(plan))
}
