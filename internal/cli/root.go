package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"presupuestos/internal/core"
	"presupuestos/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "text" | "json" | "csv"
	User    string
	EnvFile string
	Backend string
	DBPath  string
	Policy  string
	Year    int

	// App is set by PersistentPreRunE, or beforehand by tests.
	App   *App
	owned bool
}

var ValidFormats = []string{"text", "json", "csv"}

// NewRootCommand creates the presupuestosctl root command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}

	cmd := &cobra.Command{
		Use:           "presupuestosctl",
		Short:         "Administer store budgets and the expense ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.App != nil {
				return nil
			}
			return opts.bootstrap(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.owned && opts.App != nil {
				err := opts.App.Close()
				opts.App, opts.owned = nil, false
				return err
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json|csv)")
	pf.StringVar(&opts.User, "user", "", "act as this user instead of the operator")
	pf.StringVar(&opts.EnvFile, "env-file", "", "environment file to load (default .env)")
	pf.StringVar(&opts.Backend, "backend", "", "override DATA_BACKEND (sqlite|memory)")
	pf.StringVar(&opts.DBPath, "db", "", "override SQLITE_DB_PATH")
	pf.StringVar(&opts.Policy, "policy", "", "override POLICY_FILE")
	pf.IntVar(&opts.Year, "year", 0, "fiscal year (default FISCAL_YEAR)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewPostCommand(opts))
	return cmd
}

func (opts *RootOptions) bootstrap(cmd *cobra.Command) error {
	if err := LoadEnvFile(opts.EnvFile); err != nil {
		return err
	}
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if opts.Backend != "" {
		cfg.DataBackend = opts.Backend
	}
	if opts.DBPath != "" {
		cfg.SQLiteDBPath = opts.DBPath
	}
	if opts.Policy != "" {
		cfg.PolicyFile = opts.Policy
	}

	lc := log.DefaultConfig()
	lc.Component = log.ComponentCLI
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Output = cmd.ErrOrStderr()
	logger := log.New(lc)

	app, err := Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	opts.App, opts.owned = app, true
	return nil
}

// year returns --year, falling back to the configured fiscal year.
func (opts *RootOptions) year() int {
	if opts.Year != 0 {
		return opts.Year
	}
	if opts.App != nil && opts.App.Config != nil && opts.App.Config.FiscalYear != 0 {
		return opts.App.Config.FiscalYear
	}
	return 0
}

// scopeFlags are shared by the read commands.
type scopeFlags struct {
	store string
	view  string
	month string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.store, "store", "", "store name or TODAS")
	cmd.Flags().StringVar(&f.view, "view", "mensual", "mensual or anual")
	cmd.Flags().StringVar(&f.month, "month", "", "month code, number or name (default current month)")
}

func (f *scopeFlags) scope(opts *RootOptions) (core.Scope, error) {
	var view core.View
	switch strings.ToLower(strings.TrimSpace(f.view)) {
	case "", "mensual", "monthly":
		view = core.Monthly
	case "anual", "annual":
		view = core.Annual
	default:
		return core.Scope{}, core.Failf(core.KindValidation, "unknown view %q", f.view)
	}
	var month core.Month
	if f.month != "" {
		m, err := core.ParseMonth(f.month)
		if err != nil {
			return core.Scope{}, core.Invalid(err)
		}
		month = m
	}
	s, err := opts.App.Scope(opts.User, f.store, opts.year(), view, month)
	if err != nil {
		return core.Scope{}, err
	}
	return s, nil
}
