// Package cli wires configuration, storage and services for the binaries
// and implements the presupuestosctl commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"presupuestos/internal/backend"
	"presupuestos/internal/cache"
	"presupuestos/internal/config"
	"presupuestos/internal/core"
	"presupuestos/internal/identity"
	"presupuestos/internal/ledger"
	"presupuestos/internal/log"
	"presupuestos/internal/report"
	"presupuestos/internal/services"
)

// OperatorUser is recorded as creator when the CLI acts without --user.
const OperatorUser = "operator"

// LoadEnvFile loads an explicit env file, or .env when path is empty.
// A missing default file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is the assembled engine shared by the API server, the worker and the
// admin CLI.
type App struct {
	Config    *config.Config
	Policy    config.Policy
	Logger    *log.Logger
	Backend   *backend.BackendResult
	Directory *identity.Directory
	Ledger    *ledger.Ledger
	Reports   *report.Aggregator
	Expenses  *services.ExpenseService
	Imports   *services.ImportService
	Caches    *cache.Manager
}

// NewApp builds the services over an already opened backend.
func NewApp(cfg *config.Config, policy config.Policy, res *backend.BackendResult, logger *log.Logger) *App {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	reports := report.New(res.Store, report.DefaultCacheSize, cfg.ReportCacheTTL)
	l := ledger.New(res.Store, policy.OverflowRules())

	caches := cache.NewManager()
	if c, ok := reports.Cache().(cache.Cleaner); ok {
		caches.Register(c)
	}

	return &App{
		Config:    cfg,
		Policy:    policy,
		Logger:    logger,
		Backend:   res,
		Directory: identity.NewDirectory(policy),
		Ledger:    l,
		Reports:   reports,
		Expenses:  services.NewExpenseService(l, res.Receipts, reports),
		Imports:   services.NewImportService(res.Store, reports),
		Caches:    caches,
	}
}

// Bootstrap loads the policy, opens the configured backend and builds the
// services.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Budget engine ready",
		"backend", bcfg.Type,
		log.FieldYear, cfg.FiscalYear,
		"stores", len(policy.Stores),
		"policy_file", cfg.PolicyFile)
	return NewApp(cfg, policy, res, logger), nil
}

// Close stops the cache sweep and releases the backend.
func (a *App) Close() error {
	a.Caches.Stop()
	if a.Backend != nil && a.Backend.Cleanup != nil {
		return a.Backend.Cleanup()
	}
	return nil
}

// Scope resolves the scope a command acts under. Without a user the
// operator gets administrator access to store, or to every store.
func (a *App) Scope(user, store string, year int, view core.View, month core.Month) (core.Scope, error) {
	if strings.TrimSpace(user) != "" {
		return a.Directory.Resolve(user, store, year, view, month)
	}
	if view == "" {
		view = core.Monthly
	}
	s := core.Scope{User: OperatorUser, IsAdmin: true, Store: core.AllStores, Year: year, View: view, Month: month}
	store = strings.TrimSpace(store)
	if store == "" || strings.EqualFold(store, core.AllStores) {
		return s, nil
	}
	for _, known := range a.Directory.Stores() {
		if strings.EqualFold(known, store) {
			s.Store = known
			return s, nil
		}
	}
	return core.Scope{}, core.Failf(core.KindValidation, "unknown store %q", store)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown runs every step under one deadline and joins their errors.
func Shutdown(logger *log.Logger, timeout time.Duration, steps ...func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, step := range steps {
		if err := step(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Err() != nil {
		logger.Warn("Shutdown timeout reached")
	}
	return errors.Join(errs...)
}
