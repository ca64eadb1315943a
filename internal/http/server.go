// Package http exposes the budget engine as a JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"presupuestos/internal/core"
	"presupuestos/internal/identity"
	"presupuestos/internal/log"
	"presupuestos/internal/middleware/ratelimit"
	"presupuestos/internal/middleware/security"
	"presupuestos/internal/middleware/trace"
	"presupuestos/internal/services"
)

// Catalog is the part of the store the handlers read directly.
type Catalog interface {
	Lines(ctx context.Context, year int) ([]core.BudgetLine, error)
	Ping(ctx context.Context) error
}

// Reports answers report queries.
type Reports interface {
	Report(ctx context.Context, q core.ReportQuery) (core.Report, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Catalog    Catalog
	Directory  *identity.Directory
	Expenses   *services.ExpenseService
	Imports    *services.ImportService
	Reports    Reports
	Overflow   core.OverflowPolicy
	FiscalYear int
	Logger     *log.Logger
	// WritesPerMinute caps POST requests per user; 0 uses the limiter default.
	WritesPerMinute int
}

type Server struct {
	http.Server
	deps    Deps
	limiter *ratelimit.Limiter
	trace   *trace.Middleware
	started time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.FiscalYear == 0 {
		deps.FiscalYear = time.Now().Year()
	}

	s := &Server{
		deps:    deps,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.WritesPerMinute}),
		trace:   trace.NewMiddleware(),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/lines", s.handleLines)
	mux.HandleFunc("POST /api/expenses/preview", s.handlePreviewExpense)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /api/imports", s.handleImport)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/report/export", s.handleReportExport)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/receipts/{ref}", s.handleReceipt)

	var h http.Handler = mux
	h = s.limiter.Middleware(userKey, func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().Status(http.StatusTooManyRequests).
			Body(errorBody{Kind: core.KindValidation, Reason: "too many write requests, retry in a minute"}).
			Write(w)
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(deps.Logger, trace.FromRequest)(h)
	h = s.trace.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// userKey rate-limits by authenticated user, falling back to the peer address.
func userKey(r *http.Request) string {
	if u := strings.ToLower(strings.TrimSpace(r.Header.Get(UserHeader))); u != "" {
		return "user:" + u
	}
	return "addr:" + r.RemoteAddr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown stops the limiter and the HTTP server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Requests returns how many requests the server has seen.
func (s *Server) Requests() int64 { return s.trace.Requests() }

// scope resolves the caller's scope from the identity header and query.
func (s *Server) scope(r *http.Request) (core.Scope, error) {
	p, err := ParseScopeParams(r.URL.Query(), s.deps.FiscalYear)
	if err != nil {
		return core.Scope{}, err
	}
	return s.deps.Directory.Resolve(r.Header.Get(UserHeader), p.Store, p.Year, p.View, p.Month)
}
