package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"presupuestos/internal/core"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the store answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if s.deps.Catalog == nil {
		checks["store"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Catalog.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
		"requests":  s.Requests(),
		"throttled": s.limiter.Rejected(),
	}).Write(w)
}

type sessionDTO struct {
	User       string   `json:"user"`
	IsAdmin    bool     `json:"is_admin"`
	Store      string   `json:"store"`
	Stores     []string `json:"stores"`
	FiscalYear int      `json:"fiscal_year"`
	View       string   `json:"view"`
	Month      string   `json:"month"`
}

// handleSession tells the client who it is and which stores it may pick.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stores := []string{scope.Store}
	if scope.IsAdmin {
		stores = append([]string{core.AllStores}, s.deps.Directory.Stores()...)
	}
	NewJSONResponse().Body(sessionDTO{
		User:       scope.User,
		IsAdmin:    scope.IsAdmin,
		Store:      scope.Store,
		Stores:     stores,
		FiscalYear: scope.Year,
		View:       string(scope.View),
		Month:      scope.Month.Code(),
	}).Write(w)
}

// handleLines lists the budget lines visible in scope. The month filter only
// applies when the query names a month.
func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines, err := s.deps.Catalog.Lines(r.Context(), scope.Year)
	if err != nil {
		writeError(w, r, err)
		return
	}

	byMonth := strings.TrimSpace(r.URL.Query().Get("month")) != ""
	out := make([]lineDTO, 0, len(lines))
	for _, l := range lines {
		if scope.Store != core.AllStores && !strings.EqualFold(l.Store, scope.Store) {
			continue
		}
		if byMonth && l.Month != scope.Month {
			continue
		}
		out = append(out, lineOf(l, s.deps.Overflow.Eligible(l)))
	}
	NewJSONResponse().Body(map[string]any{"lines": out}).Write(w)
}
