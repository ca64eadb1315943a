package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
)

// reportQuery resolves scope and report options from the request.
func (s *Server) reportQuery(r *http.Request) (core.ReportQuery, error) {
	scope, err := s.scope(r)
	if err != nil {
		return core.ReportQuery{}, err
	}
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		return core.ReportQuery{}, err
	}
	consolidate := scope.Store == core.AllStores && parseBool(r.URL.Query().Get("consolidate"))
	return scope.Query(consolidate, limit), nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q, err := s.reportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.deps.Reports.Report(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(reportOf(rep)).Write(w)
}

// handleReportExport streams the report as a CSV download.
func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	q, err := s.reportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.deps.Reports.Report(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rep); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.ReplaceAll(strings.ToLower(export.Title(q)), " ", "_") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleLedger returns only the reconciled history of the report.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q, err := s.reportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.deps.Reports.Report(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"query":   queryOf(rep.Query),
		"entries": entriesOf(rep.Ledger),
	}).Write(w)
}
