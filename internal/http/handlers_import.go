package http

import (
	"net/http"
	"strconv"
	"strings"

	"presupuestos/internal/core"
	"presupuestos/internal/log"
	"presupuestos/internal/services"
	"presupuestos/internal/sheets"
)

// handleImport replaces the catalog from an uploaded CSV workbook export.
// Only administrators may import.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !scope.IsAdmin {
		writeError(w, r, core.Failf(core.KindValidation, "only administrators may import the budget catalog"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, core.Failf(core.KindValidation, "malformed multipart body: %v", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.Failf(core.KindValidation, "missing file part"))
		return
	}
	defer file.Close()

	opts := services.ImportOptions{Year: scope.Year, AllowPartial: parseBool(r.FormValue("allow_partial"))}
	if v := strings.TrimSpace(r.FormValue("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, core.Failf(core.KindValidation, "invalid year %q", v))
			return
		}
		opts.Year = y
	}

	rep, err := s.deps.Imports.Import(r.Context(), sheets.NewCSVSource(file), opts)
	if err != nil {
		if len(rep.Rejected) > 0 {
			ErrorResponse(r, err).Body(struct {
				errorBody
				Import importDTO `json:"import"`
			}{errorBody{Kind: core.KindOf(err), Reason: reasonOf(err)}, importOf(rep)}).Write(w)
			return
		}
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Catalog imported",
		log.FieldUser, scope.User,
		log.FieldYear, opts.Year,
		"lines", rep.Replaced)
	NewJSONResponse().Status(http.StatusCreated).Body(importOf(rep)).Write(w)
}
