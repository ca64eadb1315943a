package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"presupuestos/internal/core"
	"presupuestos/internal/log"
)

// handlePreviewExpense returns the allocation plan for an expense without
// posting it.
func (s *Server) handlePreviewExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, _, closer, err := ParseExpenseRequest(w, r, scope.User)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	plan, err := s.deps.Expenses.Preview(r.Context(), scope, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"plan":                  planOf(plan),
		"confirmation_required": plan.NeedsOverflow(),
	}).Write(w)
}

// handleCreateExpense posts an expense with an optional receipt. When the
// expense needs a carry-forward the caller has not confirmed, the reply is
// 409 with the plan to confirm.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, receipt, closer, err := ParseExpenseRequest(w, r, scope.User)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Expenses.Post(r.Context(), scope, req, receipt)
	if errors.Is(err, core.ErrOverflowConfirmation) {
		plan, perr := s.deps.Expenses.Preview(r.Context(), scope, req)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		OverflowConfirmationResponse(err, plan).Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense posted",
		log.FieldUser, scope.User,
		log.FieldGroupRef, res.GroupRef,
		log.FieldLine, req.LineID,
		log.FieldAmountCents, req.Amount.Cents,
		"records", len(res.Records))
	NewJSONResponse().Status(http.StatusCreated).Body(postedOf(res)).Write(w)
}

// handleReceipt redirects to the stored receipt.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get(UserHeader)) == "" {
		writeError(w, r, core.Failf(core.KindValidation, "missing user identity"))
		return
	}
	ref := r.PathValue("ref")
	url, err := s.deps.Expenses.ReceiptURL(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.DebugContext(r.Context(), "Receipt resolved", "receipt", ref)
	http.Redirect(w, r, url, http.StatusFound)
}
