package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"presupuestos/internal/allocation"
	"presupuestos/internal/blob"
	"presupuestos/internal/core"
	"presupuestos/internal/ledger"
)

// Invalidator is implemented by read caches that must be dropped after a
// write.
type Invalidator interface {
	Invalidate()
}

// Receipt is an uploaded proof of purchase.
type Receipt struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ExpenseService posts expenses with their receipts.
type ExpenseService struct {
	ledger   *ledger.Ledger
	receipts blob.Store
	reports  Invalidator
}

// NewExpenseService wires the ledger to a receipt store and the report cache.
// receipts and reports may be nil.
func NewExpenseService(l *ledger.Ledger, receipts blob.Store, reports Invalidator) *ExpenseService {
	return &ExpenseService{ledger: l, receipts: receipts, reports: reports}
}

// Preview returns the allocation plan for req without changing anything.
func (s *ExpenseService) Preview(ctx context.Context, scope core.Scope, req ledger.Request) (allocation.Plan, error) {
	return s.ledger.Preview(ctx, scope, req)
}

// Post uploads the receipt, posts the expense and removes the receipt again
// when the posting fails.
func (s *ExpenseService) Post(ctx context.Context, scope core.Scope, req ledger.Request, receipt *Receipt) (ledger.Result, error) {
	if err := req.Validate(); err != nil {
		return ledger.Result{}, err
	}

	uploaded := ""
	if receipt != nil && receipt.Body != nil {
		if s.receipts == nil {
			return ledger.Result{}, core.Failf(core.KindValidation, "receipt uploads are not configured")
		}
		ref, err := s.receipts.Upload(ctx, receipt.Filename, receipt.ContentType, receipt.Body)
		if err != nil {
			return ledger.Result{}, fmt.Errorf("upload receipt: %w", err)
		}
		uploaded = ref
		req.Receipt = ref
	}

	res, err := s.ledger.Post(ctx, scope, req)
	if err != nil {
		if uploaded != "" {
			if derr := s.receipts.Delete(ctx, uploaded); derr != nil {
				slog.WarnContext(ctx, "Failed to remove orphaned receipt", "receipt", uploaded, "error", derr)
			}
		}
		return res, err
	}

	if s.reports != nil {
		s.reports.Invalidate()
	}
	return res, nil
}

// ReceiptURL resolves a receipt reference for download.
func (s *ExpenseService) ReceiptURL(ctx context.Context, ref string) (string, error) {
	if s.receipts == nil {
		return "", core.Failf(core.KindNotFound, "receipt %s", ref)
	}
	return s.receipts.Resolve(ctx, ref)
}
