// Package ledger posts expenses against the budget catalog.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"presupuestos/internal/allocation"
	"presupuestos/internal/budget"
	"presupuestos/internal/core"
)

// Request is one user-facing expense.
type Request struct {
	LineID          int64
	Amount          core.Money
	Description     string
	Date            core.Date
	Receipt         string
	RequestedBy     string
	ConfirmOverflow bool
	// NoOverflow disables carry-forward even for eligible lines.
	NoOverflow bool
}

// Validate checks the request fields without touching storage.
func (r Request) Validate() error {
	if r.LineID <= 0 {
		return core.Failf(core.KindValidation, "budget line is required")
	}
	if err := r.Amount.Validate(); err != nil {
		return core.Invalid(err)
	}
	if strings.TrimSpace(r.Description) == "" {
		return core.Invalid(core.ErrEmptyDescription)
	}
	if err := r.Date.Validate(); err != nil {
		return core.Invalid(err)
	}
	return nil
}

// Result describes a committed posting.
type Result struct {
	GroupRef string
	Plan     allocation.Plan
	Records  []core.ExpenseRecord
}

// Store is the persistence the ledger needs.
type Store interface {
	budget.Transactor
	budget.CatalogReader
}

type Ledger struct {
	store  Store
	policy core.OverflowPolicy
	now    func() time.Time
}

func New(store Store, policy core.OverflowPolicy) *Ledger {
	return &Ledger{store: store, policy: policy, now: time.Now}
}

// Policy returns the overflow policy in use.
func (l *Ledger) Policy() core.OverflowPolicy { return l.policy }

// Eligible reports whether line may carry forward under this ledger's policy.
func (l *Ledger) Eligible(line core.BudgetLine) bool { return l.policy.Eligible(line) }

func (l *Ledger) check(scope core.Scope, req Request, line core.BudgetLine) error {
	if !scope.CanAccess(line.Store) {
		return core.Failf(core.KindValidation, "store %s is outside the active scope", line.Store)
	}
	if req.Date.Year() != line.Year {
		return core.Failf(core.KindValidation, "date %s is outside fiscal year %d", req.Date, line.Year)
	}
	return nil
}

// Preview computes the plan for req without changing anything. It is the
// first phase of the overflow confirmation.
func (l *Ledger) Preview(ctx context.Context, scope core.Scope, req Request) (allocation.Plan, error) {
	if err := req.Validate(); err != nil {
		return allocation.Plan{}, err
	}
	line, err := l.store.LineByID(ctx, req.LineID)
	if err != nil {
		return allocation.Plan{}, err
	}
	if err := l.check(scope, req, line); err != nil {
		return allocation.Plan{}, err
	}
	family, err := l.store.FamilyThrough(ctx, line.Family(), core.Dic)
	if err != nil {
		return allocation.Plan{}, err
	}
	eligible := !req.NoOverflow && l.policy.Eligible(line)
	return allocation.Compute(family, core.MonthOf(req.Date), req.Amount, eligible)
}

// Post plans and applies req in one transaction. Every debit, both ledger
// records and the event commit together or not at all.
func (l *Ledger) Post(ctx context.Context, scope core.Scope, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.RequestedBy == "" {
		req.RequestedBy = scope.User
	}

	var res Result
	err := l.store.WithTx(ctx, func(ctx context.Context, tx budget.Tx) error {
		line, err := tx.LineByID(ctx, req.LineID)
		if err != nil {
			return err
		}
		if err := l.check(scope, req, line); err != nil {
			return err
		}
		family, err := tx.Family(ctx, line.Family())
		if err != nil {
			return err
		}

		eligible := !req.NoOverflow && l.policy.Eligible(line)
		plan, err := allocation.Compute(family, core.MonthOf(req.Date), req.Amount, eligible)
		if err != nil {
			return err
		}
		res.Plan = plan
		if plan.NeedsOverflow() && !req.ConfirmOverflow {
			return core.Failf(core.KindOverflowConfirmation, "%s of %s must be carried into %s",
				plan.Overflow.Amount, req.Amount, plan.Overflow.Month)
		}

		records, err := l.apply(ctx, tx, req, plan)
		if err != nil {
			return err
		}
		res.GroupRef = records[0].GroupRef
		res.Records = records

		ev := core.NewEvent(core.EventExpensePosted)
		ev.Store = plan.Target.Store
		ev.Year = plan.Target.Year
		ev.Month = plan.Target.Month
		ev.GroupRef = res.GroupRef
		ev.AmountCents = req.Amount.Cents
		return tx.Enqueue(ctx, ev)
	})
	if err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Expense posted",
		"group_ref", res.GroupRef,
		"line", res.Plan.Target.Name,
		"store", res.Plan.Target.Store,
		"month", res.Plan.Target.Month.Code(),
		"amount_cents", req.Amount.Cents,
		"carry_forward", res.Plan.NeedsOverflow(),
		"created_by", req.RequestedBy)
	return res, nil
}

func (l *Ledger) apply(ctx context.Context, tx budget.Tx, req Request, plan allocation.Plan) ([]core.ExpenseRecord, error) {
	for _, step := range plan.InRange {
		if _, err := tx.ApplyDelta(ctx, step.LineID, step.Amount.Neg()); err != nil {
			return nil, fmt.Errorf("debit %s: %w", step.Month, err)
		}
	}

	group := uuid.NewString()
	now := l.now().UTC()
	target := plan.Target
	trace := append([]core.DistributionStep(nil), plan.InRange...)
	if plan.Overflow != nil {
		trace = append(trace, *plan.Overflow)
	}

	var records []core.ExpenseRecord
	if inRange := plan.InRangeTotal(); inRange.IsPositive() {
		rec := core.ExpenseRecord{
			ID:          uuid.NewString(),
			LineID:      target.ID,
			LineName:    target.Name,
			Store:       target.Store,
			Category:    target.Category,
			Year:        target.Year,
			Month:       target.Month,
			Amount:      inRange,
			Description: strings.TrimSpace(req.Description),
			Date:        req.Date,
			Receipt:     req.Receipt,
			CreatedBy:   req.RequestedBy,
			Trace:       trace,
			GroupRef:    group,
			CreatedAt:   now,
		}
		if plan.Overflow != nil {
			rec.OverflowAmount = plan.Overflow.Amount
			rec.OverflowTarget = plan.Overflow.Month
		}
		if err := tx.AppendExpense(ctx, rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if plan.Overflow != nil {
		step := *plan.Overflow
		next, err := tx.ApplyDelta(ctx, step.LineID, step.Amount.Neg())
		if err != nil {
			return nil, fmt.Errorf("carry forward into %s: %w", step.Month, err)
		}
		if err := tx.MarkOverflow(ctx, target.ID, step.Amount, step.Month); err != nil {
			return nil, err
		}
		// With no in-range part the split is the only record of the posting.
		createdBy := l.policy.Actor()
		if len(records) == 0 {
			createdBy = req.RequestedBy
		}
		split := core.ExpenseRecord{
			ID:             uuid.NewString(),
			LineID:         next.ID,
			LineName:       next.Name,
			Store:          next.Store,
			Category:       next.Category,
			Year:           next.Year,
			Month:          next.Month,
			Amount:         step.Amount,
			Description:    strings.TrimSpace(req.Description),
			Date:           req.Date,
			Receipt:        req.Receipt,
			CreatedBy:      createdBy,
			IsOverflow:     true,
			OverflowAmount: step.Amount,
			OverflowTarget: step.Month,
			Trace:          []core.DistributionStep{step},
			GroupRef:       group,
			CreatedAt:      now,
		}
		if err := tx.AppendExpense(ctx, split); err != nil {
			return nil, err
		}
		records = append(records, split)
	}
	return records, nil
}
