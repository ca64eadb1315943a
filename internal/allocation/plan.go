// Package allocation computes how an expense consumes a line family's
// monthly balances. It performs no I/O.
package allocation

import (
	"sort"

	"presupuestos/internal/core"
)

// Plan is the ordered consumption computed for one expense.
type Plan struct {
	Target              core.BudgetLine
	Requested           core.Money
	CumulativeAvailable core.Money
	AnnualAvailable     core.Money
	InRange             []core.DistributionStep
	Overflow            *core.DistributionStep
}

// InRangeTotal is the part of the request funded by months up to the target.
func (p Plan) InRangeTotal() core.Money {
	var total core.Money
	for _, s := range p.InRange {
		total = total.Add(s.Amount)
	}
	return total
}

// NeedsOverflow reports whether part of the request is carried forward.
func (p Plan) NeedsOverflow() bool { return p.Overflow != nil }

// Compute plans requested against the family of the line at month target.
//
// Months up to target are consumed oldest first. When they do not cover the
// request and the line is eligible, the remainder is routed to the month
// right after target, which must exist and absorb all of it.
func Compute(family []core.BudgetLine, target core.Month, requested core.Money, eligible bool) (Plan, error) {
	if !requested.IsPositive() {
		return Plan{}, core.Invalid(core.ErrInvalidAmount)
	}
	if !target.Valid() {
		return Plan{}, core.Invalid(core.ErrInvalidMonth)
	}

	lines := make([]core.BudgetLine, len(family))
	copy(lines, family)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Month < lines[j].Month })

	plan := Plan{Requested: requested}
	found := false
	for _, l := range lines {
		plan.AnnualAvailable = plan.AnnualAvailable.Add(l.Current)
		if l.Month <= target {
			plan.CumulativeAvailable = plan.CumulativeAvailable.Add(l.Current)
		}
		if l.Month == target {
			plan.Target = l
			found = true
		}
	}
	if !found {
		return Plan{}, core.Failf(core.KindNotFound, "no %s line for %q in %s", target, familyName(lines), storeName(lines))
	}

	if !plan.CumulativeAvailable.Less(requested) {
		plan.InRange = consume(lines, target, requested)
		return plan, nil
	}

	if !eligible {
		return Plan{}, core.Failf(core.KindInsufficientFunds,
			"requested %s exceeds %s available through %s", requested, plan.CumulativeAvailable, target)
	}
	if plan.AnnualAvailable.Less(requested) {
		return Plan{}, core.Failf(core.KindInsufficientFunds,
			"requested %s exceeds %s available for the whole year", requested, plan.AnnualAvailable)
	}

	next, ok := target.Next()
	if !ok {
		return Plan{}, core.Failf(core.KindNoOverflowTarget, "%s has no following month", target)
	}
	var nextLine *core.BudgetLine
	for i := range lines {
		if lines[i].Month == next {
			nextLine = &lines[i]
			break
		}
	}
	if nextLine == nil {
		return Plan{}, core.Failf(core.KindNoOverflowTarget, "no %s line to carry the remainder into", next)
	}

	remainder := requested.Sub(plan.CumulativeAvailable)
	if nextLine.Current.Less(remainder) {
		return Plan{}, core.Failf(core.KindInsufficientFunds,
			"carry-forward of %s exceeds %s available in %s", remainder, nextLine.Current, next)
	}

	plan.InRange = consume(lines, target, plan.CumulativeAvailable)
	plan.Overflow = &core.DistributionStep{LineID: nextLine.ID, Month: next, Amount: remainder}
	return plan, nil
}

// consume debits amount from lines with month <= target in ascending month
// order, skipping empty months.
func consume(lines []core.BudgetLine, target core.Month, amount core.Money) []core.DistributionStep {
	var steps []core.DistributionStep
	remaining := amount
	for _, l := range lines {
		if !remaining.IsPositive() || l.Month > target {
			break
		}
		if !l.Current.IsPositive() {
			continue
		}
		take := core.MinMoney(l.Current, remaining)
		steps = append(steps, core.DistributionStep{LineID: l.ID, Month: l.Month, Amount: take})
		remaining = remaining.Sub(take)
	}
	return steps
}

func familyName(lines []core.BudgetLine) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0].Name
}

func storeName(lines []core.BudgetLine) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0].Store
}
