package report

import (
	"cmp"
	"slices"

	"presupuestos/internal/core"
)

// Reconcile turns ledger records into history entries, newest first.
//
// The monthly view lists every record booked to q.Month individually. The
// annual view merges the records sharing a group reference into one entry
// whose amount is the sum of the parts, flagged as carry-forward when any
// part is an overflow split.
func Reconcile(records []core.ExpenseRecord, q core.ReportQuery) []core.LedgerEntry {
	var entries []core.LedgerEntry
	if q.View == core.Annual {
		entries = mergeGroups(records, q)
	} else {
		for _, r := range records {
			if !inScope(r, q) || r.Month != q.Month {
				continue
			}
			e := entryOf(r)
			e.Parts = 1
			entries = append(entries, e)
		}
	}

	slices.SortStableFunc(entries, func(a, b core.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.GroupRef, b.GroupRef)
	})
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries
}

func inScope(r core.ExpenseRecord, q core.ReportQuery) bool {
	if q.Year != 0 && r.Year != q.Year {
		return false
	}
	return storeMatches(q.Store, r.Store)
}

func entryOf(r core.ExpenseRecord) core.LedgerEntry {
	return core.LedgerEntry{
		GroupRef:     r.GroupRef,
		LineName:     r.LineName,
		Store:        r.Store,
		Month:        r.Month,
		Date:         r.Date,
		Description:  r.Description,
		CreatedBy:    r.CreatedBy,
		Receipt:      r.Receipt,
		Amount:       r.Amount,
		CarryForward: r.IsOverflow,
		CreatedAt:    r.CreatedAt,
	}
}

func mergeGroups(records []core.ExpenseRecord, q core.ReportQuery) []core.LedgerEntry {
	idx := map[string]int{}
	var entries []core.LedgerEntry
	// primary tracks whether the entry already holds a user-facing part.
	var primary []bool
	for _, r := range records {
		if !inScope(r, q) {
			continue
		}
		ref := r.GroupRef
		if ref == "" {
			ref = r.ID
		}
		i, ok := idx[ref]
		if !ok {
			e := entryOf(r)
			e.GroupRef = ref
			e.Parts = 1
			idx[ref] = len(entries)
			entries = append(entries, e)
			primary = append(primary, !r.IsOverflow)
			continue
		}

		e := &entries[i]
		amount, parts, carry := e.Amount.Add(r.Amount), e.Parts+1, e.CarryForward || r.IsOverflow
		if !primary[i] && !r.IsOverflow {
			*e = entryOf(r)
			e.GroupRef = ref
			primary[i] = true
		}
		e.Amount, e.Parts, e.CarryForward = amount, parts, carry
	}
	return entries
}
