// Package report computes read-only rollups over a catalog and ledger
// snapshot: totals, per-line ranking, per-category amounts and the ledger
// history with overflow splits reconciled.
package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"presupuestos/internal/core"
)

// Build computes every rollup for q over snap. It never mutates snap.
func Build(snap core.Snapshot, q core.ReportQuery) core.Report {
	lines := FilterLines(snap.Lines, q)
	return core.Report{
		Query:      q,
		Totals:     ComputeTotals(lines),
		Ranking:    Ranking(lines, q.Consolidate),
		Categories: CategoryRollup(lines),
		Ledger:     Reconcile(snap.Expenses, q),
	}
}

func storeMatches(filter, store string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" || strings.EqualFold(filter, core.AllStores) {
		return true
	}
	return strings.EqualFold(filter, strings.TrimSpace(store))
}

// FilterLines keeps the lines of q.Year in the store filter, and in q.Month
// for the monthly view.
func FilterLines(lines []core.BudgetLine, q core.ReportQuery) []core.BudgetLine {
	out := make([]core.BudgetLine, 0, len(lines))
	for _, l := range lines {
		if q.Year != 0 && l.Year != q.Year {
			continue
		}
		if !storeMatches(q.Store, l.Store) {
			continue
		}
		if q.View != core.Annual && l.Month != q.Month {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Ranking groups lines by name (consolidated) or by name and store, and
// orders the groups by amount spent, largest first.
func Ranking(lines []core.BudgetLine, consolidate bool) []core.RankingRow {
	type key struct{ name, store string }
	idx := map[key]int{}
	var rows []core.RankingRow
	for _, l := range lines {
		k := key{name: l.Name, store: l.Store}
		if consolidate {
			k.store = ""
		}
		i, ok := idx[k]
		if !ok {
			i = len(rows)
			idx[k] = i
			rows = append(rows, core.RankingRow{Name: k.name, Store: k.store})
		}
		rows[i].Initial = rows[i].Initial.Add(l.Initial)
		rows[i].Current = rows[i].Current.Add(l.Current)
	}
	slices.SortStableFunc(rows, func(a, b core.RankingRow) int {
		if c := cmp.Compare(b.Spent().Cents, a.Spent().Cents); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Store, b.Store)
	})
	return rows
}

// CategoryRollup returns one entry per fixed category, in vocabulary order,
// including categories with no lines.
func CategoryRollup(lines []core.BudgetLine) []core.CategoryAmount {
	cats := core.Categories()
	out := make([]core.CategoryAmount, len(cats))
	pos := make(map[core.Category]int, len(cats))
	for i, c := range cats {
		out[i].Category = c
		pos[c] = i
	}
	for _, l := range lines {
		i, ok := pos[l.Category]
		if !ok {
			i = pos[core.Administration]
		}
		out[i].Initial = out[i].Initial.Add(l.Initial)
		out[i].Current = out[i].Current.Add(l.Current)
		out[i].Spent = out[i].Spent.Add(l.Spent())
	}
	return out
}

// ComputeTotals sums the filtered set.
func ComputeTotals(lines []core.BudgetLine) core.Totals {
	var t core.Totals
	for _, l := range lines {
		t.Initial = t.Initial.Add(l.Initial)
		t.Current = t.Current.Add(l.Current)
	}
	t.Spent = t.Initial.Sub(t.Current)
	t.PercentConsumed = Percent(t.Spent, t.Initial)
	return t
}

// Percent returns part/whole*100 rounded to two decimals, or 0 when whole
// is zero.
func Percent(part, whole core.Money) float64 {
	if whole.IsZero() {
		return 0
	}
	p := decimal.NewFromInt(part.Cents).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole.Cents)).
		Round(2)
	return p.InexactFloat64()
}
