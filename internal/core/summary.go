package core

import "time"

// View selects between a single-month report and the whole fiscal year.
type View string

const (
	Monthly View = "mensual"
	Annual  View = "anual"
)

// ReportQuery parameterizes every read-only rollup.
type ReportQuery struct {
	Year        int
	Store       string // a specific store or AllStores
	View        View
	Month       Month // used by the monthly view only
	Consolidate bool  // group ranking by line name across stores
	Limit       int   // max ledger entries, 0 means all
}

// RankingRow aggregates the lines sharing one ranking key.
type RankingRow struct {
	Name    string
	Store   string // empty when consolidated
	Initial Money
	Current Money
}

// Spent returns Initial - Current.
func (r RankingRow) Spent() Money { return r.Initial.Sub(r.Current) }

// CategoryAmount rolls up a fixed category.
type CategoryAmount struct {
	Category Category
	Initial  Money
	Spent    Money
	Current  Money
}

// Totals sums the filtered set.
type Totals struct {
	Initial         Money
	Spent           Money
	Current         Money
	PercentConsumed float64
}

// LedgerEntry is one logical expense as shown in history. In the annual view
// it merges every record sharing a group reference.
type LedgerEntry struct {
	GroupRef     string
	LineName     string
	Store        string
	Month        Month
	Date         Date
	Description  string
	CreatedBy    string
	Receipt      string
	Amount       Money
	CarryForward bool
	Parts        int
	CreatedAt    time.Time
}

// Report bundles every rollup for one query.
type Report struct {
	Query      ReportQuery
	Totals     Totals
	Ranking    []RankingRow
	Categories []CategoryAmount
	Ledger     []LedgerEntry
}

// Snapshot is a consistent read of the catalog and the ledger.
type Snapshot struct {
	Lines    []BudgetLine
	Expenses []ExpenseRecord
}
