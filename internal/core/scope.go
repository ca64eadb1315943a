package core

import (
	"strings"
	"time"
)

// Scope is the explicit application context passed to the ledger and the
// report aggregator: who is acting, in which store, and what they look at.
type Scope struct {
	User    string
	IsAdmin bool
	Store   string // store the user acts on; AllStores only for admins
	Year    int
	View    View
	Month   Month
}

// CanAccess reports whether the scope may read or post against store.
func (s Scope) CanAccess(store string) bool {
	if s.IsAdmin {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(store), strings.TrimSpace(s.Store))
}

// Query builds the report query this scope is allowed to run.
func (s Scope) Query(consolidate bool, limit int) ReportQuery {
	view := s.View
	if view == "" {
		view = Monthly
	}
	month := s.Month
	if !month.Valid() {
		month = Month(time.Now().Month())
	}
	store := s.Store
	if store == "" {
		store = AllStores
	}
	return ReportQuery{
		Year:        s.Year,
		Store:       store,
		View:        view,
		Month:       month,
		Consolidate: consolidate,
		Limit:       limit,
	}
}
