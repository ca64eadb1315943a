// Package importer turns raw budget workbook rows into catalog lines.
package importer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"presupuestos/internal/core"
	"presupuestos/internal/sheets"
)

var (
	lineKeys     = []string{"linea", "line", "linea presupuestaria"}
	storeKeys    = []string{"responsable", "tienda", "sede", "store"}
	categoryKeys = []string{"categoria", "category"}

	nonNumeric    = regexp.MustCompile(`[^\d.]`)
	numericPrefix = regexp.MustCompile(`^\d*\.?\d*`)
)

// Issue reports why a row was skipped or rejected. Row is 1-based over the
// data rows (the header is not counted).
type Issue struct {
	Row    int
	Reason string
}

func (i Issue) String() string { return fmt.Sprintf("row %d: %s", i.Row, i.Reason) }

// Result is the strict, typed outcome of normalizing a workbook.
type Result struct {
	Lines    []core.BudgetLine
	Rows     int
	Skipped  []Issue
	Rejected []Issue
}

// columns maps one row's header keys to their roles.
type columns struct {
	line, store, category string
	months                map[core.Month]string
}

func classify(row sheets.Row) columns {
	cols := columns{months: map[core.Month]string{}}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := core.Fold(k)
		switch {
		case cols.line == "" && contains(lineKeys, f):
			cols.line = k
		case cols.store == "" && contains(storeKeys, f):
			cols.store = k
		case cols.category == "" && contains(categoryKeys, f):
			cols.category = k
		default:
			if m, ok := core.MonthFromName(f); ok {
				if _, dup := cols.months[m]; !dup {
					cols.months[m] = k
				}
			}
		}
	}
	return cols
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Normalize maps rows to budget lines of the given fiscal year.
//
// Rows without a line name or store, and summary rows whose name contains
// "total", are skipped. A line/store pair repeated within the import is
// rejected. When no row carries both a line and a store column the whole
// import fails with a ValidationError.
func Normalize(rows []sheets.Row, year int) (Result, error) {
	res := Result{Rows: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	hasLine, hasStore := false, false
	for _, r := range rows {
		c := classify(r)
		hasLine = hasLine || c.line != ""
		hasStore = hasStore || c.store != ""
	}
	if !hasLine || !hasStore {
		return Result{}, core.Failf(core.KindValidation, "header must include a line column (línea) and a store column (responsable/tienda)")
	}

	seen := map[core.Family]int{}
	for i, r := range rows {
		n := i + 1
		c := classify(r)
		name := strings.TrimSpace(r[c.line])
		store := strings.TrimSpace(r[c.store])
		switch {
		case name == "" || store == "":
			res.Skipped = append(res.Skipped, Issue{Row: n, Reason: "missing line name or store"})
			continue
		case strings.Contains(core.Fold(name), "total"):
			res.Skipped = append(res.Skipped, Issue{Row: n, Reason: "summary row"})
			continue
		}

		fam := core.Family{LineName: name, Store: store, Year: year}
		if first, dup := seen[fam]; dup {
			res.Rejected = append(res.Rejected, Issue{Row: n,
				Reason: fmt.Sprintf("%s/%s already defined in row %d", name, store, first)})
			continue
		}
		seen[fam] = n

		source := name
		if c.category != "" && strings.TrimSpace(r[c.category]) != "" {
			source = r[c.category]
		}
		category := CategoryOf(source)

		for _, m := range core.Months() {
			key, ok := c.months[m]
			if !ok {
				continue
			}
			res.Lines = append(res.Lines, core.NewLine(name, store, year, m, category, ParseAmount(r[key])))
		}
	}
	return res, nil
}

// CategoryOf returns the first category whose alias occurs in s, or
// Administration.
func CategoryOf(s string) core.Category {
	if c, ok := core.LookupCategory(s); ok {
		return c
	}
	return core.Administration
}

// ParseAmount keeps digits and dots, reads the longest numeric prefix and
// rounds half-up to cents. Anything unreadable is zero.
func ParseAmount(raw string) core.Money {
	cleaned := nonNumeric.ReplaceAllString(raw, "")
	prefix := strings.TrimSuffix(numericPrefix.FindString(cleaned), ".")
	if prefix == "" {
		return core.Money{}
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return core.Money{}
	}
	return core.Money{Cents: d.Round(2).Shift(2).IntPart()}
}
