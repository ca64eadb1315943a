package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Month is a fiscal month, 1 (Ene) through 12 (Dic).
type Month int

const (
	Ene Month = iota + 1
	Feb
	Mar
	Abr
	May
	Jun
	Jul
	Ago
	Sep
	Oct
	Nov
	Dic
)

var monthCodes = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// Months returns the twelve fiscal months in order.
func Months() []Month {
	out := make([]Month, 0, 12)
	for m := Ene; m <= Dic; m++ {
		out = append(out, m)
	}
	return out
}

// Valid reports whether m is within Ene..Dic.
func (m Month) Valid() bool { return m >= Ene && m <= Dic }

// Code returns the system month code (e.g. "Ene").
func (m Month) Code() string {
	if !m.Valid() {
		return "M" + strconv.Itoa(int(m))
	}
	return monthCodes[m-1]
}

func (m Month) String() string { return m.Code() }

// Next returns the month that follows m within the same fiscal year.
// The boolean is false for Dic.
func (m Month) Next() (Month, bool) {
	if !m.Valid() || m == Dic {
		return 0, false
	}
	return m + 1, true
}

// MonthOf returns the fiscal month of a date.
func MonthOf(d Date) Month {
	return Month(d.Month())
}

// ParseMonth accepts a system code ("Ene"), a number ("1".."12") or a
// full Spanish or English month name.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidMonth
	}
	if n, err := strconv.Atoi(s); err == nil {
		if m := Month(n); m.Valid() {
			return m, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrInvalidMonth, n)
	}
	folded := Fold(s)
	for i, code := range monthCodes {
		if folded == Fold(code) {
			return Month(i + 1), nil
		}
	}
	if m, ok := MonthFromName(folded); ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

var monthNames = map[string]Month{
	"enero": Ene, "febrero": Feb, "marzo": Mar, "abril": Abr,
	"mayo": May, "junio": Jun, "julio": Jul, "agosto": Ago,
	"septiembre": Sep, "setiembre": Sep, "octubre": Oct, "noviembre": Nov, "diciembre": Dic,
	"january": Ene, "february": Feb, "march": Mar, "april": Abr, "may": May,
	"june": Jun, "july": Jul, "august": Ago,
	"september": Sep, "october": Oct, "november": Nov, "december": Dic,
}

// MonthFromName maps a folded full month name (see Fold) to its Month.
func MonthFromName(folded string) (Month, bool) {
	m, ok := monthNames[folded]
	return m, ok
}
