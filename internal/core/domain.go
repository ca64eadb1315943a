package core

import (
	"errors"
	"strings"
	"time"
)

// Category is one of the fixed budget categories.
type Category string

const (
	Administration Category = "Administration"
	Personnel      Category = "Personnel"
	Sales          Category = "Sales"
)

// Categories returns the category vocabulary in matching order.
func Categories() []Category {
	return []Category{Administration, Personnel, Sales}
}

var categoryAliases = []struct {
	category Category
	aliases  []string
}{
	{Administration, []string{"administracion", "administration"}},
	{Personnel, []string{"personal", "personnel"}},
	{Sales, []string{"ventas", "sales"}},
}

// LookupCategory returns the first category whose Spanish or English alias
// is contained in s, ignoring case and accents.
func LookupCategory(s string) (Category, bool) {
	for _, c := range categoryAliases {
		for _, a := range c.aliases {
			if ContainsFolded(s, a) {
				return c.category, true
			}
		}
	}
	return "", false
}

// AllStores is the store filter meaning "every store".
const AllStores = "TODAS"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Family identifies the twelve monthly lines of one spending line
	// owned by one store within a fiscal year.
	Family struct {
		LineName string
		Store    string
		Year     int
	}

	// LineKey is the natural identity of a BudgetLine.
	LineKey struct {
		Family
		Month Month
	}

	BudgetLine struct {
		ID             int64
		Name           string
		Store          string
		Year           int
		Month          Month
		Category       Category
		Initial        Money
		Current        Money
		OverflowAmount Money
		OverflowTarget Month // 0 when the line never overflowed
	}

	// DistributionStep records one debit made to satisfy an expense.
	DistributionStep struct {
		LineID int64
		Month  Month
		Amount Money
	}

	ExpenseRecord struct {
		ID             string
		LineID         int64
		LineName       string
		Store          string
		Category       Category
		Year           int
		Month          Month
		Amount         Money
		Description    string
		Date           Date
		Receipt        string
		CreatedBy      string
		IsOverflow     bool
		OverflowAmount Money
		OverflowTarget Month
		Trace          []DistributionStep
		GroupRef       string
		CreatedAt      time.Time
	}
)

// Family returns the family the line belongs to.
func (l BudgetLine) Family() Family {
	return Family{LineName: l.Name, Store: l.Store, Year: l.Year}
}

// Key returns the natural identity of the line.
func (l BudgetLine) Key() LineKey {
	return LineKey{Family: l.Family(), Month: l.Month}
}

// Spent returns Initial - Current.
func (l BudgetLine) Spent() Money {
	return l.Initial.Sub(l.Current)
}

// Validate checks the invariants every persisted line must satisfy.
func (l BudgetLine) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyLineName
	}
	if strings.TrimSpace(l.Store) == "" {
		return ErrEmptyStore
	}
	if !l.Month.Valid() {
		return ErrInvalidMonth
	}
	if l.Initial.Cents < 0 || l.Current.Cents < 0 || l.Current.Cents > l.Initial.Cents {
		return ErrInvalidAmount
	}
	return nil
}

// NewLine creates a fresh line whose current amount equals its initial amount.
func NewLine(name, store string, year int, month Month, category Category, amount Money) BudgetLine {
	if category == "" {
		category = Administration
	}
	return BudgetLine{
		Name:     strings.TrimSpace(name),
		Store:    strings.TrimSpace(store),
		Year:     year,
		Month:    month,
		Category: category,
		Initial:  amount,
		Current:  amount,
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Month returns the month number.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
