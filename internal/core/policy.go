package core

// DefaultSystemActor is recorded as creator of overflow split records.
const DefaultSystemActor = "system:carry-forward"

// OverflowPolicy decides which lines may carry an unfunded remainder into
// the next month. A line is eligible when its name contains one of
// LineTags or its category is listed in Categories (accent/case-insensitive).
type OverflowPolicy struct {
	LineTags    []string
	Categories  []Category
	SystemActor string
}

// Eligible reports whether line may overflow.
func (p OverflowPolicy) Eligible(line BudgetLine) bool {
	for _, tag := range p.LineTags {
		if ContainsFolded(line.Name, tag) {
			return true
		}
	}
	for _, c := range p.Categories {
		if Fold(string(c)) == Fold(string(line.Category)) {
			return true
		}
	}
	return false
}

// Actor returns the identity used for overflow split records.
func (p OverflowPolicy) Actor() string {
	if p.SystemActor == "" {
		return DefaultSystemActor
	}
	return p.SystemActor
}
