// Package aggregate computes per-category and per-kind spending totals for
// one view's record set, plus budget balance and usage.
package aggregate

import (
	"sort"

	"kharcha/internal/core"
)

// UncategorizedName labels the sentinel group for records with no category
// reference. It is not a category; it only exists when such records do.
const UncategorizedName = "Uncategorized"

// Group is one category bucket. CategoryID is empty for the uncategorized
// sentinel group.
type Group struct {
	CategoryID string
	Name       string
	Total      core.Money
	Color      string
	Expenses   []core.Expense
}

// Summary is the aggregation over one view's (already range-filtered)
// records. Groups contains every known category, zero totals included, so
// callers can render empty categories; Borrowed and Lended are disjoint
// from Spent.
type Summary struct {
	Groups   []Group
	Borrowed core.Money
	Lended   core.Money
	Spent    core.Money
	Budget   core.Money
	Balance  core.Money // Budget - Spent, negative when over budget
}

// Summarize partitions records by kind, groups expense-kind records by
// category, and computes the budget balance. Records are assumed to be
// range-filtered already; the category lookup supplies group names.
func Summarize(expenses []core.Expense, categories []core.Category, budget core.Money) Summary {
	groups := make(map[string]*Group, len(categories)+1)
	for _, c := range categories {
		groups[c.ID] = &Group{CategoryID: c.ID, Name: c.Name}
	}

	s := Summary{Budget: budget}
	for _, e := range expenses {
		switch e.Kind {
		case core.KindBorrowed:
			s.Borrowed.Cents += e.Amount.Cents
			continue
		case core.KindLended:
			s.Lended.Cents += e.Amount.Cents
			continue
		}

		g, ok := groups[e.CategoryID]
		if !ok {
			// Absent or unknown category reference lands in the
			// uncategorized sentinel group, keyed by "".
			if g, ok = groups[""]; !ok {
				g = &Group{Name: UncategorizedName}
				groups[""] = g
			}
		}
		g.Total.Cents += e.Amount.Cents
		g.Expenses = append(g.Expenses, e)
		s.Spent.Cents += e.Amount.Cents
	}

	s.Groups = make([]Group, 0, len(groups))
	for _, g := range groups {
		s.Groups = append(s.Groups, *g)
	}
	sort.Slice(s.Groups, func(i, j int) bool { return s.Groups[i].Name < s.Groups[j].Name })
	assignColors(s.Groups)

	s.Balance = core.Money{Cents: budget.Cents - s.Spent.Cents}
	return s
}

// UsagePercent is spent over budget, uncapped: values over 100 show the
// magnitude of an overrun. A zero budget reports 0.
func (s Summary) UsagePercent() float64 {
	if s.Budget.Cents == 0 {
		return 0
	}
	return float64(s.Spent.Cents) / float64(s.Budget.Cents) * 100
}

// BarFill is UsagePercent capped at 100, for progress-bar rendering only.
func (s Summary) BarFill() float64 {
	if p := s.UsagePercent(); p < 100 {
		return p
	}
	return 100
}
