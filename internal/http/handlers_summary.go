package http

import (
	"net/http"
	"strconv"
	"sync"

	"kharcha/internal/aggregate"
	"kharcha/internal/core"
)

// generations versions each owner's cached reads. Every write bumps the
// owner's generation, which changes the cache keys and strands the stale
// entries for the TTL sweep to collect.
type generations struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (g *generations) current(owner string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		return 0
	}
	return g.m[owner]
}

func (g *generations) bump(owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[string]uint64)
	}
	g.m[owner]++
}

func (s *Server) bumpGeneration(owner string) {
	s.gens.bump(owner)
}

func (s *Server) summaryKey(vctx core.ViewContext) string {
	return vctx.Fingerprint() + "|g" + strconv.FormatUint(s.gens.current(vctx.Owner), 10)
}

func (s *Server) categoriesKey(owner string) string {
	return "cats|" + owner + "|g" + strconv.FormatUint(s.gens.current(owner), 10)
}

type groupJSON struct {
	CategoryID string        `json:"category_id,omitempty"`
	Name       string        `json:"name"`
	TotalCents int64         `json:"total_cents"`
	Color      string        `json:"color"`
	Expenses   []expenseJSON `json:"expenses"`
}

type summaryJSON struct {
	Groups        []groupJSON `json:"groups"`
	BorrowedCents int64       `json:"borrowed_cents"`
	LendedCents   int64       `json:"lended_cents"`
	SpentCents    int64       `json:"spent_cents"`
	BudgetCents   int64       `json:"budget_cents"`
	BalanceCents  int64       `json:"balance_cents"`
	UsagePercent  float64     `json:"usage_percent"`
	BarFill       float64     `json:"bar_fill"`
}

func toSummaryJSON(sum aggregate.Summary) summaryJSON {
	out := summaryJSON{
		Groups:        make([]groupJSON, len(sum.Groups)),
		BorrowedCents: sum.Borrowed.Cents,
		LendedCents:   sum.Lended.Cents,
		SpentCents:    sum.Spent.Cents,
		BudgetCents:   sum.Budget.Cents,
		BalanceCents:  sum.Balance.Cents,
		UsagePercent:  sum.UsagePercent(),
		BarFill:       sum.BarFill(),
	}
	for i, g := range sum.Groups {
		out.Groups[i] = groupJSON{
			CategoryID: g.CategoryID,
			Name:       g.Name,
			TotalCents: g.Total.Cents,
			Color:      g.Color,
			Expenses:   toExpenseList(g.Expenses),
		}
	}
	return out
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	vctx, err := parseView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key := s.summaryKey(vctx)
	if sum, ok := s.summaryCache.Get(key); ok {
		s.writeJSON(w, http.StatusOK, toSummaryJSON(sum))
		return
	}

	sum, err := s.expenses.Summary(r.Context(), vctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.summaryCache.Set(key, sum)
	s.writeJSON(w, http.StatusOK, toSummaryJSON(sum))
}
