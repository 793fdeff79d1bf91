package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kharcha/internal/core"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the in-memory Store used by tests and by local runs that
// do not want a database file. Semantics mirror the SQLite implementation.
type MemoryStore struct {
	mu         sync.Mutex
	expenses   map[string]core.Expense
	categories map[string]core.Category
	trips      map[string]core.Trip
	budgets    []core.BudgetRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expenses:   make(map[string]core.Expense),
		categories: make(map[string]core.Category),
		trips:      make(map[string]core.Trip),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *MemoryStore) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.expenses[e.ID]
	if !ok || held.Owner != e.Owner {
		return ErrNotFound
	}
	// Trip membership and input text are immutable on edit.
	e.TripID = held.TripID
	e.Input = held.Input
	s.expenses[e.ID] = e
	return nil
}

func (s *MemoryStore) DeleteExpense(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.expenses[id]; !ok || e.Owner != owner {
		return ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) GetExpense(_ context.Context, owner, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.Owner != owner {
		return core.Expense{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) ListView(_ context.Context, vctx core.ViewContext) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.Owner == vctx.Owner && e.TripID == vctx.TripID && vctx.Range.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) CountView(ctx context.Context, vctx core.ViewContext) (int64, error) {
	list, err := s.ListView(ctx, vctx)
	return int64(len(list)), err
}

func (s *MemoryStore) DeleteExpensesByTrip(_ context.Context, owner, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.expenses {
		if e.Owner == owner && e.TripID == tripID {
			delete(s.expenses, id)
		}
	}
	return nil
}

func (s *MemoryStore) ReassignCategory(_ context.Context, owner, fromID, toID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.expenses {
		if e.Owner == owner && e.CategoryID == fromID {
			e.CategoryID = toID
			s.expenses[id] = e
		}
	}
	return nil
}

func (s *MemoryStore) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *MemoryStore) ListCategories(_ context.Context, owner string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.categories[id]; !ok || c.Owner != owner {
		return ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) InsertTrip(_ context.Context, t core.Trip) (core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	s.trips[t.ID] = t
	return t, nil
}

func (s *MemoryStore) GetTrip(_ context.Context, owner, id string) (core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.Owner != owner {
		return core.Trip{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTrips(_ context.Context, owner string) ([]core.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Trip
	for _, t := range s.trips {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) DeleteTrip(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trips[id]; !ok || t.Owner != owner {
		return ErrNotFound
	}
	delete(s.trips, id)
	return nil
}

func (s *MemoryStore) SumBudgets(_ context.Context, owner, tripID string, months []core.MonthBucket) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := make(map[core.MonthBucket]bool, len(months))
	for _, m := range months {
		in[m] = true
	}
	var total core.Money
	for _, r := range s.budgets {
		if r.Owner == owner && r.TripID == tripID && in[r.Month] {
			total.Cents += r.Amount.Cents
		}
	}
	return total, nil
}

func (s *MemoryStore) DeleteBudgets(_ context.Context, owner, tripID string, months []core.MonthBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := make(map[core.MonthBucket]bool, len(months))
	for _, m := range months {
		in[m] = true
	}
	kept := s.budgets[:0]
	for _, r := range s.budgets {
		if r.Owner == owner && r.TripID == tripID && in[r.Month] {
			continue
		}
		kept = append(kept, r)
	}
	s.budgets = kept
	return nil
}

func (s *MemoryStore) InsertBudgets(_ context.Context, rows []core.BudgetRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = append(s.budgets, rows...)
	return nil
}

func (s *MemoryStore) DeleteBudgetsByTrip(_ context.Context, owner, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.budgets[:0]
	for _, r := range s.budgets {
		if r.Owner == owner && r.TripID == tripID {
			continue
		}
		kept = append(kept, r)
	}
	s.budgets = kept
	return nil
}
