// Package store defines the record-store contract the rest of the
// application consumes, plus its SQLite and in-memory implementations.
// Empty trip or category references are surfaced as empty strings in the
// domain and stored as NULL.
package store

import (
	"context"
	"errors"

	"kharcha/internal/core"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ExpenseStore covers expense persistence. ListView and CountView apply
// the full view filter: owner, trip-context equality (empty = casual),
// inclusive timestamp range, newest first.
type ExpenseStore interface {
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, owner, id string) error
	GetExpense(ctx context.Context, owner, id string) (core.Expense, error)
	ListView(ctx context.Context, vctx core.ViewContext) ([]core.Expense, error)
	CountView(ctx context.Context, vctx core.ViewContext) (int64, error)
	DeleteExpensesByTrip(ctx context.Context, owner, tripID string) error
	// ReassignCategory moves every expense referencing fromID to toID;
	// an empty toID clears the reference (uncategorized).
	ReassignCategory(ctx context.Context, owner, fromID, toID string) error
}

type CategoryStore interface {
	InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	DeleteCategory(ctx context.Context, owner, id string) error
}

type TripStore interface {
	InsertTrip(ctx context.Context, t core.Trip) (core.Trip, error)
	GetTrip(ctx context.Context, owner, id string) (core.Trip, error)
	ListTrips(ctx context.Context, owner string) ([]core.Trip, error)
	DeleteTrip(ctx context.Context, owner, id string) error
}

// BudgetStore persists budget rows. Uniqueness per (owner, context, month)
// is maintained by the ledger's replace-before-insert, not a constraint.
type BudgetStore interface {
	SumBudgets(ctx context.Context, owner, tripID string, months []core.MonthBucket) (core.Money, error)
	DeleteBudgets(ctx context.Context, owner, tripID string, months []core.MonthBucket) error
	InsertBudgets(ctx context.Context, rows []core.BudgetRow) error
	DeleteBudgetsByTrip(ctx context.Context, owner, tripID string) error
}

// Store is the full record-store surface.
type Store interface {
	ExpenseStore
	CategoryStore
	TripStore
	BudgetStore
	Close() error
}
