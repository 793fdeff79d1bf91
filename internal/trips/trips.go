// Package trips manages trip records and their removal together with the
// expenses and budget rows that reference them.
package trips

import (
	"context"
	"fmt"

	"kharcha/internal/core"
	"kharcha/internal/store"
)

// Cascade steps, in deletion order.
const (
	StepExpenses = "expenses"
	StepBudgets  = "budgets"
	StepTrip     = "trip"
)

// CascadeError reports which step of a trip deletion failed. Steps before it
// have already committed, so the caller sees a partially deleted trip.
type CascadeError struct {
	Step string
	Err  error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade delete failed at %s: %v", e.Step, e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Create validates the span and persists the trip.
func (s *Service) Create(ctx context.Context, trip core.Trip) (core.Trip, error) {
	if err := trip.Validate(); err != nil {
		return core.Trip{}, err
	}
	created, err := s.store.InsertTrip(ctx, trip)
	if err != nil {
		return core.Trip{}, fmt.Errorf("insert trip: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (core.Trip, error) {
	return s.store.GetTrip(ctx, owner, id)
}

func (s *Service) List(ctx context.Context, owner string) ([]core.Trip, error) {
	return s.store.ListTrips(ctx, owner)
}

// ListOverlapping returns the owner's trips whose closed [start, end] interval
// touches the given range, newest first.
func (s *Service) ListOverlapping(ctx context.Context, owner string, r core.DateRange) ([]core.Trip, error) {
	all, err := s.store.ListTrips(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	var out []core.Trip
	for _, t := range all {
		if t.Overlaps(r) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Delete removes the trip's expenses, then its budget rows, then the trip
// itself. The steps are ordered so a failure never leaves rows pointing at a
// trip that no longer exists; on failure the remaining steps are skipped and
// the returned CascadeError names the one that failed.
func (s *Service) Delete(ctx context.Context, owner, tripID string) error {
	if _, err := s.store.GetTrip(ctx, owner, tripID); err != nil {
		return err
	}
	if err := s.store.DeleteExpensesByTrip(ctx, owner, tripID); err != nil {
		return &CascadeError{Step: StepExpenses, Err: err}
	}
	if err := s.store.DeleteBudgetsByTrip(ctx, owner, tripID); err != nil {
		return &CascadeError{Step: StepBudgets, Err: err}
	}
	if err := s.store.DeleteTrip(ctx, owner, tripID); err != nil {
		return &CascadeError{Step: StepTrip, Err: err}
	}
	return nil
}
