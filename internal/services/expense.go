// Package services orchestrates the domain packages behind the HTTP
// handlers: resolution, persistence, change notification and summary
// assembly live here so handlers stay thin.
package services

import (
	"context"
	"fmt"
	"time"

	"kharcha/internal/aggregate"
	"kharcha/internal/budget"
	"kharcha/internal/categorize"
	"kharcha/internal/core"
	"kharcha/internal/liveview"
	"kharcha/internal/log"
	"kharcha/internal/notify"
	"kharcha/internal/store"
)

// Observer receives operational counters from the service layer: store
// operations that errored and change events that made it onto the bus.
// A nil observer disables instrumentation.
type Observer interface {
	StoreError(op string)
	EventPublished(op string)
}

// ExpenseService owns the expense write path: free text in, resolved row
// persisted, change event published. Event publication is best effort; a
// persisted row whose event was lost is picked up by the next bulk load.
type ExpenseService struct {
	store    store.Store
	resolver *categorize.Resolver
	ledger   *budget.Ledger
	bus      notify.Bus
	obs      Observer
	logger   *log.Logger
}

var _ liveview.Loader = (*ExpenseService)(nil)

func NewExpenseService(s store.Store, r *categorize.Resolver, l *budget.Ledger, bus notify.Bus, obs Observer, logger *log.Logger) *ExpenseService {
	return &ExpenseService{
		store:    s,
		resolver: r,
		ledger:   l,
		bus:      bus,
		obs:      obs,
		logger:   logger.WithComponent("expenses"),
	}
}

func (s *ExpenseService) storeError(op string) {
	if s.obs != nil {
		s.obs.StoreError(op)
	}
}

// Add resolves the free text against the owner's categories and persists the
// result in the view's context. The returned row carries the store-assigned
// identifier and is the same row pushed on the bus.
func (s *ExpenseService) Add(ctx context.Context, vctx core.ViewContext, text string, explicitDate time.Time) (core.Expense, error) {
	categories, err := s.store.ListCategories(ctx, vctx.Owner)
	if err != nil {
		s.storeError("list_categories")
		return core.Expense{}, fmt.Errorf("list categories: %w", err)
	}

	res, err := s.resolver.Resolve(ctx, categorize.Input{
		Text:         text,
		ExplicitDate: explicitDate,
		View:         vctx,
		Categories:   categories,
	})
	if err != nil {
		return core.Expense{}, err
	}

	inserted, err := s.store.InsertExpense(ctx, core.Expense{
		Owner:      vctx.Owner,
		Amount:     res.Amount,
		Kind:       res.Kind,
		CategoryID: res.CategoryID,
		Note:       res.Note,
		Input:      text,
		OccurredAt: res.Date,
		TripID:     vctx.TripID,
		Provenance: res.Provenance,
	})
	if err != nil {
		s.storeError("insert_expense")
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	s.publish(ctx, notify.Event{Op: notify.OpInsert, Expense: inserted})
	return inserted, nil
}

// Update edits an existing row. Trip membership and the original input text
// are immutable; the store enforces that and the published event carries the
// post-mutation row.
func (s *ExpenseService) Update(ctx context.Context, e core.Expense) (core.Expense, error) {
	if !e.Kind.IsValid() {
		return core.Expense{}, fmt.Errorf("invalid kind %q", e.Kind)
	}
	if e.Amount.Cents <= 0 {
		return core.Expense{}, core.ErrInvalidAmount
	}
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		s.storeError("update_expense")
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	updated, err := s.store.GetExpense(ctx, e.Owner, e.ID)
	if err != nil {
		s.storeError("get_expense")
		return core.Expense{}, fmt.Errorf("reload expense: %w", err)
	}
	s.publish(ctx, notify.Event{Op: notify.OpUpdate, Expense: updated})
	return updated, nil
}

// Delete removes the row and announces the removal. The event carries the
// last known state so subscribers can route it to the right view.
func (s *ExpenseService) Delete(ctx context.Context, owner, id string) error {
	e, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		s.storeError("get_expense")
		return err
	}
	if err := s.store.DeleteExpense(ctx, owner, id); err != nil {
		s.storeError("delete_expense")
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, notify.Event{Op: notify.OpDelete, Expense: e})
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, owner, id string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		s.storeError("get_expense")
	}
	return e, err
}

// LoadView is the bulk load behind live views.
func (s *ExpenseService) LoadView(ctx context.Context, vctx core.ViewContext) ([]core.Expense, error) {
	list, err := s.store.ListView(ctx, vctx)
	if err != nil {
		s.storeError("list_view")
	}
	return list, err
}

// Summary assembles the aggregation for a view: its records, the owner's
// categories and the period budget.
func (s *ExpenseService) Summary(ctx context.Context, vctx core.ViewContext) (aggregate.Summary, error) {
	expenses, err := s.store.ListView(ctx, vctx)
	if err != nil {
		s.storeError("list_view")
		return aggregate.Summary{}, fmt.Errorf("list view: %w", err)
	}
	categories, err := s.store.ListCategories(ctx, vctx.Owner)
	if err != nil {
		s.storeError("list_categories")
		return aggregate.Summary{}, fmt.Errorf("list categories: %w", err)
	}
	periodBudget, err := s.ledger.PeriodBudget(ctx, vctx)
	if err != nil {
		return aggregate.Summary{}, err
	}
	return aggregate.Summarize(expenses, categories, periodBudget), nil
}

func (s *ExpenseService) publish(ctx context.Context, ev notify.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			"op", string(ev.Op), "expense_id", ev.Expense.ID, "error", err)
		return
	}
	if s.obs != nil {
		s.obs.EventPublished(string(ev.Op))
	}
}
