// Package notify carries expense change notifications from the store to
// live views. Subscriptions are scoped to one (owner, trip-context) pair
// and have an explicit start/stop lifecycle tied to view-context changes.
package notify

import (
	"context"

	"kharcha/internal/core"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one tagged change. The row is the post-mutation state; for
// deletes only the identifier is meaningful.
type Event struct {
	Op      Op           `json:"op"`
	Expense core.Expense `json:"expense"`
}

// Filter scopes a subscription: owner equality plus trip-context equality.
// An empty TripID selects the casual context, not "any trip".
type Filter struct {
	Owner  string
	TripID string
}

func (f Filter) Matches(e core.Expense) bool {
	return e.Owner == f.Owner && e.TripID == f.TripID
}

// Subscription is a live event stream. Close is idempotent and must be
// called when the consuming view context is torn down.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Bus publishes and subscribes to change events.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}
