package liveview

import (
	"context"
	"fmt"
	"sync"

	"kharcha/internal/core"
	"kharcha/internal/notify"
)

// Loader performs the initial bulk load for a view context: range-filtered,
// kind-and-trip-filtered, ordered by timestamp descending.
type Loader interface {
	LoadView(ctx context.Context, vctx core.ViewContext) ([]core.Expense, error)
}

// Reconciler owns the current View and its push subscription. Switching
// the view context tears down the previous subscription before the new one
// is established; events still in flight from a stale subscription are
// applied only to the stale View, never to the current one, and a
// fingerprint check drops them once the old goroutine notices the switch.
type Reconciler struct {
	loader Loader
	bus    notify.Bus

	mu      sync.Mutex
	current *View
	sub     notify.Subscription
	cancel  context.CancelFunc
}

func NewReconciler(loader Loader, bus notify.Bus) *Reconciler {
	return &Reconciler{loader: loader, bus: bus}
}

// SetContext switches the active view: unsubscribes the old context,
// bulk-loads the new one and starts applying its push stream. A failed
// bulk load leaves the view empty with a surfaced loading-error state,
// but the subscription stays up so later events are not lost.
func (r *Reconciler) SetContext(ctx context.Context, vctx core.ViewContext) (*View, error) {
	view := New(vctx)

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := r.bus.Subscribe(subCtx, notify.Filter{Owner: vctx.Owner, TripID: vctx.TripID})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe view %s: %w", vctx.Fingerprint(), err)
	}

	r.mu.Lock()
	r.teardownLocked()
	r.current = view
	r.sub = sub
	r.cancel = cancel
	r.mu.Unlock()

	records, err := r.loader.LoadView(ctx, vctx)
	if err != nil {
		view.SetLoadError(fmt.Errorf("load view: %w", err))
	} else {
		view.SetLoaded(records)
	}

	go r.pump(view, sub)

	if loadErr := view.Err(); loadErr != nil {
		return view, loadErr
	}
	return view, nil
}

// pump applies one subscription's events to the view it was opened for.
// The fingerprint check discards events once another context became
// current, covering streams that cannot be cancelled promptly.
func (r *Reconciler) pump(view *View, sub notify.Subscription) {
	for ev := range sub.Events() {
		r.mu.Lock()
		stale := r.current == nil || r.current.Fingerprint() != view.Fingerprint()
		r.mu.Unlock()
		if stale {
			return
		}
		view.Apply(ev)
	}
}

// Current returns the active view, or nil before the first SetContext.
func (r *Reconciler) Current() *View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// ApplyLocal records an optimistic insert after a successful persistence
// acknowledgement, if the record belongs to the active view. The eventual
// push notification for the same identifier deduplicates against it.
func (r *Reconciler) ApplyLocal(e core.Expense) bool {
	r.mu.Lock()
	view := r.current
	r.mu.Unlock()
	if view == nil {
		return false
	}
	return view.Insert(e)
}

// Close tears down the active subscription.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
	r.current = nil
}

// teardownLocked requires r.mu held.
func (r *Reconciler) teardownLocked() {
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
