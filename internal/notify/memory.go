package notify

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 64

// MemoryBus is the in-process Bus used by single-node deployments and
// tests. Delivery is per-subscriber buffered; a subscriber that stops
// draining loses events rather than blocking publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[*memorySub]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySub]struct{})}
}

type memorySub struct {
	bus    *MemoryBus
	filter Filter
	ch     chan Event
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.filter.Matches(ev.Expense) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			slog.Warn("notify: dropping event for slow subscriber",
				"op", ev.Op, "expense_id", ev.Expense.ID, "owner", s.filter.Owner)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, f Filter) (Subscription, error) {
	s := &memorySub{bus: b, filter: f, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}
