// Package notify broadcasts cart changes to in-process observers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Change actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionUpdate = "update"
	ActionClear  = "clear"
	ActionImport = "import"
)

// Change describes the most recent mutation of one cart. Fields that do not
// apply to an action are left zero.
type Change struct {
	Action    string          `json:"action"`
	CartKey   string          `json:"cart_key"`
	ItemID    string          `json:"item_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	At        time.Time       `json:"at"`
}

// Observer receives change notifications. It runs on the goroutine of the
// mutation that caused the change and may read the cart it observes, but
// must not mutate it.
type Observer interface {
	OnChange(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, change Change)

// OnChange calls f(ctx, change).
func (f ObserverFunc) OnChange(ctx context.Context, change Change) {
	f(ctx, change)
}

type subscription struct {
	id       uint64
	observer Observer
}

// Bus fans a Change out to every subscribed observer, synchronously and in
// subscription order. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates an empty bus. Observer panics are logged to logger.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers observer and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(observer Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, observer: observer})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of subscribed observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers change to every observer before returning. A panicking
// observer is recovered and logged; the rest still run.
func (b *Bus) Publish(ctx context.Context, change Change) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s.observer, change)
	}
}

func (b *Bus) deliver(ctx context.Context, observer Observer, change Change) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.ErrorContext(ctx, "cart observer panicked",
				slog.String("action", change.Action),
				slog.String("cart_key", change.CartKey),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	observer.OnChange(ctx, change)
}
