// Package store implements CartStore, the ordered cart of one session kept
// in memory and mirrored to a storage.Storage after every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/ctnfastfood/cart/pkg/errors"

	"github.com/ctnfastfood/cart/internal/domain"
	"github.com/ctnfastfood/cart/internal/idgen"
	"github.com/ctnfastfood/cart/internal/notify"
	"github.com/ctnfastfood/cart/internal/snapshot"
	"github.com/ctnfastfood/cart/internal/storage"
)

// Options holds the collaborators of a CartStore. Zero fields get defaults:
// domain.DefaultStorageKey, idgen.UUID, a private bus, a discarding logger
// and time.Now.
type Options struct {
	Key    string
	IDs    idgen.Generator
	Bus    *notify.Bus
	Logger *slog.Logger
	Now    func() time.Time
}

// CartStore owns one cart. All methods are safe for concurrent use and are
// applied one at a time in arrival order.
//
// Changes are published after the cart lock is released, so observers may
// read the store. They must not mutate it.
type CartStore struct {
	mu      sync.Mutex
	storage storage.Storage
	key     string
	ids     idgen.Generator
	bus     *notify.Bus
	logger  *slog.Logger
	now     func() time.Time
	cart    domain.Cart

	// pending holds committed changes awaiting publication, in mutation
	// order. publishMu lets one goroutine at a time drain it.
	pending   []pendingChange
	publishMu sync.Mutex
}

type pendingChange struct {
	ctx    context.Context
	change notify.Change
}

// New creates a store for opts.Key and loads its persisted snapshot.
func New(ctx context.Context, st storage.Storage, opts Options) *CartStore {
	if opts.Key == "" {
		opts.Key = domain.DefaultStorageKey
	}
	if opts.IDs == nil {
		opts.IDs = idgen.UUID{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Bus == nil {
		opts.Bus = notify.NewBus(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &CartStore{
		storage: st,
		key:     opts.Key,
		ids:     opts.IDs,
		bus:     opts.Bus,
		logger:  opts.Logger.With(slog.String("cart_key", opts.Key)),
		now:     opts.Now,
	}
	s.Load(ctx)
	return s
}

// Key returns the storage key the cart is persisted under.
func (s *CartStore) Key() string {
	return s.key
}

// Load replaces the in-memory cart with the persisted snapshot. A missing,
// unreadable or malformed snapshot leaves the cart empty.
func (s *CartStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = domain.Cart{}

	data, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return
		}
		s.logger.WarnContext(ctx, "failed to read cart snapshot, starting empty",
			slog.String("error", err.Error()),
		)
		return
	}

	items, err := snapshot.Decode(data, s.ids)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt cart snapshot",
			slog.String("error", err.Error()),
		)
		return
	}
	s.cart.Items = items
}

// AddItem adds one unit of (name, category). An existing entry has its
// quantity incremented; otherwise a new item with quantity 1 is appended.
// The resulting item is returned.
func (s *CartStore) AddItem(ctx context.Context, name, category string, price decimal.Decimal, imageRef string) (domain.LineItem, error) {
	if err := domain.ValidateUnitPrice(price); err != nil {
		return domain.LineItem{}, apperrors.InvalidInput(err.Error())
	}
	if price.IsZero() {
		price = decimal.Zero
	}

	defer s.publishPending()
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cart.FindItemIndex(name, category)
	if idx >= 0 {
		if s.cart.Items[idx].Quantity >= domain.MaxQuantity {
			return s.cart.Items[idx], apperrors.InvalidInput(
				fmt.Sprintf("quantity of %s cannot exceed %d", name, domain.MaxQuantity))
		}
		s.cart.Items[idx].Quantity++
	} else {
		s.cart.Items = append(s.cart.Items, domain.LineItem{
			ID:        idgen.Unique(s.ids, s.idTaken),
			Name:      name,
			Category:  category,
			UnitPrice: price,
			ImageRef:  imageRef,
			Quantity:  1,
		})
		idx = len(s.cart.Items) - 1
	}
	item := s.cart.Items[idx]

	err := s.commit(ctx, notify.Change{
		Action:   notify.ActionAdd,
		ItemID:   item.ID,
		Name:     item.Name,
		Category: item.Category,
		Quantity: item.Quantity,
	})

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("item_id", item.ID),
		slog.String("name", item.Name),
		slog.Int("quantity", item.Quantity),
	)

	return item, err
}

// RemoveItem deletes the item with the given id. It reports whether an item
// was removed; an unknown id changes nothing.
func (s *CartStore) RemoveItem(ctx context.Context, id string) (bool, error) {
	defer s.publishPending()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, id)
}

func (s *CartStore) removeLocked(ctx context.Context, id string) (bool, error) {
	idx := s.cart.IndexOfID(id)
	if idx < 0 {
		return false, nil
	}
	removed := s.cart.RemoveAt(idx)

	err := s.commit(ctx, notify.Change{
		Action:   notify.ActionRemove,
		ItemID:   removed.ID,
		Name:     removed.Name,
		Category: removed.Category,
	})

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("item_id", removed.ID),
		slog.String("name", removed.Name),
	)

	return true, err
}

// UpdateQuantity sets the quantity of the item with the given id. A
// quantity of zero or less removes the item; one above domain.MaxQuantity
// is rejected. It reports whether an item was changed; an unknown id
// changes nothing.
func (s *CartStore) UpdateQuantity(ctx context.Context, id string, quantity int) (bool, error) {
	if quantity > domain.MaxQuantity {
		return false, apperrors.InvalidInput(fmt.Sprintf("quantity cannot exceed %d", domain.MaxQuantity))
	}

	defer s.publishPending()
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(ctx, id)
	}

	idx := s.cart.IndexOfID(id)
	if idx < 0 {
		return false, nil
	}
	s.cart.Items[idx].Quantity = quantity
	item := s.cart.Items[idx]

	err := s.commit(ctx, notify.Change{
		Action:   notify.ActionUpdate,
		ItemID:   item.ID,
		Name:     item.Name,
		Category: item.Category,
		Quantity: item.Quantity,
	})

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("item_id", item.ID),
		slog.Int("quantity", quantity),
	)

	return true, err
}

// Clear empties the cart. Clearing an empty cart is a conflict.
func (s *CartStore) Clear(ctx context.Context) error {
	defer s.publishPending()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart.Items) == 0 {
		return apperrors.Conflict("cart is already empty")
	}
	s.cart.Items = nil

	err := s.commit(ctx, notify.Change{Action: notify.ActionClear})
	s.logger.InfoContext(ctx, "cart cleared")
	return err
}

// Import replaces the cart with the decoded snapshot in data. An invalid
// payload is rejected and the cart is left as it was.
func (s *CartStore) Import(ctx context.Context, data []byte) (domain.Summary, error) {
	defer s.publishPending()
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := snapshot.Decode(data, s.ids)
	if err != nil {
		return domain.Summary{}, err
	}
	s.cart.Items = items

	err = s.commit(ctx, notify.Change{Action: notify.ActionImport})

	s.logger.InfoContext(ctx, "cart imported",
		slog.Int("items", len(items)),
		slog.Int("item_count", s.cart.ItemCount()),
	)

	return s.cart.Summarize(), err
}

// Export returns the cart as an indented JSON array in the snapshot format.
func (s *CartStore) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.EncodeIndent(s.cart.Items)
}

// Flush writes the current snapshot to storage.
func (s *CartStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Release writes the cart out before it is unloaded. An empty cart deletes
// its key instead of leaving an empty snapshot behind.
func (s *CartStore) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart.Items) > 0 {
		return s.persistLocked(ctx)
	}
	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete empty cart snapshot",
			slog.String("error", err.Error()),
		)
		return apperrors.Unavailable("cart could not be released", err)
	}
	return nil
}

// Total returns sum(unit price * quantity); zero for an empty cart.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.TotalAmount()
}

// ItemCount returns the sum of all quantities.
func (s *CartStore) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.ItemCount()
}

// Items returns a copy of the items in insertion order.
func (s *CartStore) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Summary returns the items together with the total and item count.
func (s *CartStore) Summary() domain.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Summarize()
}

func (s *CartStore) idTaken(id string) bool {
	return s.cart.IndexOfID(id) >= 0
}

// commit persists the cart and queues change, filled in with the cart
// figures, for publication once the lock is released. The change is queued
// even if persisting fails; the next write retries.
func (s *CartStore) commit(ctx context.Context, change notify.Change) error {
	err := s.persistLocked(ctx)

	change.CartKey = s.key
	change.ItemCount = s.cart.ItemCount()
	change.Total = s.cart.TotalAmount()
	change.At = s.now().UTC()
	s.pending = append(s.pending, pendingChange{ctx: ctx, change: change})

	return err
}

// publishPending delivers queued changes in order. It must be called
// without s.mu held. A caller returns only after its own change, and every
// change queued before it, has been delivered.
func (s *CartStore) publishPending() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending[0] = pendingChange{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.bus.Publish(next.ctx, next.change)
	}
}

func (s *CartStore) persistLocked(ctx context.Context) error {
	data, err := snapshot.Encode(s.cart.Items)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart snapshot",
			slog.String("error", err.Error()),
		)
		return apperrors.Unavailable("cart could not be saved", err)
	}
	return nil
}
