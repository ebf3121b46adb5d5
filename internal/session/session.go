// Package session keeps one CartStore per browser session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ctnfastfood/cart/pkg/errors"

	"github.com/ctnfastfood/cart/internal/idgen"
	"github.com/ctnfastfood/cart/internal/notify"
	"github.com/ctnfastfood/cart/internal/storage"
	"github.com/ctnfastfood/cart/internal/store"
)

// MaxSessionIDLength bounds the session id accepted from clients.
const MaxSessionIDLength = 128

// Registry lazily creates and caches the store of each session. Every store
// shares the registry's storage, id generator and bus. Stores left unused
// for longer than the idle timeout are released by EvictIdle.
type Registry struct {
	mu      sync.Mutex
	stores  map[string]*entry
	storage storage.Storage
	baseKey string
	ids     idgen.Generator
	bus     *notify.Bus
	logger  *slog.Logger
	now     func() time.Time
}

type entry struct {
	store    *store.CartStore
	lastUsed time.Time
}

// NewRegistry creates an empty registry. Session keys are "<baseKey>:<id>".
func NewRegistry(st storage.Storage, baseKey string, ids idgen.Generator, bus *notify.Bus, logger *slog.Logger) *Registry {
	return &Registry{
		stores:  make(map[string]*entry),
		storage: st,
		baseKey: baseKey,
		ids:     ids,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// Key returns the storage key of sessionID.
func (r *Registry) Key(sessionID string) string {
	return r.baseKey + ":" + sessionID
}

// ValidateID rejects empty, oversized or non-printable session ids.
func ValidateID(sessionID string) error {
	if sessionID == "" {
		return apperrors.InvalidInput("session id is required")
	}
	if len(sessionID) > MaxSessionIDLength {
		return apperrors.InvalidInput("session id is too long")
	}
	if strings.IndexFunc(sessionID, func(r rune) bool { return r <= ' ' || r == 0x7f }) >= 0 {
		return apperrors.InvalidInput("session id must not contain whitespace or control characters")
	}
	return nil
}

// Get returns the store of sessionID, loading it from storage on first use.
// Loading happens outside the registry lock, so a slow storage read only
// delays callers of the same session.
func (r *Registry) Get(ctx context.Context, sessionID string) (*store.CartStore, error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.stores[sessionID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.store, nil
	}
	r.mu.Unlock()

	s := store.New(ctx, r.storage, store.Options{
		Key:    r.Key(sessionID),
		IDs:    r.ids,
		Bus:    r.bus,
		Logger: r.logger,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have loaded the session meanwhile; keep the first.
	if e, ok := r.stores[sessionID]; ok {
		e.lastUsed = r.now()
		return e.store, nil
	}
	r.stores[sessionID] = &entry{store: s, lastUsed: r.now()}
	return s, nil
}

// Close releases the store of sessionID and forgets it. Closing a session
// that is not open is a no-op. A store whose release fails stays open so
// its state is not lost.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	e, ok := r.stores[sessionID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := e.store.Release(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.stores[sessionID] == e {
		delete(r.stores, sessionID)
	}
	r.mu.Unlock()
	return nil
}

// EvictIdle releases and forgets every store unused for longer than idle.
// It returns the number of stores evicted and the joined release errors;
// a store that cannot be released is kept.
func (r *Registry) EvictIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	candidates := make(map[string]*entry)
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) {
			candidates[id] = e
		}
	}
	r.mu.Unlock()

	var errs []error
	evicted := 0
	for id, e := range candidates {
		if err := e.store.Release(ctx); err != nil {
			r.logger.ErrorContext(ctx, "failed to release idle cart",
				slog.String("cart_key", e.store.Key()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}

		r.mu.Lock()
		if cur, ok := r.stores[id]; ok && cur == e && e.lastUsed.Before(cutoff) {
			delete(r.stores, id)
			evicted++
		}
		r.mu.Unlock()
	}

	if evicted > 0 || len(errs) > 0 {
		r.logger.InfoContext(ctx, "evicted idle carts",
			slog.Int("carts", evicted),
			slog.Int("failed", len(errs)),
		)
	}
	return evicted, errors.Join(errs...)
}

// RunEvictor calls EvictIdle every interval until ctx is cancelled.
func (r *Registry) RunEvictor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.EvictIdle(ctx, idle)
		}
	}
}

// FlushAll releases every open store and returns the joined errors. The
// stores stay open.
func (r *Registry) FlushAll(ctx context.Context) error {
	r.mu.Lock()
	stores := make([]*store.CartStore, 0, len(r.stores))
	for _, e := range r.stores {
		stores = append(stores, e.store)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range stores {
		if err := s.Release(ctx); err != nil {
			r.logger.ErrorContext(ctx, "failed to flush cart",
				slog.String("cart_key", s.Key()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}

	r.logger.InfoContext(ctx, "flushed open carts",
		slog.Int("carts", len(stores)),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
