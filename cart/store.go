package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lenox-isindu/bloomsoko-go/events"
)

// ErrQuantityTooLow is returned by UpdateQuantity for quantities below one.
// The store does not translate that into a removal; the caller must call
// Remove explicitly.
var ErrQuantityTooLow = errors.New("cart: quantity must be at least 1, remove the item instead")

// API is the slice of the backend contract the store consumes.
type API interface {
	FetchCart(ctx context.Context, identity string) ([]Item, error)
	AddItem(ctx context.Context, identity, productID string, quantity int, isBooking bool) error
	RemoveItem(ctx context.Context, identity, itemID string) error
	UpdateQuantity(ctx context.Context, identity, itemID string, quantity int) error
	ClearCart(ctx context.Context, identity string) error
}

// Store holds the server-authoritative cart item list. Every mutation is a
// round trip followed by an unconditional refetch, so the local view only
// ever shows server truth, never an optimistic guess.
type Store struct {
	api      API
	identity string
	bus      *events.Bus
	log      *slog.Logger
	sfg      singleflight.Group

	mu       sync.Mutex
	items    []Item
	inFlight int
	lastErr  error
	// Monotonic fetch tickets. A refetch whose ticket is older than the last
	// applied one lost the race to a newer refetch and is discarded, so
	// interleaved mutate+refetch pairs cannot resurrect stale state.
	nextSeq    uint64
	appliedSeq uint64
}

func NewStore(api API, identity string, bus *events.Bus, log *slog.Logger) *Store {
	return &Store{api: api, identity: identity, bus: bus, log: log}
}

// Items returns a copy of the current snapshot.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Loading reports whether any fetch is still in flight, including ones whose
// result will be discarded as stale.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// Err returns the error recorded by the most recent failed operation, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Count recomputes the item count from the current snapshot on every call.
func (s *Store) Count() int {
	return Count(s.Items())
}

// Total recomputes the cart total from the current snapshot on every call.
func (s *Store) Total() float64 {
	return Total(s.Items())
}

// Fetch reloads the cart from the server. On failure the local list is
// emptied rather than left stale: the view must never show items that could
// not be confirmed as current.
func (s *Store) Fetch(ctx context.Context) error {
	seq := s.takeTicket()

	v, err, _ := s.sfg.Do(s.identity, func() (interface{}, error) {
		return s.api.FetchCart(ctx, s.identity)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if seq <= s.appliedSeq {
		// A newer fetch already landed; this response is stale.
		return nil
	}
	s.appliedSeq = seq

	if err != nil {
		s.items = nil
		s.lastErr = fmt.Errorf("fetch cart: %w", err)
		s.log.Warn("cart fetch failed", "error", err)
		return s.lastErr
	}
	s.items = v.([]Item)
	s.lastErr = nil
	return nil
}

// Add sends an add request and refetches before returning, so subsequent
// Count/Total reads reflect server truth. The error is propagated: callers
// must not assume success.
func (s *Store) Add(ctx context.Context, product Product, quantity int, isBooking bool) error {
	if quantity < 1 {
		quantity = 1
	}
	if err := s.api.AddItem(ctx, s.identity, product.ID, quantity, isBooking); err != nil {
		s.recordErr(fmt.Errorf("add item: %w", err))
		return fmt.Errorf("add item: %w", err)
	}
	if err := s.refetch(ctx); err != nil {
		return err
	}
	s.bus.Publish(events.TopicCartChanged, s.Count())
	return nil
}

// Remove deletes a cart line unconditionally; any confirmation step belongs
// to the caller.
func (s *Store) Remove(ctx context.Context, itemID string) error {
	if err := s.api.RemoveItem(ctx, s.identity, itemID); err != nil {
		s.recordErr(fmt.Errorf("remove item: %w", err))
		return fmt.Errorf("remove item: %w", err)
	}
	if err := s.refetch(ctx); err != nil {
		return err
	}
	s.bus.Publish(events.TopicCartChanged, s.Count())
	return nil
}

func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 1 {
		return ErrQuantityTooLow
	}
	if err := s.api.UpdateQuantity(ctx, s.identity, itemID, quantity); err != nil {
		s.recordErr(fmt.Errorf("update quantity: %w", err))
		return fmt.Errorf("update quantity: %w", err)
	}
	if err := s.refetch(ctx); err != nil {
		return err
	}
	s.bus.Publish(events.TopicCartChanged, s.Count())
	return nil
}

// Clear issues a destructive clear. When the server call fails the local
// list is still emptied and the error recorded: an empty-looking cart is
// preferred over a stale one here. The return value reports server success.
func (s *Store) Clear(ctx context.Context) bool {
	err := s.api.ClearCart(ctx, s.identity)

	s.mu.Lock()
	s.nextSeq++
	s.appliedSeq = s.nextSeq // invalidate in-flight refetches of the old cart
	s.items = nil
	if err != nil {
		s.lastErr = fmt.Errorf("clear cart: %w", err)
		s.log.Warn("cart clear failed, local state cleared anyway", "error", err)
	} else {
		s.lastErr = nil
	}
	s.mu.Unlock()

	s.bus.Publish(events.TopicCartChanged, 0)
	return err == nil
}

// refetch reloads server truth after a mutation. The singleflight slot is
// forgotten first: a fetch that started before the mutation holds a
// pre-mutation snapshot, and joining it would apply that snapshot under this
// refetch's newer ticket, making stale state authoritative.
func (s *Store) refetch(ctx context.Context) error {
	s.sfg.Forget(s.identity)
	return s.Fetch(ctx)
}

func (s *Store) takeTicket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	s.inFlight++
	return s.nextSeq
}

func (s *Store) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}
