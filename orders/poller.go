package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lenox-isindu/bloomsoko-go/events"
	"github.com/lenox-isindu/bloomsoko-go/internal/rest"
	"github.com/lenox-isindu/bloomsoko-go/storage"
)

// API is the slice of the backend contract the poller consumes.
type API interface {
	ListOrders(ctx context.Context, token string) ([]Order, error)
	GetOrder(ctx context.Context, token, id string) (Order, error)
	CancelOrder(ctx context.Context, token, id string) error
}

// Poller keeps the order list fresh without manual refresh. While any held
// order is still pending it refetches on a fixed interval; a force-refresh
// flag set in storage (by a payment callback running elsewhere) triggers an
// immediate refetch regardless.
type Poller struct {
	api      API
	tokens   storage.Store
	bus      *events.Bus
	log      *slog.Logger
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	orders  []Order
	lastErr error
}

func NewPoller(api API, tokens storage.Store, bus *events.Bus, log *slog.Logger, interval, staleWindow time.Duration) *Poller {
	return &Poller{
		api:      api,
		tokens:   tokens,
		bus:      bus,
		log:      log,
		interval: interval,
		window:   staleWindow,
		now:      time.Now,
	}
}

// Orders returns a copy of the held, deduplicated, staleness-filtered list.
func (p *Poller) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out
}

// Err returns the error recorded by the most recent failed refresh, or nil.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Run fetches once, then polls until ctx is cancelled. It returns
// rest.ErrUnauthorized if the backend rejects the token: there is no point
// continuing, the embedding app must send the user to sign-in.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil && errors.Is(err, rest.ErrUnauthorized) {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			forced := p.consumeRefreshFlag(ctx)
			if !forced && !anyPending(p.Orders()) {
				continue // nothing in flight, skip this cycle
			}
			if err := p.Refresh(ctx); err != nil && errors.Is(err, rest.ErrUnauthorized) {
				return err
			}
		}
	}
}

// Refresh replaces the held list with a fresh, deduplicated, filtered fetch.
// On failure the previous list is left untouched.
func (p *Poller) Refresh(ctx context.Context) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	list, err := p.api.ListOrders(ctx, token)
	if err != nil {
		if errors.Is(err, rest.ErrUnauthorized) {
			p.bus.Publish(events.TopicAuthExpired, nil)
		}
		p.recordErr(fmt.Errorf("list orders: %w", err))
		p.log.Warn("order refresh failed, keeping previous list", "error", err)
		return fmt.Errorf("list orders: %w", err)
	}

	cleaned := FilterStale(Dedupe(list), p.window, p.now())

	p.mu.Lock()
	p.orders = cleaned
	p.lastErr = nil
	p.mu.Unlock()

	p.bus.Publish(events.TopicOrdersRefresh, len(cleaned))
	return nil
}

// RefreshOrder fetches a single order and splices it into the held list by
// id, without refetching everything.
func (p *Poller) RefreshOrder(ctx context.Context, id string) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	order, err := p.api.GetOrder(ctx, token, id)
	if err != nil {
		p.recordErr(fmt.Errorf("get order %s: %w", id, err))
		return fmt.Errorf("get order %s: %w", id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.orders {
		if p.orders[i].ID == id {
			p.orders[i] = order
			return nil
		}
	}
	// Not held yet. The new row may share an order number with a held one
	// (a retried creation), so the dedup rule applies to the append too.
	p.orders = Dedupe(append(p.orders, order))
	return nil
}

// Cancel requests cancellation server-side, then refreshes that one order so
// the held list reflects the new status.
func (p *Poller) Cancel(ctx context.Context, id string) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}
	if err := p.api.CancelOrder(ctx, token, id); err != nil {
		p.recordErr(fmt.Errorf("cancel order %s: %w", id, err))
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	return p.RefreshOrder(ctx, id)
}

// consumeRefreshFlag reports whether the cross-process force-refresh flag was
// set, clearing it if so.
func (p *Poller) consumeRefreshFlag(ctx context.Context) bool {
	_, err := p.tokens.Get(ctx, storage.KeyOrdersRefresh)
	if err != nil {
		return false
	}
	if err := p.tokens.Delete(ctx, storage.KeyOrdersRefresh); err != nil {
		p.log.Warn("could not clear orders refresh flag", "error", err)
	}
	return true
}

func (p *Poller) token(ctx context.Context) (string, error) {
	token, err := p.tokens.Get(ctx, storage.KeyToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.bus.Publish(events.TopicAuthExpired, nil)
			return "", rest.ErrUnauthorized
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

func (p *Poller) recordErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
}
