// Package payment holds the verification gate run by a payment-callback
// view: it confirms a gateway reference with the backend at most once, and
// only clears the cart on a confirmed success.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lenox-isindu/bloomsoko-go/events"
	"github.com/lenox-isindu/bloomsoko-go/storage"
)

type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

var (
	ErrMissingReference = errors.New("payment: no payment reference in callback")
	ErrMissingToken     = errors.New("payment: authentication token not found")
	ErrInFlight         = errors.New("payment: verification already in progress")
	ErrNotConfirmed     = errors.New("payment: backend did not confirm payment")
)

// Result carries the order fields echoed by a successful verification, used
// by the confirmation view.
type Result struct {
	OrderNumber    string
	Total          float64
	RecipientEmail string
}

// API is the slice of the backend contract the gate consumes.
type API interface {
	VerifyPayment(ctx context.Context, token, reference string) (Result, error)
}

// Cart is what the gate needs from the cart store on success: a destructive
// clear followed by a forced refresh.
type Cart interface {
	Clear(ctx context.Context) bool
	Fetch(ctx context.Context) error
}

// Gate is a one-shot state machine: idle → processing → success|error. The
// idle → processing transition is a one-way door taken under the mutex, so
// no amount of repeated Verify calls can issue a second verification request
// for this instance.
type Gate struct {
	api    API
	cart   Cart
	tokens storage.Store
	bus    *events.Bus
	log    *slog.Logger

	mu     sync.Mutex
	state  State
	result Result
	err    error
}

func NewGate(api API, cart Cart, tokens storage.Store, bus *events.Bus, log *slog.Logger) *Gate {
	return &Gate{api: api, cart: cart, tokens: tokens, bus: bus, log: log, state: StateIdle}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Result returns the verified order details once the gate reached success.
func (g *Gate) Result() (Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.state == StateSuccess
}

// Err returns the terminal error once the gate reached the error state.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateError {
		return nil
	}
	return g.err
}

// Verify resolves the reference from the two callback parameter names the
// gateway may use, then verifies it with the backend. The first call wins;
// later calls return the settled outcome (or ErrInFlight while the first is
// still running) without issuing another request.
func (g *Gate) Verify(ctx context.Context, reference, trxref string) (Result, error) {
	ref := reference
	if ref == "" {
		ref = trxref
	}

	g.mu.Lock()
	switch g.state {
	case StateSuccess:
		r := g.result
		g.mu.Unlock()
		return r, nil
	case StateError:
		err := g.err
		g.mu.Unlock()
		return Result{}, err
	case StateProcessing:
		g.mu.Unlock()
		return Result{}, ErrInFlight
	}
	g.state = StateProcessing
	g.mu.Unlock()

	// Preconditions short-circuit to the terminal error state with no call.
	if ref == "" {
		return Result{}, g.fail(ErrMissingReference)
	}
	token, err := g.tokens.Get(ctx, storage.KeyToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, g.fail(ErrMissingToken)
		}
		return Result{}, g.fail(fmt.Errorf("read token: %w", err))
	}

	result, err := g.api.VerifyPayment(ctx, token, ref)
	if err != nil {
		g.log.Warn("payment verification failed", "reference", ref, "error", err)
		return Result{}, g.fail(fmt.Errorf("verify %s: %w", ref, err))
	}

	// Confirmed: drop the cart and let any orders view elsewhere know.
	if !g.cart.Clear(ctx) {
		g.log.Warn("cart clear failed after confirmed payment", "reference", ref)
	}
	if err := g.cart.Fetch(ctx); err != nil {
		g.log.Warn("cart refresh failed after confirmed payment", "error", err)
	}
	if err := g.tokens.Set(ctx, storage.KeyOrdersRefresh, "1"); err != nil {
		g.log.Warn("could not set orders refresh flag", "error", err)
	}
	g.bus.Publish(events.TopicOrdersRefresh, result.OrderNumber)

	g.mu.Lock()
	g.state = StateSuccess
	g.result = result
	g.mu.Unlock()
	return result, nil
}

func (g *Gate) fail(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateError
	g.err = err
	return err
}
