package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lenox-isindu/bloomsoko-go/events"
	"github.com/lenox-isindu/bloomsoko-go/internal/logging"
	"github.com/lenox-isindu/bloomsoko-go/internal/rest"
	"github.com/lenox-isindu/bloomsoko-go/storage"
)

type mockOrdersAPI struct {
	mu        sync.Mutex
	orders    []Order
	listErr   error
	listCalls int
}

func (m *mockOrdersAPI) ListOrders(_ context.Context, token string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if token == "" {
		return nil, rest.ErrUnauthorized
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out, nil
}

func (m *mockOrdersAPI) GetOrder(_ context.Context, _, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, rest.ErrNotFound
}

func (m *mockOrdersAPI) CancelOrder(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = StatusCancelled
			return nil
		}
	}
	return rest.ErrNotFound
}

func (m *mockOrdersAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func newTestPoller(t *testing.T, api API, interval time.Duration) (*Poller, storage.Store) {
	store := storage.NewMemory()
	require.NoError(t, store.Set(context.Background(), storage.KeyToken, "tok"))
	p := NewPoller(api, store, events.NewBus(), logging.New("orders-test"), interval, time.Hour)
	return p, store
}

func TestRefresh_DedupesAndFilters(t *testing.T) {
	now := time.Now()
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: now.Add(-time.Minute)},
		{ID: "b", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "c", OrderNumber: "BS-2", Status: StatusPending, CreatedAt: now.Add(-3 * time.Hour)},
	}}
	p, _ := newTestPoller(t, api, time.Second)

	require.NoError(t, p.Refresh(context.Background()))
	held := p.Orders()
	require.Len(t, held, 1)
	assert.Equal(t, "a", held[0].ID)
}

func TestRefresh_FailureKeepsPreviousList(t *testing.T) {
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: time.Now()},
	}}
	p, _ := newTestPoller(t, api, time.Second)
	ctx := context.Background()
	require.NoError(t, p.Refresh(ctx))

	api.mu.Lock()
	api.listErr = errors.New("connection reset")
	api.mu.Unlock()

	err := p.Refresh(ctx)
	require.Error(t, err)
	assert.Len(t, p.Orders(), 1)
	assert.Error(t, p.Err())
}

func TestRefresh_UnauthorizedPublishesAuthExpired(t *testing.T) {
	api := &mockOrdersAPI{listErr: rest.ErrUnauthorized}
	store := storage.NewMemory()
	require.NoError(t, store.Set(context.Background(), storage.KeyToken, "tok"))
	bus := events.NewBus()
	p := NewPoller(api, store, bus, logging.New("orders-test"), time.Second, time.Hour)

	ch, cancel := bus.Subscribe(events.TopicAuthExpired)
	defer cancel()

	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, rest.ErrUnauthorized)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("auth_expired not published")
	}
}

func TestRefresh_MissingTokenIsUnauthorized(t *testing.T) {
	api := &mockOrdersAPI{}
	p := NewPoller(api, storage.NewMemory(), events.NewBus(), logging.New("orders-test"), time.Second, time.Hour)

	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, rest.ErrUnauthorized)
	assert.Equal(t, 0, api.callCount())
}

func TestRefreshOrder_SplicesById(t *testing.T) {
	now := time.Now()
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: now},
		{ID: "b", OrderNumber: "BS-2", Status: StatusPending, CreatedAt: now},
	}}
	p, _ := newTestPoller(t, api, time.Second)
	ctx := context.Background()
	require.NoError(t, p.Refresh(ctx))
	require.Equal(t, 1, api.callCount())

	api.mu.Lock()
	api.orders[0].Status = StatusCompleted
	api.mu.Unlock()

	require.NoError(t, p.RefreshOrder(ctx, "a"))
	// Single-order refresh must not trigger a full list fetch.
	assert.Equal(t, 1, api.callCount())

	for _, o := range p.Orders() {
		if o.ID == "a" {
			assert.Equal(t, StatusCompleted, o.Status)
		}
		if o.ID == "b" {
			assert.Equal(t, StatusPending, o.Status)
		}
	}
}

func TestRefreshOrder_AppendedRowDedupedByOrderNumber(t *testing.T) {
	now := time.Now()
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: now.Add(-time.Minute)},
	}}
	p, _ := newTestPoller(t, api, time.Second)
	ctx := context.Background()
	require.NoError(t, p.Refresh(ctx))

	// The backend now also has a newer row for the same business order.
	api.mu.Lock()
	api.orders = append(api.orders, Order{
		ID: "b", OrderNumber: "BS-1", Status: StatusCompleted, CreatedAt: now,
	})
	api.mu.Unlock()

	require.NoError(t, p.RefreshOrder(ctx, "b"))
	held := p.Orders()
	require.Len(t, held, 1)
	assert.Equal(t, "b", held[0].ID)
	assert.Equal(t, StatusCompleted, held[0].Status)
}

func TestCancel_UpdatesHeldOrder(t *testing.T) {
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: time.Now()},
	}}
	p, _ := newTestPoller(t, api, time.Second)
	ctx := context.Background()
	require.NoError(t, p.Refresh(ctx))

	require.NoError(t, p.Cancel(ctx, "a"))
	held := p.Orders()
	require.Len(t, held, 1)
	assert.Equal(t, StatusCancelled, held[0].Status)
}

func TestRun_PollsWhilePendingAndStopsOnCancel(t *testing.T) {
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusPending, CreatedAt: time.Now()},
	}}
	p, _ := newTestPoller(t, api, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Initial fetch plus several ticks.
	assert.GreaterOrEqual(t, api.callCount(), 3)
}

func TestRun_SkipsCyclesWithNoPendingOrders(t *testing.T) {
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusCompleted, CreatedAt: time.Now()},
	}}
	p, _ := newTestPoller(t, api, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_ = p.Run(ctx)
	// Only the initial fetch; every tick is skipped.
	assert.Equal(t, 1, api.callCount())
}

func TestRun_ForceRefreshFlagTriggersFetchAndIsCleared(t *testing.T) {
	api := &mockOrdersAPI{orders: []Order{
		{ID: "a", OrderNumber: "BS-1", Status: StatusCompleted, CreatedAt: time.Now()},
	}}
	p, store := newTestPoller(t, api, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Another "tab" signals that orders changed.
	require.NoError(t, store.Set(ctx, storage.KeyOrdersRefresh, "1"))

	_ = p.Run(ctx)
	assert.GreaterOrEqual(t, api.callCount(), 2)

	_, err := store.Get(context.Background(), storage.KeyOrdersRefresh)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
