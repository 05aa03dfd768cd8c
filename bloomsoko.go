// Package bloomsoko is the Go client for the Bloomsoko storefront backend.
// It keeps a shopping cart and order list consistent between local state and
// the remote authoritative store: every cart mutation is followed by a
// refetch of server truth, order lists are deduplicated and staleness
// filtered on a polling loop, and payment callbacks are verified at most
// once per gate.
package bloomsoko

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lenox-isindu/bloomsoko-go/cart"
	"github.com/lenox-isindu/bloomsoko-go/config"
	"github.com/lenox-isindu/bloomsoko-go/events"
	"github.com/lenox-isindu/bloomsoko-go/identity"
	"github.com/lenox-isindu/bloomsoko-go/internal/logging"
	"github.com/lenox-isindu/bloomsoko-go/internal/rest"
	"github.com/lenox-isindu/bloomsoko-go/orders"
	"github.com/lenox-isindu/bloomsoko-go/payment"
	"github.com/lenox-isindu/bloomsoko-go/storage"
)

// App wires the reconciliation components around one anonymous identity and
// one shared storage backend.
type App struct {
	Identity string
	Cart     *cart.Store
	Orders   *orders.Poller
	Bus      *events.Bus
	Storage  storage.Store

	api *apiClient
}

// Open resolves the identity, builds the transport, and returns a ready App.
// Pass storage.NewMemory() semantics via an empty redis addr; set
// cfg.Storage.RedisAddr to share identity/token/flags across processes.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init("bloomsoko", cfg.Log.File, parseLevel(cfg.Log.Level))

	var store storage.Store
	if cfg.Storage.RedisAddr != "" {
		store = storage.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
		}))
	} else {
		store = storage.NewMemory()
	}

	id, err := identity.NewResolver(store).Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	api := &apiClient{rest: rest.NewClient(rest.Options{
		BaseURL:            cfg.API.BaseURL,
		Timeout:            cfg.API.Timeout,
		BreakerEnabled:     cfg.Breaker.Enabled,
		BreakerMaxFailures: cfg.Breaker.MaxFailures,
		BreakerOpenFor:     cfg.Breaker.OpenFor,
		Logger:             logging.New("rest"),
	})}

	bus := events.NewBus()
	return &App{
		Identity: id,
		Cart:     cart.NewStore(api, id, bus, logging.New("cart")),
		Orders: orders.NewPoller(api, store, bus, logging.New("orders"),
			cfg.Orders.PollInterval, cfg.Orders.StaleAfter),
		Bus:     bus,
		Storage: store,
		api:     api,
	}, nil
}

// NewPaymentGate returns a fresh one-shot verification gate. A gate is
// scoped to one payment-callback view instance; build a new one per
// callback, never reuse one across references.
func (a *App) NewPaymentGate() *payment.Gate {
	return payment.NewGate(a.api, a.Cart, a.Storage, a.Bus, logging.New("payment"))
}

// SetToken persists the bearer token obtained from authentication.
func (a *App) SetToken(ctx context.Context, token string) error {
	return a.Storage.Set(ctx, storage.KeyToken, token)
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
