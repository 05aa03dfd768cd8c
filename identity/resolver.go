// Package identity produces the stable anonymous handle that scopes a cart
// before the user authenticates.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lenox-isindu/bloomsoko-go/storage"
)

type Resolver struct {
	store storage.Store

	mu     sync.Mutex
	cached string
}

func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the persisted anonymous identity, generating and persisting
// one on first use. Repeat calls return the same value without touching the
// store again.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return r.cached, nil
	}

	id, err := r.store.Get(ctx, storage.KeyIdentity)
	if err == nil {
		r.cached = id
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("read identity: %w", err)
	}

	id = newIdentity()
	if err := r.store.Set(ctx, storage.KeyIdentity, id); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	r.cached = id
	return id, nil
}

// Not security-sensitive: a pre-authentication handle, same information
// content as a timestamp plus random suffix.
func newIdentity() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("anon-%d-%s", time.Now().UnixMilli(), suffix)
}
