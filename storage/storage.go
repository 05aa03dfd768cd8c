// Package storage is the client-side persistence analog: a small key/value
// store holding the anonymous identity, the bearer token, and cross-process
// signal flags. The in-memory backend scopes values to one process; the Redis
// backend shares them, which is what makes the orders refresh flag visible to
// a second "tab".
package storage

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyIdentity      = "bloomsoko:anonymous_id"
	KeyToken         = "bloomsoko:token"
	KeyOrdersRefresh = "bloomsoko:orders_refresh"
)

var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
