// Package kv defines the durable key-value port used for client preferences,
// along with an in-memory implementation and a key-namespacing wrapper.
package kv

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("key not found")

// Store is a key-value persistence port. A zero ttl means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Prefixed namespaces every key of the underlying store, e.g. per browser session.
type Prefixed struct {
	store  Store
	prefix string
}

var _ Store = (*Prefixed)(nil)

// NewPrefixed returns a Store that prepends prefix + ":" to every key.
func NewPrefixed(store Store, prefix string) *Prefixed {
	return &Prefixed{store: store, prefix: prefix + ":"}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.store.Set(ctx, p.prefix+key, value, ttl)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}
