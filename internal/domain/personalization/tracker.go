package personalization

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/internal/storage/kv"
)

const (
	// StorageKey is the kv key holding the encoded Preferences.
	StorageKey = "personalization"
	// Retention is how long preferences survive without a visit.
	Retention = 365 * 24 * time.Hour
)

// Tracker records browsing history into a kv.Store. Storage is best effort:
// read failures yield empty preferences and write failures are only logged.
type Tracker struct {
	store kv.Store
	lg    *zap.Logger
	now   func() time.Time

	// mu serializes read-modify-write cycles of one client.
	mu sync.Mutex
}

// NewTracker creates a Tracker over store.
func NewTracker(store kv.Store, lg *zap.Logger) *Tracker {
	return &Tracker{
		store: store,
		lg:    lg,
		now:   time.Now,
	}
}

// Load returns the stored preferences, or empty preferences when none are
// usable.
func (t *Tracker) Load(ctx context.Context) Preferences {
	raw, err := t.store.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.lg.Warn("Failed to read preferences", zap.Error(err))
		}
		return Preferences{}
	}

	var p Preferences
	if err := p.Decode(jx.DecodeBytes(raw)); err != nil {
		t.lg.Warn("Discarding corrupt preferences", zap.Error(err))
		return Preferences{}
	}
	if !p.LastVisit.IsZero() && t.now().Sub(p.LastVisit) > Retention {
		return Preferences{}
	}
	p.truncate()
	return p
}

// RecordProductView moves the product and its category to the front of the history.
func (t *Tracker) RecordProductView(ctx context.Context, productID, categoryID int64) {
	t.update(ctx, func(p *Preferences) { p.ViewedProduct(productID, categoryID) })
}

// RecordSearch moves term to the front of the search history.
func (t *Tracker) RecordSearch(ctx context.Context, term string) {
	if normalizeTerm(term) == "" {
		return
	}
	t.update(ctx, func(p *Preferences) { p.Searched(term) })
}

// Reset forgets all history.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Remove(ctx, StorageKey); err != nil {
		t.lg.Warn("Failed to remove preferences", zap.Error(err))
	}
}

func (t *Tracker) update(ctx context.Context, fn func(p *Preferences)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.Load(ctx)
	fn(&p)
	p.LastVisit = t.now().UTC()

	var e jx.Encoder
	p.Encode(&e)
	if err := t.store.Set(ctx, StorageKey, e.Bytes(), Retention); err != nil {
		t.lg.Warn("Failed to save preferences", zap.Error(err))
	}
}
