// Package session keeps one cart/currency/personalization context per
// browser session. Carts live only in process memory; currency and
// personalization state go through the kv store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/internal/domain/cart"
	"github.com/xenking/apparel-storefront/internal/domain/currency"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/domain/pricing"
	"github.com/xenking/apparel-storefront/internal/storage/kv"
)

// Session is the explicit request context of one client.
type Session struct {
	ID       string
	Cart     *cart.Store
	Currency *currency.Service
	Tracker  *personalization.Tracker
}

// Config tunes a Registry.
type Config struct {
	// TTL evicts sessions idle for longer. Zero keeps sessions forever.
	TTL time.Duration
	// MaxSessions caps the registry. Creating a session beyond it evicts the
	// least recently seen one. Zero means unbounded.
	MaxSessions int
	Calculator  pricing.Calculator
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Registry creates sessions on first use and evicts idle ones.
type Registry struct {
	store kv.Store
	lg    *zap.Logger
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry persisting preferences into store.
func NewRegistry(store kv.Store, lg *zap.Logger, cfg Config) *Registry {
	return &Registry{
		store:    store,
		lg:       lg,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the session for id, creating it when unknown. Ids that are not
// UUIDs are replaced with a fresh one; callers must hand the returned ID back
// to the client.
func (r *Registry) Get(ctx context.Context, id string) (s *Session, created bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}
	if s, ok := r.lookup(id); ok {
		return s, false
	}

	// Building a session reads the kv store, so it happens unlocked. When two
	// requests race on the same id the first insert wins.
	fresh := r.newSession(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = now
		return e.session, false
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.evictOldestLocked()
	}
	r.sessions[id] = &entry{session: fresh, lastSeen: now}
	return fresh, true
}

func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

func (r *Registry) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range r.sessions {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	delete(r.sessions, oldestID)
	r.lg.Debug("Evicted least recently seen session", zap.String("session_id", oldestID))
}

func (r *Registry) newSession(ctx context.Context, id string) *Session {
	lg := r.lg.With(zap.String("session_id", id))
	store := kv.NewPrefixed(r.store, "session:"+id)

	c := cart.New(cart.WithCalculator(r.cfg.Calculator))
	c.Subscribe(cart.LogListener(lg))

	lg.Debug("Session created")
	return &Session{
		ID:       id,
		Cart:     c,
		Currency: currency.New(ctx, store, lg),
		Tracker:  personalization.NewTracker(store, lg),
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle longer than the TTL and returns how many went.
func (r *Registry) Sweep() int {
	if r.cfg.TTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.TTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.lg.Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}
