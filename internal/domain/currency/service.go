package currency

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/internal/storage/kv"
)

// StorageKey is the kv key holding the selected currency code.
const StorageKey = "currency"

// Service holds the selected display currency of one client.
type Service struct {
	store kv.Store
	lg    *zap.Logger

	mu      sync.RWMutex
	current Currency
}

// New restores the persisted selection from store, falling back to Base when
// the key is missing, unreadable or names an unsupported code.
func New(ctx context.Context, store kv.Store, lg *zap.Logger) *Service {
	s := &Service{
		store:   store,
		lg:      lg,
		current: byCode[Base],
	}

	raw, err := store.Get(ctx, StorageKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		lg.Warn("Failed to read currency preference", zap.Error(err))
	default:
		if c, ok := Lookup(Code(raw)); ok {
			s.current = c
		} else {
			lg.Debug("Ignoring unknown stored currency", zap.ByteString("code", raw))
		}
	}
	return s
}

// Current returns the selected currency.
func (s *Service) Current() Currency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrency selects and persists code. Unsupported codes leave the current
// selection unchanged. A failed write is logged; the live selection still changes.
func (s *Service) SetCurrency(ctx context.Context, code Code) error {
	c, ok := Lookup(code)
	if !ok {
		return errors.Wrapf(ErrUnsupportedCurrency, "%q", code)
	}

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	if err := s.store.Set(ctx, StorageKey, []byte(c.Code), 0); err != nil {
		s.lg.Warn("Failed to persist currency preference",
			zap.String("code", string(c.Code)),
			zap.Error(err),
		)
	}
	return nil
}

// Convert returns amount in the selected currency.
func (s *Service) Convert(amount decimal.Decimal) decimal.Decimal {
	return s.Current().Convert(amount)
}

// Format renders amount in the selected currency.
func (s *Service) Format(amount decimal.Decimal) string {
	return s.Current().Format(amount)
}
