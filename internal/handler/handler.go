// Package handler exposes the storefront core over HTTP with JSON bodies.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/domain/pricing"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/session"
)

// SessionHeader carries the session id in both directions.
const SessionHeader = "X-Session-ID"

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	Calculator   pricing.Calculator
}

// Handler serves the catalog, cart and currency endpoints. Every request is
// bound to a session from the registry.
type Handler struct {
	sessions *session.Registry
	products product.Repository
	coupons  coupon.Quoter
	scorer   personalization.Scorer

	calc         pricing.Calculator
	imageBaseURL string

	mutations metric.Int64Counter
}

// New constructs a Handler with the required dependencies.
func New(
	cfg Config,
	sessions *session.Registry,
	products product.Repository,
	coupons coupon.Quoter,
	scorer personalization.Scorer,
	meter metric.Meter,
) (*Handler, error) {
	mutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart mutations counter")
	}
	return &Handler{
		sessions:     sessions,
		products:     products,
		coupons:      coupons,
		scorer:       scorer,
		calc:         cfg.Calculator,
		imageBaseURL: cfg.ImageBaseURL,
		mutations:    mutations,
	}, nil
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.withSession(h.listProducts))
	mux.HandleFunc("GET /api/products/search", h.withSession(h.searchProducts))
	mux.HandleFunc("GET /api/products/{id}", h.withSession(h.getProduct))

	mux.HandleFunc("GET /api/cart", h.withSession(h.getCart))
	mux.HandleFunc("DELETE /api/cart", h.withSession(h.clearCart))
	mux.HandleFunc("POST /api/cart/items", h.withSession(h.addItem))
	mux.HandleFunc("PATCH /api/cart/items/{id}", h.withSession(h.updateItem))
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.withSession(h.removeItem))
	mux.HandleFunc("POST /api/cart/toggle", h.withSession(h.toggleCart))
	mux.HandleFunc("GET /api/cart/summary", h.withSession(h.cartSummary))

	mux.HandleFunc("GET /api/currencies", h.listCurrencies)
	mux.HandleFunc("GET /api/currency", h.withSession(h.getCurrency))
	mux.HandleFunc("PUT /api/currency", h.withSession(h.setCurrency))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves the caller's session and echoes its id back.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := h.sessions.Get(r.Context(), r.Header.Get(SessionHeader))
		w.Header().Set(SessionHeader, s.ID)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("storefront.session_id", s.ID))
		next(w, r, s)
	}
}

func (h *Handler) imageURL(path string) string {
	if path == "" {
		return ""
	}
	return h.imageBaseURL + path
}
