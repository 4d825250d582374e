package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-storefront/internal/domain/currency"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/session"
)

// listProducts returns the catalog ordered by the session's personalization score.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, s *session.Session) {
	products, prefs, err := h.catalogWithPrefs(r, s)
	if err != nil {
		writeInternal(w, r, errors.Wrap(err, "list products"))
		return
	}
	h.writeProducts(w, h.scorer.Rank(products, prefs), s.Currency.Current())
}

// searchProducts filters the catalog by a free-text query and records the term.
func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request, s *session.Session) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q != "" {
		s.Tracker.RecordSearch(r.Context(), q)
	}

	products, prefs, err := h.catalogWithPrefs(r, s)
	if err != nil {
		writeInternal(w, r, errors.Wrap(err, "search products"))
		return
	}

	needle := strings.ToLower(q)
	matched := make([]product.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name+" "+p.Description), needle) {
			matched = append(matched, p)
		}
	}
	h.writeProducts(w, h.scorer.Rank(matched, prefs), s.Currency.Current())
}

// getProduct returns one product and records the view.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternal(w, r, errors.Wrap(err, "get product"))
		return
	}
	s.Tracker.RecordProductView(r.Context(), p.ID, p.Category)

	cur := s.Currency.Current()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p, cur)
	})
}

// catalogWithPrefs loads the catalog and the session preferences concurrently.
func (h *Handler) catalogWithPrefs(r *http.Request, s *session.Session) ([]product.Product, personalization.Preferences, error) {
	var (
		products []product.Product
		prefs    personalization.Preferences
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		products, err = h.products.List(ctx)
		return err
	})
	g.Go(func() error {
		prefs = s.Tracker.Load(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, prefs, err
	}
	return products, prefs, nil
}

func (h *Handler) writeProducts(w http.ResponseWriter, products []product.Product, cur currency.Currency) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p, cur)
			}
		})
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product, cur currency.Currency) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("category", func(e *jx.Encoder) { e.Int64(p.Category) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.StringFixed(2)) })
		e.Field("priceDisplay", func(e *jx.Encoder) { e.Str(cur.Format(p.Price)) })
		if p.Discounted() {
			e.Field("comparePrice", func(e *jx.Encoder) { e.Str(p.ComparePrice.StringFixed(2)) })
			e.Field("comparePriceDisplay", func(e *jx.Encoder) { e.Str(cur.Format(p.ComparePrice)) })
		}
		e.Field("discounted", func(e *jx.Encoder) { e.Bool(p.Discounted()) })
		e.Field("image", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("thumbnail", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image.Thumbnail)) })
				e.Field("mobile", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image.Mobile)) })
				e.Field("tablet", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image.Tablet)) })
				e.Field("desktop", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image.Desktop)) })
			})
		})
	})
}
