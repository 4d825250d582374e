package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/apparel-storefront/internal/domain/cart"
	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/currency"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/session"
)

var errQuantityTooLarge = "quantity must not exceed " + strconv.Itoa(cart.MaxQuantity)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.writeCart(w, http.StatusOK, s)
}

// addItem resolves the product snapshot from the catalog and adds a line.
func (h *Handler) addItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var (
		item    cart.AddItem
		hasProd bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Int64()
			hasProd = err == nil
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			item.Quantity, err = d.Int()
		case "size":
			item.Size, err = decodeOpt(d)
		case "color":
			item.Color, err = decodeOpt(d)
		case "customizations":
			item.Customizations, err = decodeOpt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !hasProd {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if item.Quantity > cart.MaxQuantity {
		writeError(w, http.StatusBadRequest, errQuantityTooLarge)
		return
	}

	p, err := h.products.GetByID(r.Context(), item.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "product "+strconv.FormatInt(item.ProductID, 10)+" not found")
			return
		}
		writeInternal(w, r, errors.Wrap(err, "resolve product"))
		return
	}
	item.Product = p.Snapshot()

	s.Cart.Add(item)
	h.countMutation(r, "add")
	h.writeCart(w, http.StatusOK, s)
}

// updateItem replaces a line's quantity. Non-positive quantities remove it.
func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	var (
		quantity int
		hasQty   bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = d.Int()
		hasQty = err == nil
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !hasQty {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if quantity > cart.MaxQuantity {
		writeError(w, http.StatusBadRequest, errQuantityTooLarge)
		return
	}

	if !s.Cart.UpdateQuantity(id, quantity) {
		writeError(w, http.StatusNotFound, "cart line not found")
		return
	}
	h.countMutation(r, "update")
	h.writeCart(w, http.StatusOK, s)
}

// removeItem deletes a line. Unknown ids are not an error.
func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, ok := lineID(w, r)
	if !ok {
		return
	}
	s.Cart.Remove(id)
	h.countMutation(r, "remove")
	h.writeCart(w, http.StatusOK, s)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Cart.Clear()
	h.countMutation(r, "clear")
	h.writeCart(w, http.StatusOK, s)
}

func (h *Handler) toggleCart(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Cart.Toggle()
	h.writeCart(w, http.StatusOK, s)
}

// cartSummary quotes the checkout totals, optionally applying a coupon.
func (h *Handler) cartSummary(w http.ResponseWriter, r *http.Request, s *session.Session) {
	items := cart.Items(s.Cart.Lines())

	var applied *coupon.Quote
	discount := decimal.Zero
	if code := r.URL.Query().Get("coupon"); code != "" {
		d, err := h.coupons.Quote(r.Context(), code, coupon.LinesFrom(h.calc, items))
		switch {
		case errors.Is(err, coupon.ErrUnknownCode),
			errors.Is(err, coupon.ErrNotEligible),
			errors.Is(err, coupon.ErrNotActive):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			writeInternal(w, r, errors.Wrap(err, "validate coupon"))
			return
		}
		applied = d
		discount = d.Amount
	}

	sum := h.calc.Quote(items, discount)
	cur := s.Currency.Current()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("currency", func(e *jx.Encoder) { e.Str(string(cur.Code)) })
			e.Field("items", func(e *jx.Encoder) { e.Int(sum.Items) })
			encodeAmount(e, "subtotal", sum.Subtotal, cur)
			encodeAmount(e, "discount", sum.Discount, cur)
			encodeAmount(e, "shipping", sum.Shipping, cur)
			encodeAmount(e, "total", sum.Total, cur)
			if applied != nil {
				e.Field("coupon", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("code", func(e *jx.Encoder) { e.Str(applied.Code) })
						e.Field("description", func(e *jx.Encoder) { e.Str(applied.Description) })
					})
				})
			}
		})
	})
}

func (h *Handler) countMutation(r *http.Request, op string) {
	h.mutations.Add(r.Context(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func lineID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart line id")
		return 0, false
	}
	return id, true
}

func decodeOpt(d *jx.Decoder) (cart.OptString, error) {
	v, ok, err := decodeOptString(d)
	if err != nil || !ok {
		return cart.OptString{}, err
	}
	return cart.NewOptString(v), nil
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, s *session.Session) {
	st := s.Cart.Snapshot()
	cur := s.Currency.Current()

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("isOpen", func(e *jx.Encoder) { e.Bool(st.IsOpen) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(string(cur.Code)) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range st.Lines {
						h.encodeLine(e, l, cur)
					}
				})
			})
			e.Field("itemCount", func(e *jx.Encoder) { e.Int(st.ItemCount) })
			encodeAmount(e, "total", st.Total, cur)
		})
	})
}

func (h *Handler) encodeLine(e *jx.Encoder, l cart.Line, cur currency.Currency) {
	items := cart.Items([]cart.Line{l})
	unit := h.calc.EffectivePrice(items[0])
	sub := h.calc.LineSubtotal(items[0])

	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int(l.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		encodeOpt(e, "size", l.Size)
		encodeOpt(e, "color", l.Color)
		encodeOpt(e, "customizations", l.Customizations)
		if l.Product != nil {
			e.Field("product", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
					e.Field("basePrice", func(e *jx.Encoder) { e.Str(l.Product.BasePrice) })
					e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(l.Product.Image)) })
				})
			})
		}
		encodeAmount(e, "unitPrice", unit, cur)
		encodeAmount(e, "lineTotal", sub, cur)
	})
}

// encodeAmount writes the base-currency value under name and its display form
// under name+"Display".
func encodeAmount(e *jx.Encoder, name string, amount decimal.Decimal, cur currency.Currency) {
	e.Field(name, func(e *jx.Encoder) { e.Str(amount.StringFixed(2)) })
	e.Field(name+"Display", func(e *jx.Encoder) { e.Str(cur.Format(amount)) })
}

func encodeOpt(e *jx.Encoder, name string, v cart.OptString) {
	s, ok := v.Get()
	if !ok {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(s) })
}
