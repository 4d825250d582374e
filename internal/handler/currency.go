package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/apparel-storefront/internal/domain/currency"
	"github.com/xenking/apparel-storefront/internal/session"
)

func (h *Handler) listCurrencies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range currency.Supported() {
				encodeCurrency(e, c)
			}
		})
	})
}

func (h *Handler) getCurrency(w http.ResponseWriter, _ *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCurrency(e, s.Currency.Current())
	})
}

// setCurrency switches the session's display currency. Unsupported codes
// leave the selection unchanged.
func (h *Handler) setCurrency(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var code string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Currency.SetCurrency(r.Context(), currency.Code(code)); err != nil {
		if errors.Is(err, currency.ErrUnsupportedCurrency) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCurrency(e, s.Currency.Current())
	})
}

func encodeCurrency(e *jx.Encoder, c currency.Currency) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(string(c.Code)) })
		e.Field("symbol", func(e *jx.Encoder) { e.Str(c.Symbol) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("rate", func(e *jx.Encoder) { e.Str(c.Rate.String()) })
	})
}
