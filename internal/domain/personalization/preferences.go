// Package personalization ranks catalog products using a small behavioral
// history kept in client-local storage.
package personalization

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// HistoryLimit caps every history list.
const HistoryLimit = 10

// Preferences is the persisted browsing history of one client. Lists are
// most-recent-first without duplicates.
type Preferences struct {
	ViewedCategories []int64
	ViewedProducts   []int64
	SearchTerms      []string
	LastVisit        time.Time
}

// Empty reports whether no history has been recorded.
func (p Preferences) Empty() bool {
	return len(p.ViewedCategories) == 0 && len(p.ViewedProducts) == 0 && len(p.SearchTerms) == 0
}

// ViewedProduct records a product view and its category.
func (p *Preferences) ViewedProduct(productID, categoryID int64) {
	p.ViewedProducts = pushFront(p.ViewedProducts, productID, HistoryLimit)
	p.ViewedCategories = pushFront(p.ViewedCategories, categoryID, HistoryLimit)
}

// Searched records a search term. Terms are compared case-insensitively and
// blank terms are ignored.
func (p *Preferences) Searched(term string) {
	term = normalizeTerm(term)
	if term == "" {
		return
	}
	p.SearchTerms = pushFront(p.SearchTerms, term, HistoryLimit)
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// pushFront moves v to the head of list, dropping entries past limit.
func pushFront[T comparable](list []T, v T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, v)
	for _, x := range list {
		if len(out) == limit {
			break
		}
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Encode writes p as
// {"viewedCategories":[],"viewedProducts":[],"searchTerms":[],"lastVisit":"<RFC 3339>"}.
func (p Preferences) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("viewedCategories")
	encodeInts(e, p.ViewedCategories)
	e.FieldStart("viewedProducts")
	encodeInts(e, p.ViewedProducts)
	e.FieldStart("searchTerms")
	e.ArrStart()
	for _, s := range p.SearchTerms {
		e.Str(s)
	}
	e.ArrEnd()
	e.FieldStart("lastVisit")
	e.Str(p.LastVisit.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func encodeInts(e *jx.Encoder, v []int64) {
	e.ArrStart()
	for _, n := range v {
		e.Int64(n)
	}
	e.ArrEnd()
}

// Decode reads the layout produced by Encode. Unknown fields are skipped and
// null lists decode as empty.
func (p *Preferences) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "viewedCategories":
			return errors.Wrap(decodeInts(d, &p.ViewedCategories), "viewedCategories")
		case "viewedProducts":
			return errors.Wrap(decodeInts(d, &p.ViewedProducts), "viewedProducts")
		case "searchTerms":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "searchTerms")
				}
				p.SearchTerms = append(p.SearchTerms, s)
				return nil
			})
		case "lastVisit":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "lastVisit")
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, "parse lastVisit")
			}
			p.LastVisit = t
			return nil
		default:
			return d.Skip()
		}
	})
}

func decodeInts(d *jx.Decoder, dst *[]int64) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Arr(func(d *jx.Decoder) error {
		n, err := d.Int64()
		if err != nil {
			return err
		}
		*dst = append(*dst, n)
		return nil
	})
}

// truncate enforces HistoryLimit on data read from storage.
func (p *Preferences) truncate() {
	if len(p.ViewedCategories) > HistoryLimit {
		p.ViewedCategories = p.ViewedCategories[:HistoryLimit]
	}
	if len(p.ViewedProducts) > HistoryLimit {
		p.ViewedProducts = p.ViewedProducts[:HistoryLimit]
	}
	if len(p.SearchTerms) > HistoryLimit {
		p.SearchTerms = p.SearchTerms[:HistoryLimit]
	}
}
