package personalization

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/xenking/apparel-storefront/internal/domain/product"
)

// Score components. Only the ordering they produce is meaningful.
const (
	CategoryBonus   = 10.0
	SearchTermBonus = 5.0
	DiscountBonus   = 3.0
	MaxJitter       = 2.0
)

// Scorer assigns relevance scores to products.
type Scorer struct {
	// Jitter returns a value in [0, MaxJitter). Nil disables jitter.
	Jitter func() float64
}

// NewScorer returns a Scorer with random jitter so equally relevant products
// do not always appear in the same order.
func NewScorer() Scorer {
	return Scorer{Jitter: func() float64 { return rand.Float64() * MaxJitter }}
}

// Score returns the relevance of p for a client with the given history.
func (s Scorer) Score(p product.Product, prefs Preferences) float64 {
	score := 0.0
	if slices.Contains(prefs.ViewedCategories, p.Category) {
		score += CategoryBonus
	}

	text := strings.ToLower(p.Name + " " + p.Description)
	for _, term := range prefs.SearchTerms {
		if term != "" && strings.Contains(text, term) {
			score += SearchTermBonus
		}
	}

	if p.Discounted() {
		score += DiscountBonus
	}

	if s.Jitter != nil {
		j := s.Jitter()
		if j < 0 || j >= MaxJitter {
			j = 0
		}
		score += j
	}
	return score
}

// Rank returns products ordered by descending score. The input is not modified.
func (s Scorer) Rank(products []product.Product, prefs Preferences) []product.Product {
	type scored struct {
		p     product.Product
		score float64
	}
	list := make([]scored, len(products))
	for i, p := range products {
		list[i] = scored{p: p, score: s.Score(p, prefs)}
	}

	slices.SortStableFunc(list, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	out := make([]product.Product, len(list))
	for i, x := range list {
		out[i] = x.p
	}
	return out
}
