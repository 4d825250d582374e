package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Quoter prices a code against cart lines.
type Quoter interface {
	Quote(ctx context.Context, code string, lines []Line) (*Quote, error)
}

// Book quotes codes stored in a Repository.
type Book struct {
	repo Repository
	now  func() time.Time
}

// NewBook returns a Book reading promotions from repo.
func NewBook(repo Repository) *Book {
	return &Book{repo: repo, now: time.Now}
}

// Quote resolves code and prices it against lines. Blank and unknown codes
// yield ErrUnknownCode.
func (b *Book) Quote(ctx context.Context, code string, lines []Line) (*Quote, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrUnknownCode
	}

	p, err := b.repo.FindByCode(ctx, code)
	switch {
	case errors.Is(err, ErrUnknownCode):
		return nil, ErrUnknownCode
	case err != nil:
		return nil, errors.Wrapf(err, "find coupon %s", code)
	case !p.ActiveAt(b.now()):
		return nil, ErrNotActive
	}

	q, err := p.Price(lines)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
