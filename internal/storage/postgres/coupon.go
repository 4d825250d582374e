package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/apparel-storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, min_items, description, valid_from, valid_until
		FROM coupons WHERE code = UPPER($1) AND active`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_items, description, valid_from, valid_until, active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_items = EXCLUDED.min_items,
			description = EXCLUDED.description,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = TRUE`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active promotion; codes are case-insensitive.
// Unknown or deactivated codes yield coupon.ErrUnknownCode.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Promotion, error) {
	var (
		p        coupon.Promotion
		kind     string
		minUnits int32
	)
	err := r.pool.QueryRow(ctx, getCouponByCodeSQL, code).Scan(
		&p.Code, &kind, &p.Value, &minUnits, &p.Description, &p.Starts, &p.Ends,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrUnknownCode
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	p.Kind = coupon.Kind(kind)
	p.MinUnits = int(minUnits)
	return &p, nil
}

// Upsert stores p under its upper-cased code and marks it active.
func (r *CouponRepository) Upsert(ctx context.Context, p coupon.Promotion) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		p.Code, string(p.Kind), p.Value, int32(p.MinUnits),
		p.Description, p.Starts, p.Ends,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", p.Code)
	}
	return nil
}
