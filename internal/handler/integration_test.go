//go:build integration

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/db"
	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/domain/pricing"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/session"
	"github.com/xenking/apparel-storefront/internal/storage/postgres"
	"github.com/xenking/apparel-storefront/pkg/httpmiddleware"
)

var pgPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		return 1
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container endpoint: %v\n", err)
		return 1
	}
	pgPool, err = postgres.NewPool(ctx, "postgres://storefront:storefront@"+endpoint+"/storefront?sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		return 1
	}
	defer pgPool.Close()

	if err := seed(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		return 1
	}
	return m.Run()
}

func seed(ctx context.Context) error {
	if err := postgres.RunMigrations(ctx, pgPool); err != nil {
		return err
	}
	products := postgres.NewProductRepository(pgPool)
	for _, line := range bytes.Split(db.SeedProducts, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		p, err := product.DecodeJSON(line)
		if err != nil {
			return err
		}
		if err := products.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return postgres.NewCouponRepository(pgPool).Upsert(ctx, coupon.Promotion{
		Code:        "WELCOME10",
		Kind:        coupon.PercentOff,
		Value:       decimal.NewFromInt(10),
		Description: "10% off your first order",
	})
}

// newStack builds the full HTTP stack against PostgreSQL. Each call starts
// with an empty session registry, like a restarted process.
func newStack(t *testing.T) *httptest.Server {
	t.Helper()
	calc := pricing.DefaultCalculator()
	sessions := session.NewRegistry(postgres.NewKVStore(pgPool), zap.NewNop(), session.Config{
		TTL:        time.Hour,
		Calculator: calc,
	})
	h, err := New(
		Config{Calculator: calc},
		sessions,
		postgres.NewProductRepository(pgPool),
		coupon.NewBook(postgres.NewCouponRepository(pgPool)),
		personalization.Scorer{},
		noop.NewMeterProvider().Meter("integration"),
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zap.NewNop()),
	))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, sid, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	if sid != "" {
		req.Header.Set(SessionHeader, sid)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(data) > 0 && data[0] == '{' {
			require.NoError(t, json.Unmarshal(data, &out))
		}
	}
	return resp, out
}

func TestIntegration_CheckoutSummaryWithCoupon(t *testing.T) {
	srv := newStack(t)

	resp, body := call(t, srv, http.MethodPost, "/api/cart/items", "", `{"productId":3,"quantity":2,"size":"L"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := resp.Header.Get(SessionHeader)
	assert.Equal(t, "110.00", body["total"])
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.RequestIDHeader))

	resp, body = call(t, srv, http.MethodGet, "/api/cart/summary?coupon=welcome10", sid, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "110.00", body["subtotal"])
	assert.Equal(t, "11.00", body["discount"])
	assert.Equal(t, "0.00", body["shipping"])
	assert.Equal(t, "99.00", body["total"])

	resp, _ = call(t, srv, http.MethodGet, "/api/cart/summary?coupon=NOSUCH", sid, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = call(t, srv, http.MethodPost, "/api/cart/items", sid, `{"productId":999}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIntegration_PreferencesSurviveRestart(t *testing.T) {
	srv := newStack(t)

	resp, _ := call(t, srv, http.MethodPost, "/api/cart/items", "", `{"productId":1}`)
	sid := resp.Header.Get(SessionHeader)
	resp, _ = call(t, srv, http.MethodPut, "/api/currency", sid, `{"code":"GBP"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, srv, http.MethodGet, "/api/products/5", sid, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	restarted := newStack(t)

	resp, body := call(t, restarted, http.MethodGet, "/api/cart", sid, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sid, resp.Header.Get(SessionHeader))
	assert.Empty(t, body["items"], "carts live in process memory")
	assert.Equal(t, "GBP", body["currency"])

	req, err := http.NewRequest(http.MethodGet, restarted.URL+"/api/products", nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sid)
	res, err := restarted.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	var list []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.NotEmpty(t, list)
	// Category 3 was viewed, so both caps outrank everything else.
	assert.Equal(t, float64(3), list[0]["category"])
	assert.Equal(t, float64(3), list[1]["category"])
}
