package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/domain/pricing"
	"github.com/xenking/apparel-storefront/internal/domain/product"
	"github.com/xenking/apparel-storefront/internal/session"
	"github.com/xenking/apparel-storefront/internal/storage/kv"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]product.Product(nil), m.products...), nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, err := m.GetByID(ctx, id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Upsert(_ context.Context, p product.Product) error {
	m.products = append(m.products, p)
	return nil
}

type mockCouponBook struct {
	quote    *coupon.Quote
	err      error
	lastCode string
}

func (m *mockCouponBook) Quote(_ context.Context, code string, _ []coupon.Line) (*coupon.Quote, error) {
	m.lastCode = code
	return m.quote, m.err
}

// --- Helpers ---

func testCatalog() []product.Product {
	return []product.Product{
		{
			ID: 1, Name: "Classic Tee", Description: "Soft cotton t-shirt", Category: 1,
			Price: decimal.RequireFromString("25.00"),
			Image: product.Image{Thumbnail: "/tee-thumb.jpg"},
		},
		{
			ID: 2, Name: "Team Hoodie", Description: "Fleece hoodie with custom print", Category: 2,
			Price: decimal.RequireFromString("55.00"),
		},
		{
			ID: 3, Name: "Dad Hat", Description: "Embroidered cap", Category: 3,
			Price: decimal.RequireFromString("18.00"), ComparePrice: decimal.RequireFromString("24.00"),
		},
	}
}

type testServer struct {
	mux      *http.ServeMux
	coupons  *mockCouponBook
	products *mockProductRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	calc := pricing.DefaultCalculator()
	registry := session.NewRegistry(kv.NewMemory(), zap.NewNop(), session.Config{Calculator: calc})

	ts := &testServer{
		mux:      http.NewServeMux(),
		coupons:  &mockCouponBook{},
		products: &mockProductRepo{products: testCatalog()},
	}
	h, err := New(
		Config{ImageBaseURL: "https://cdn.example.com", Calculator: calc},
		registry,
		ts.products,
		ts.coupons,
		personalization.Scorer{},
		noop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	h.Register(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func productIDs(list []map[string]any) []float64 {
	ids := make([]float64, len(list))
	for i, p := range list {
		ids[i] = p["id"].(float64)
	}
	return ids
}

// --- Cart ---

func TestAddItem_IssuesSessionAndMerges(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1,"quantity":2,"size":"M"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sid := w.Header().Get(SessionHeader)
	require.NotEmpty(t, sid)

	w = ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":1,"size":"M"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sid, w.Header().Get(SessionHeader))

	body := decodeMap(t, w)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	assert.Equal(t, float64(3), line["quantity"])
	assert.Equal(t, "M", line["size"])
	assert.NotContains(t, line, "color")
	assert.Equal(t, "25.00", line["unitPrice"])
	assert.Equal(t, "75.00", line["lineTotal"])
	assert.Equal(t, "https://cdn.example.com/tee-thumb.jpg", line["product"].(map[string]any)["image"])
	assert.Equal(t, float64(3), body["itemCount"])
	assert.Equal(t, "75.00", body["total"])
	assert.Equal(t, "$75.00", body["totalDisplay"])
}

func TestAddItem_EmptyStringIsDistinctFromAbsent(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":2,"customizations":""}`)
	sid := w.Header().Get(SessionHeader)
	ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":2,"customizations":null}`)
	w = ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":2}`)

	items := decodeMap(t, w)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, float64(2), items[1].(map[string]any)["quantity"])
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed json", body: `{"productId":`, code: http.StatusBadRequest},
		{name: "empty body", body: "", code: http.StatusBadRequest},
		{name: "missing product id", body: `{"quantity":1}`, code: http.StatusBadRequest},
		{name: "wrong type", body: `{"productId":"one"}`, code: http.StatusBadRequest},
		{name: "unknown product", body: `{"productId":99}`, code: http.StatusUnprocessableEntity},
		{name: "quantity above limit", body: `{"productId":1,"quantity":1000}`, code: http.StatusBadRequest},
		{name: "quantity overflows int", body: `{"productId":1,"quantity":99999999999999999999}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(t, http.MethodPost, "/api/cart/items", "", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Equal(t, float64(tt.code), decodeMap(t, w)["code"])
		})
	}
}

func TestAddItem_QuantitySaturatesAtLimit(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1,"quantity":999}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":1,"quantity":5}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeMap(t, w)
	line := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(999), line["quantity"])
	assert.Equal(t, float64(999), body["itemCount"])
	assert.Equal(t, "24975.00", body["total"])

	w = ts.do(t, http.MethodPatch, "/api/cart/items/1", sid, `{"quantity":1000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateItem(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1}`)
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodPatch, "/api/cart/items/1", sid, `{"quantity":4}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100.00", decodeMap(t, w)["total"])

	w = ts.do(t, http.MethodPatch, "/api/cart/items/42", sid, `{"quantity":4}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/cart/items/abc", sid, `{"quantity":4}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/cart/items/1", sid, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/cart/items/1", sid, `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeMap(t, w)["items"])
}

func TestRemoveItem_IsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1}`)
	sid := w.Header().Get(SessionHeader)
	ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":2}`)

	w = ts.do(t, http.MethodDelete, "/api/cart/items/1", sid, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/cart/items/1", sid, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeMap(t, w)
	require.Len(t, body["items"], 1)
	assert.Equal(t, "55.00", body["total"])
}

func TestClearAndToggle(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1}`)
	sid := w.Header().Get(SessionHeader)
	assert.Equal(t, false, decodeMap(t, w)["isOpen"])

	w = ts.do(t, http.MethodPost, "/api/cart/toggle", sid, "")
	assert.Equal(t, true, decodeMap(t, w)["isOpen"])

	w = ts.do(t, http.MethodDelete, "/api/cart", sid, "")
	body := decodeMap(t, w)
	assert.Empty(t, body["items"])
	assert.Equal(t, "0.00", body["total"])
	assert.Equal(t, true, body["isOpen"])
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1}`)

	w := ts.do(t, http.MethodGet, "/api/cart", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeMap(t, w)["items"])
}

func TestCartSummary(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":1,"quantity":2}`)
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodGet, "/api/cart/summary", sid, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "50.00", body["subtotal"])
	assert.Equal(t, "9.99", body["shipping"])
	assert.Equal(t, "59.99", body["total"])
	assert.NotContains(t, body, "coupon")

	ts.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":2}`)
	w = ts.do(t, http.MethodGet, "/api/cart/summary", sid, "")
	body = decodeMap(t, w)
	assert.Equal(t, "105.00", body["subtotal"])
	assert.Equal(t, "0.00", body["shipping"])
	assert.Equal(t, "105.00", body["total"])
}

func TestCartSummary_Coupon(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":2,"quantity":2}`)
	sid := w.Header().Get(SessionHeader)

	ts.coupons.quote = &coupon.Quote{
		Code:        "TEAM10",
		Amount:      decimal.RequireFromString("11.00"),
		Description: "10% off team orders",
	}
	w = ts.do(t, http.MethodGet, "/api/cart/summary?coupon=team10", sid, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "team10", ts.coupons.lastCode)

	body := decodeMap(t, w)
	assert.Equal(t, "110.00", body["subtotal"])
	assert.Equal(t, "11.00", body["discount"])
	assert.Equal(t, "0.00", body["shipping"])
	assert.Equal(t, "99.00", body["total"])
	assert.Equal(t, "TEAM10", body["coupon"].(map[string]any)["code"])

	for _, rejected := range []error{coupon.ErrNotActive, coupon.ErrUnknownCode, coupon.ErrNotEligible} {
		ts.coupons.quote, ts.coupons.err = nil, rejected
		w = ts.do(t, http.MethodGet, "/api/cart/summary?coupon=NOPE", sid, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, rejected.Error())
	}

	ts.coupons.err = io.ErrUnexpectedEOF
	w = ts.do(t, http.MethodGet, "/api/cart/summary?coupon=X", sid, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "EOF")
}

// --- Currency ---

func TestCurrency(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/currencies", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 6)

	w = ts.do(t, http.MethodPost, "/api/cart/items", "", `{"productId":2}`)
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodGet, "/api/currency", sid, "")
	assert.Equal(t, "USD", decodeMap(t, w)["code"])

	w = ts.do(t, http.MethodPut, "/api/currency", sid, `{"code":"EUR"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "€", decodeMap(t, w)["symbol"])

	w = ts.do(t, http.MethodGet, "/api/cart", sid, "")
	body := decodeMap(t, w)
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, "55.00", body["total"])
	assert.Equal(t, "€50.60", body["totalDisplay"])

	w = ts.do(t, http.MethodPut, "/api/currency", sid, `{"code":"XYZ"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = ts.do(t, http.MethodPut, "/api/currency", sid, `{"code":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/currency", sid, "")
	assert.Equal(t, "EUR", decodeMap(t, w)["code"])
}

// --- Catalog ---

func TestListProducts_RankedByHistory(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeList(t, w)
	assert.Equal(t, []float64{3, 1, 2}, productIDs(list), "discounted product first")
	assert.Equal(t, "24.00", list[0]["comparePrice"])
	assert.Equal(t, true, list[0]["discounted"])
	assert.NotContains(t, list[1], "comparePrice")
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodGet, "/api/products/2", sid, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Team Hoodie", decodeMap(t, w)["name"])

	w = ts.do(t, http.MethodGet, "/api/products", sid, "")
	assert.Equal(t, []float64{2, 3, 1}, productIDs(decodeList(t, w)))
}

func TestSearchProducts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/products/search?q=Cotton", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float64{1}, productIDs(decodeList(t, w)))
	sid := w.Header().Get(SessionHeader)

	w = ts.do(t, http.MethodGet, "/api/products", sid, "")
	assert.Equal(t, []float64{1, 3, 2}, productIDs(decodeList(t, w)), "search term boosts matching products")

	w = ts.do(t, http.MethodGet, "/api/products/search?q=", sid, "")
	assert.Len(t, decodeList(t, w), 3)
}

func TestGetProduct_Errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/products/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/products/404", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProducts_RepositoryError(t *testing.T) {
	ts := newTestServer(t)
	ts.products.listErr = io.ErrClosedPipe

	w := ts.do(t, http.MethodGet, "/api/products", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
