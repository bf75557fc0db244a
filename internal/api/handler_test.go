package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retail-backoffice/internal/auth"
	"retail-backoffice/internal/broker"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router   *gin.Engine
	store    *store.MemoryStore
	keys     *auth.Keys
	customer string
	stranger string
	admin    string
}

func newTestServer(t *testing.T, checks map[string]ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := store.NewMemoryStore()
	keys, err := auth.NewKeys("test-secret", "")
	require.NoError(t, err)

	adjuster := service.NewInventoryAdjuster(repo, time.Second)
	orders := service.NewOrderService(repo, adjuster, nil, broker.NoopPublisher{}, 5*time.Second)
	products := service.NewProductService(repo)

	router := gin.New()
	NewHandler(orders, products, keys, checks).SetupRoutes(router)

	token := func(sub, role string) string {
		tok, err := keys.GenerateToken(sub, role, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok
	}
	return &testServer{
		router:   router,
		store:    repo,
		keys:     keys,
		customer: token("user-1", auth.RoleCustomer),
		stranger: token("user-2", auth.RoleCustomer),
		admin:    token("admin-1", auth.RoleAdmin),
	}
}

func (s *testServer) do(t *testing.T, method, path, authz string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	decoded := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func (s *testServer) createProduct(t *testing.T, name, price string, stock int) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/v1/products", s.admin, map[string]interface{}{
		"name":     name,
		"price":    price,
		"stock":    stock,
		"category": "Unisex",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func lineItems(product string, qty int) map[string]interface{} {
	return map[string]interface{}{
		"lineItems": []map[string]interface{}{{"product": product, "quantity": qty}},
	}
}

func TestCreateOrder_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodPost, "/api/v1/orders", "", lineItems(uuid.NewString(), 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication_error", body["error"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/orders", "Bearer garbage", lineItems(uuid.NewString(), 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_PlacesOrder(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createProduct(t, "Linen Shirt", "10.00", 5)

	w, body := s.do(t, http.MethodPost, "/api/v1/orders", s.customer, lineItems(id, 3))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "user-1", body["user"])
	assert.Equal(t, "30", body["totalAmount"])
	items := body["lineItems"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, id, first["product"])
	assert.Equal(t, "10", first["unitPriceAtOrderTime"])
	assert.Equal(t, "Linen Shirt", first["productName"])

	p, err := s.store.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestCreateOrder_RejectsOversizedIdentifiers(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createProduct(t, "Linen Shirt", "10.00", 5)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(lineItems(id, 1)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.customer)
	req.Header.Set("Idempotency-Key", strings.Repeat("k", service.MaxIdempotencyKeyLength+1))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Idempotency-Key", body["field"])

	tok, err := s.keys.GenerateToken(strings.Repeat("u", auth.MaxSubjectLength+1), auth.RoleCustomer, time.Hour)
	require.NoError(t, err)
	w2, _ := s.do(t, http.MethodPost, "/api/v1/orders", "Bearer "+tok, lineItems(id, 1))
	assert.Equal(t, http.StatusUnauthorized, w2.Code)

	p, err := s.store.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createProduct(t, "Silk Tie", "30.00", 1)
	inactive := s.createProduct(t, "Old Hat", "15.00", 4)
	w, _ := s.do(t, http.MethodDelete, "/api/v1/products/"+inactive, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	cases := []struct {
		name   string
		body   interface{}
		status int
		kind   string
	}{
		{"empty cart", map[string]interface{}{"lineItems": []interface{}{}}, http.StatusBadRequest, "validation_error"},
		{"malformed quantity", map[string]interface{}{"lineItems": []map[string]interface{}{{"product": id, "quantity": "two"}}}, http.StatusBadRequest, "validation_error"},
		{"unknown product", lineItems(uuid.NewString(), 1), http.StatusNotFound, "not_found"},
		{"inactive product", lineItems(inactive, 1), http.StatusBadRequest, "unavailable"},
		{"insufficient stock", lineItems(id, 2), http.StatusConflict, "insufficient_stock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodPost, "/api/v1/orders", s.customer, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.kind, body["error"])
		})
	}

	_, body := s.do(t, http.MethodPost, "/api/v1/orders", s.customer, lineItems(id, 2))
	assert.Equal(t, float64(1), body["available"])
	assert.Equal(t, float64(2), body["requested"])
	assert.Equal(t, "insufficient stock for product Silk Tie. available: 1, requested: 2", body["message"])
}

func TestOrders_AccessControl(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createProduct(t, "Cap", "11.00", 5)
	w, body := s.do(t, http.MethodPost, "/api/v1/orders", s.customer, lineItems(id, 1))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := body["id"].(string)

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders", s.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/orders", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+orderID, s.customer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+orderID, s.stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createProduct(t, "Socks", "5.00", 5)
	_, body := s.do(t, http.MethodPost, "/api/v1/orders", s.customer, lineItems(id, 1))
	path := "/api/v1/orders/" + body["id"].(string) + "/status"

	w, _ := s.do(t, http.MethodPut, path, s.customer, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodPut, path, s.admin, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "cannot transition")

	w, body = s.do(t, http.MethodPut, path, s.admin, map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status", body["field"])

	w, body = s.do(t, http.MethodPut, path, s.admin, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", body["status"])
}

func TestProducts_AdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/products", s.customer, map[string]interface{}{"name": "Hat"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	id := s.createProduct(t, "Cardigan", "45.00", 0)

	w, body := s.do(t, http.MethodPut, "/api/v1/products/"+id+"/stock", s.admin, map[string]int{"quantity": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), body["stock"])

	w, body = s.do(t, http.MethodPut, "/api/v1/products/"+id, s.admin, map[string]string{"price": "50.00"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "50", body["price"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/products/"+id, s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/products/"+id, s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, body = s.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, float64(0), body["total"])
	_, body = s.do(t, http.MethodGet, "/api/v1/products/admin/all", s.admin, nil)
	assert.Equal(t, float64(1), body["total"])

	w, body = s.do(t, http.MethodPut, "/api/v1/products/"+id+"/restore", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["isActive"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/products?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	})
	w, _ := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s = newTestServer(t, map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w, body := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not ready", body["status"])
}
