package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/store/memory"
)

func newRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc := &Service{Store: memory.New(), Cache: NewCache(nil, 0)}
	h := NewHandler(HandlerConfig{Service: svc})
	r := chi.NewRouter()
	r.Get("/api/v1/products", h.Products)
	r.Get("/api/v1/products/low-stock", h.LowStock)
	r.Get("/api/v1/products/{id}", h.ProductDetail)
	r.Post("/api/v1/products", h.CreateProduct)
	r.Put("/api/v1/products/{id}", h.UpdateProduct)
	r.Delete("/api/v1/products/{id}", h.DeleteProduct)
	r.Post("/api/v1/products/{id}/restore", h.RestoreProduct)
	return r, svc
}

func TestCreateAndFetchProduct(t *testing.T) {
	router, _ := newRouter(t)

	body := bytes.NewBufferString(`{"name":"Mouse","price":"19.99","stock":4,"low_stock_threshold":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created struct {
		Data struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			Price string `json:"price"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "Mouse", created.Data.Name)
	require.Equal(t, "19.99", created.Data.Price)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/1", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateProductValidation(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(`{"price":"1.00"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(`{"name":"X","price":"nope"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductNotFound(t *testing.T) {
	router, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteThenListExcludesProduct(t *testing.T) {
	router, svc := newRouter(t)
	p, err := svc.Create(context.Background(), ProductInput{Name: "Dock", Price: "40.00", Stock: 2})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Empty(t, listed.Data)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/products/1/restore", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, got.Active)
}
