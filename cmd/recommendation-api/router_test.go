package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/handlers"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/cmd/recommendation-api/middleware"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	mem := catalog.NewMemoryStore()
	mem.AddSource(100, "OO수제 사골곰탕 500g x 3")
	for _, r := range []domain.DisplayRecord{
		{ID: 1, Name: "XX 사골곰탕 국물 1kg", StoreName: "XX식품", Price: 10000, DiscountedPrice: 8000, ReviewCount: 10},
		{ID: 2, Name: "한우 사골 육수", StoreName: "한우마을", Price: 12000, ReviewCount: 50},
		{ID: 3, Name: "비비고 왕교자", StoreName: "CJ", Price: 9000, ReviewCount: 200},
		{ID: 4, Name: "진한 곰탕", StoreName: "OO수제", Price: 8000, ReviewCount: 5},
	} {
		mem.AddProduct(r)
	}

	cfg := config.DefaultConfig()
	cfg.Embedding.BaseURL = app.MockEmbeddingURL
	cfg.Embedding.Dimension = 16

	a, err := app.New(context.Background(), cfg, nil, app.WithCatalog(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.IndexCatalog(context.Background(), 0, nil)
	require.NoError(t, err)
	return a
}

func newTestRouter(t *testing.T, ready func(context.Context) error) http.Handler {
	a := newTestApp(t)
	if ready == nil {
		ready = a.Ready
	}
	return NewRouter(RouterDeps{
		Logger:   observability.NopLogger(),
		Service:  a.Service,
		Metrics:  a.Metrics,
		Ready:    ready,
		DefaultK: 5,
	})
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"recommendation-engine"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.TraceHeader))
}

func TestRouter_Ready(t *testing.T) {
	rec := do(t, newTestRouter(t, nil), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := newTestRouter(t, func(context.Context) error { return errors.New("redis down") })
	rec = do(t, failing, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestRouter_Recommendations(t *testing.T) {
	h := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/100/recommendations", nil)
	req.Header.Set(middleware.TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-123", rec.Header().Get(middleware.TraceHeader))

	var body handlers.RecommendationResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(100), body.SourceProductID)
	assert.Equal(t, "done", body.State)
	assert.False(t, body.Cached)
	require.NotEmpty(t, body.Products)
	for _, p := range body.Products {
		assert.Contains(t, []int64{1, 4}, p.ProductID)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/products/100/recommendations")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Cached)
}

func TestRouter_RecommendationErrors(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"non-numeric id", "/api/v1/products/abc/recommendations", http.StatusBadRequest},
		{"non-numeric k", "/api/v1/products/100/recommendations?k=many", http.StatusBadRequest},
		{"zero k", "/api/v1/products/100/recommendations?k=0", http.StatusBadRequest},
		{"negative k", "/api/v1/products/100/recommendations?k=-1", http.StatusBadRequest},
		{"unknown source", "/api/v1/products/999/recommendations", http.StatusNotFound},
		{"k above max is clamped", "/api/v1/products/100/recommendations?k=500", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tc.target)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_InvalidateCache(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/products/100/recommendations?k=5")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/cache/invalidate?productId=100")
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.InvalidateResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.DeletedCount)
	assert.Contains(t, body.Message, "100")

	rec = do(t, h, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.DeletedCount)

	rec = do(t, h, http.MethodPost, "/api/v1/cache/invalidate?productId=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(t, nil)
	do(t, h, http.MethodGet, "/api/v1/products/100/recommendations")

	rec := do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recommendation_")
}
