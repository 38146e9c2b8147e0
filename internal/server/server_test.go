package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/internal/graphql"
	"github.com/tournevent/collivery/internal/server"
	"github.com/tournevent/collivery/internal/telemetry"
	"github.com/tournevent/collivery/pkg/cache"
	"github.com/tournevent/collivery/pkg/checkout"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	mockAPI := collivery.NewMockAPIClient()
	shared := cache.New(cache.NewMemoryStore())
	factory := func() *collivery.Client {
		return collivery.NewWithAPIClient(collivery.Config{Username: "shop@example.com", Password: "secret"},
			mockAPI, shared, logger, nil, collivery.WithRecorder(metrics))
	}
	resolver := graphql.NewResolver(factory, checkout.Settings{}, logger)

	return server.New(server.Config{Port: 8080}, resolver, reg, logger).Handler()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServer_RequestIDPropagated(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestServer_GraphQL_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	errs, ok := decodeResponse(t, rec)["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestServer_GraphQL_InvalidJSON(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GraphQL_ParseError(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query": "query {"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, decodeResponse(t, rec), "data")
}

func TestServer_GraphQL_HealthQuery(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query": "query { health }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := decodeResponse(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["health"])
}

func TestServer_GraphQL_FieldErrorKeepsStatusOK(t *testing.T) {
	handler := newTestServer(t)

	body := `{"query": "mutation { acceptWaybill(waybillId: 0) }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	errs := resp["errors"].([]any)
	require.Len(t, errs, 1)
	ext := errs[0].(map[string]any)["extensions"].(map[string]any)
	assert.Equal(t, "collivery_id", ext["key"])
}

func TestServer_Metrics(t *testing.T) {
	handler := newTestServer(t)

	body := `{"query": "{ towns { id } }"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `collivery_requests_total{operation="Towns",status="success"} 1`)
}
