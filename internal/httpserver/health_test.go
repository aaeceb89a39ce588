package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, checks map[string]HealthChecker) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerHealthRoutes(router, "conversions", "1.0.0", checks)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	router.ServeHTTP(w, req)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHealthNoChecks(t *testing.T) {
	w, resp := serveHealth(t, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, "conversions", resp.Service)
}

func TestHealthDegradedCache(t *testing.T) {
	checks := map[string]HealthChecker{
		"cache": CacheHealthChecker(func() error { return errors.New("refused") }),
	}

	w, resp := serveHealth(t, checks)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
	assert.Equal(t, HealthStatusDegraded, resp.Checks["cache"].Status)
}

func TestHealthUnhealthyDatabase(t *testing.T) {
	checks := map[string]HealthChecker{
		"database": DatabaseHealthChecker(func() error { return errors.New("refused") }),
		"cache":    CacheHealthChecker(func() error { return nil }),
	}

	w, resp := serveHealth(t, checks)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Equal(t, HealthStatusHealthy, resp.Checks["cache"].Status)
}
