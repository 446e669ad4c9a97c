package httputils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRequestInfo(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/invoices/1", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	r.Header.Set("User-Agent", "merchant-test")
	r.Header.Set("X-Request-Id", "req-1")

	ctx, ri := SetRequestInfo(context.Background(), r, "v1")
	assert.Equal(t, "10.0.0.1", ri.ClientIP)
	assert.Equal(t, []string{"10.0.0.2"}, ri.Forwarded)
	assert.Equal(t, "merchant-test", ri.UserAgent)
	assert.Equal(t, "/invoices/1", ri.Path)
	assert.Equal(t, "req-1", ri.RequestID)
	assert.Equal(t, ri, GetRequestInfo(ctx))

	_, ri = SetRequestInfo(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), "v1")
	_, err := uuid.Parse(ri.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, "192.0.2.1", ri.ClientIP)
	assert.Len(t, ri.Fields(), 3)

	assert.Empty(t, GetRequestInfo(context.Background()).RequestID)
}

func TestRequestInfoMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(RequestInfoMiddleware("v1"))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, GetRequestInfo(c.Request().Context()).AppVersion)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-7")
	e.ServeHTTP(rec, req)

	assert.Equal(t, "v1", rec.Body.String())
	assert.Equal(t, "req-7", rec.Header().Get("X-Request-Id"))
}

func TestDebugMux(t *testing.T) {
	healthy := true
	mux := DebugMux(map[string]HealthCheck{
		"db": func(ctx context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
