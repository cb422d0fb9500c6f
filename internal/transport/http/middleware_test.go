package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/richardliu001/reliability-core/internal/correlation"
)

func init() { gin.SetMode(gin.TestMode) }

func TestCorrelationMiddleware_GeneratesIDWhenHeaderAbsent(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationMiddleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = correlation.From(c.Request.Context()).Get()
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(CorrelationIDHeader))
}

func TestCorrelationMiddleware_EchoesInboundHeader(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "fixed-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "fixed-id", w.Header().Get(CorrelationIDHeader))
}

func TestLoggingMiddleware_DoesNotBlockRequest(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.Use(LoggingMiddleware(zap.NewNop().Sugar()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRateLimitMiddleware_BlocksBeyondBurst(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestRateLimitMiddleware_TracksIPsIndependently(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "10.0.0.1:1234"
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "10.0.0.2:1234"

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req1)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code)
}
