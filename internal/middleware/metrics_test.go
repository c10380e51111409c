package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chore-dispute-api/internal/service"
)

func TestMetricsObservesRouteTemplatesAndSkipsStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/api/v1/disputes/events"))
	r.GET("/api/v1/disputes/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/disputes/events", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { metrics.Handler().ServeHTTP(c.Writer, c.Request) })

	for _, path := range []string{"/api/v1/disputes/d-1", "/api/v1/disputes/d-2", "/api/v1/disputes/events", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `path="/api/v1/disputes/:id"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.False(t, strings.Contains(body, `path="/api/v1/disputes/events"`))
	assert.False(t, strings.Contains(body, `path="/api/v1/disputes/d-1"`))
}
