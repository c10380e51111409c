package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(headerKey, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, w.Header().Get(headerKey)
}

func TestMiddlewareReusesInboundID(t *testing.T) {
	seen, header := serve(t, "trace-123")
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", header)
}

func TestMiddlewareReplacesMissingOrUnsafeIDs(t *testing.T) {
	for _, inbound := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxLength+1)} {
		seen, header := serve(t, inbound)
		require.Equal(t, seen, header)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, "inbound %q", inbound)
	}
}
