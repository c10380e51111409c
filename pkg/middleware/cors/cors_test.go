package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func request(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/disputes", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/disputes", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(method, "/disputes", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSEchoesListedOrigin(t *testing.T) {
	w := request([]string{"https://home.test/"}, http.MethodGet, "https://home.test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://home.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
}

func TestCORSOmitsUnlistedOrigin(t *testing.T) {
	w := request([]string{"https://home.test"}, http.MethodGet, "https://evil.test")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardWithoutOriginHasNoCredentials(t *testing.T) {
	w := request(nil, http.MethodGet, "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSShortCircuitsPreflight(t *testing.T) {
	w := request([]string{"*"}, http.MethodOptions, "https://home.test")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://home.test", w.Header().Get("Access-Control-Allow-Origin"))
}
