package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/disputes", nil)
	return c, w
}

func TestPageWritesPagination(t *testing.T) {
	c, w := newContext()
	Page(c, []string{"d-1", "d-2"}, 50, 10, 2)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var env struct {
		Data       []string `json:"data"`
		Pagination struct {
			Limit, Offset, Count int
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, []string{"d-1", "d-2"}, env.Data)
	assert.Equal(t, 50, env.Pagination.Limit)
	assert.Equal(t, 10, env.Pagination.Offset)
	assert.Equal(t, 2, env.Pagination.Count)
}

func TestErrorMapsAppErrors(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.ErrDisputeResolved)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"DISPUTE_RESOLVED"`)
	assert.Empty(t, c.Errors)
}

func TestErrorRecordsInternalFailures(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New("pq: connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	require.Len(t, c.Errors, 1)
}
