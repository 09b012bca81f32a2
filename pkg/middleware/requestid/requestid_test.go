package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareReusesHeader(t *testing.T) {
	var captured string
	r := newRouter(&captured)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "req-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", captured)
	assert.Equal(t, "req-123", w.Header().Get(HeaderKey))
}

func TestMiddlewareGeneratesWhenMissingOrOversized(t *testing.T) {
	var captured string
	r := newRouter(&captured)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, strings.Repeat("x", maxLength+1))
	r.ServeHTTP(w, req)

	assert.Len(t, captured, 36)
	assert.Equal(t, captured, w.Header().Get(HeaderKey))
}
