package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareKeepsOrGenerates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen, fromCtx string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		fromCtx = FromContext(c.Request.Context())
	})

	cases := []struct {
		header string
		keep   bool
	}{
		{"abc-123", true},
		{"trace:7f.e2_01", true},
		{strings.Repeat("x", 500), false},
		{"evil\r\nSet-Cookie: a=b", false},
		{"has space", false},
		{"", false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("X-Request-ID", tc.header)
		}
		r.ServeHTTP(w, req)

		if tc.keep {
			assert.Equal(t, tc.header, seen)
		} else {
			assert.Len(t, seen, 36, tc.header)
		}
		assert.Equal(t, seen, fromCtx)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	}
}
