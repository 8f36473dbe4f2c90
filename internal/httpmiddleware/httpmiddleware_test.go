package httpmiddleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewIPLimiter(3)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.Use(l.GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, get("10.0.0.1").Code)
	}
	w := get("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, get("10.0.0.2").Code, "other clients are unaffected")

	now = now.Add(20 * time.Second)
	assert.Equal(t, http.StatusNoContent, get("10.0.0.1").Code)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, l.Sweep(5*time.Minute))
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", BodyLimit(8), func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))).Code)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")

	chunked := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much too large"))
	chunked.ContentLength = -1
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, chunked).Code)
}

func TestCSRF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CSRF())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	post := func(cookie, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cookie})
		}
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		return serve(r, req).Code
	}
	assert.Equal(t, http.StatusForbidden, post("", ""))
	assert.Equal(t, http.StatusForbidden, post("abc", ""))
	assert.Equal(t, http.StatusForbidden, post("abc", "abd"))
	assert.Equal(t, http.StatusNoContent, post("abc", "abc"))
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
