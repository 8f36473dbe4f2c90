package httpmiddleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF enforces the double-submit pattern on state-changing methods: the csrf_token
// cookie must equal the X-CSRF-Token header.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		cookie, err := c.Cookie(CSRFCookie)
		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "csrf token mismatch", "code": "CSRF"})
			return
		}
		c.Next()
	}
}
