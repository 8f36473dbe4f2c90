package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendance"
)

const identityKey = "identity"

// Authenticate enforces bearer JWT tokens signed with HS256 and stores the caller's
// identity on the context.
func Authenticate(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		role := attendance.Role(strings.ToUpper(claims.Role))
		if role != attendance.RoleStudent && role != attendance.RoleAdmin {
			unauthorized(c, "unknown role")
			return
		}
		c.Set(identityKey, attendance.Identity{UserID: claims.Subject, Role: role})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not role. It must run after Authenticate.
func RequireRole(role attendance.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := IdentityFrom(c)
		if !ok {
			unauthorized(c, "not authenticated")
			return
		}
		if who.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden", "code": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by Authenticate.
func IdentityFrom(c *gin.Context) (attendance.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return attendance.Identity{}, false
	}
	who, ok := v.(attendance.Identity)
	return who, ok
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": msg, "code": "UNAUTHORIZED"})
}
