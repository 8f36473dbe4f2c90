package api

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendance"
)

// Every response uses one envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": "...", "code": "..."}
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg, "code": code})
}

// writeError classifies a service error into a status and a stable code. Anything it does
// not recognise is logged and reported as a server error without detail.
func writeError(c *gin.Context, err error) {
	var (
		limited  *attendance.RateLimitedError
		outside  *attendance.OutOfRangeError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &limited):
		c.Header("Retry-After", retryAfterSeconds(limited.RetryAfter))
		fail(c, http.StatusTooManyRequests, "RATE_LIMIT", "too many requests")
	case errors.As(err, &outside):
		fail(c, http.StatusForbidden, "OUT_OF_RANGE", outside.Error())
	case errors.As(err, &tooLarge):
		fail(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
	case errors.Is(err, attendance.ErrInvalidNonce):
		fail(c, http.StatusForbidden, "INVALID_NONCE", err.Error())
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		fail(c, http.StatusConflict, "ALREADY_CHECKED_IN", err.Error())
	case errors.Is(err, attendance.ErrSessionNotActive):
		fail(c, http.StatusBadRequest, "SESSION_NOT_ACTIVE", err.Error())
	case errors.Is(err, attendance.ErrSessionNotFound), errors.Is(err, attendance.ErrUserNotFound):
		fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, attendance.ErrNoMatchingUsers):
		fail(c, http.StatusNotFound, "USERS_NOT_FOUND", err.Error())
	case errors.Is(err, attendance.ErrEmptyIdentifiers):
		fail(c, http.StatusBadRequest, "EMPTY_IDENTIFIERS", err.Error())
	case errors.Is(err, attendance.ErrTooManyIdentifiers):
		fail(c, http.StatusBadRequest, "TOO_MANY_IDENTIFIERS", err.Error())
	case errors.Is(err, attendance.ErrForbidden), errors.Is(err, attendance.ErrInactiveStudent):
		fail(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, attendance.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, attendance.ErrMissingNIM):
		fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "SERVER_ERROR", "internal server error")
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
