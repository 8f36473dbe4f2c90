package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"checkin/internal/attendance"
	"checkin/internal/auth"
	"checkin/internal/httpmiddleware"
)

const (
	bulkBodyLimit    = 100 << 10
	defaultBodyLimit = 16 << 10
)

// Config carries what the router needs besides the service.
type Config struct {
	SigningKey  string
	Issuer      string
	CORSOrigins []string
	CSRF        bool
	IPLimiter   *httpmiddleware.IPLimiter
	Metrics     http.Handler
	// Health reports dependency status for /healthz. Any false value turns the response 503.
	Health func(ctx context.Context) map[string]bool
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(svc *attendance.Service, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.CSRFHeader},
			ExposeHeaders:    []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.IPLimiter != nil {
		r.Use(cfg.IPLimiter.GinMiddleware())
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if cfg.Health != nil {
			for name, healthy := range cfg.Health(c.Request.Context()) {
				body[name] = healthy
				if !healthy {
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
				}
			}
		}
		c.JSON(status, body)
	})

	h := NewHandler(svc)
	authed := r.Group("/", auth.Authenticate(cfg.SigningKey, cfg.Issuer))
	if cfg.CSRF {
		authed.Use(httpmiddleware.CSRF())
	}

	student := auth.RequireRole(attendance.RoleStudent)
	admin := auth.RequireRole(attendance.RoleAdmin)

	authed.GET("/checkin/nonce", student, h.Nonce)
	authed.POST("/checkin", student, httpmiddleware.BodyLimit(defaultBodyLimit), h.CheckIn)
	authed.POST("/attendance/bulk", admin, httpmiddleware.BodyLimit(bulkBodyLimit), h.Bulk)
	authed.GET("/sessions", h.ListSessions)
	authed.POST("/sessions", admin, httpmiddleware.BodyLimit(defaultBodyLimit), h.CreateSession)

	return r
}
