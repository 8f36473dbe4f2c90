package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"checkin/internal/attendance"
	"checkin/internal/auth"
)

// Handler exposes the attendance service over HTTP.
type Handler struct {
	svc *attendance.Service
}

// NewHandler creates a handler.
func NewHandler(svc *attendance.Service) *Handler {
	return &Handler{svc: svc}
}

// bind decodes and validates the JSON body into dst, writing the failure response itself.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, err)
			return false
		}
		fail(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return false
	}
	return true
}

func identity(c *gin.Context) (attendance.Identity, bool) {
	who, ok := auth.IdentityFrom(c)
	if !ok {
		writeError(c, attendance.ErrUnauthorized)
	}
	return who, ok
}

// Nonce handles GET /checkin/nonce?sessionId=.
func (h *Handler) Nonce(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	who, ok := identity(c)
	if !ok {
		return
	}
	tok, err := h.svc.IssueNonce(c.Request.Context(), who, c.Query("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"nonce": tok})
}

type checkInBody struct {
	SessionID string   `json:"sessionId" binding:"required"`
	Nonce     string   `json:"nonce" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// CheckIn handles POST /checkin.
func (h *Handler) CheckIn(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var body checkInBody
	if !bind(c, &body) {
		return
	}
	res, err := h.svc.CheckIn(c.Request.Context(), who, attendance.CheckInRequest{
		SessionID: body.SessionID,
		Nonce:     body.Nonce,
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"distance": res.Distance})
}

type bulkBody struct {
	SessionID   string   `json:"sessionId" binding:"required"`
	Status      string   `json:"status"`
	Identifiers []string `json:"identifiers"`
	NIMs        []string `json:"nims"`
}

// Bulk handles POST /attendance/bulk.
func (h *Handler) Bulk(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var body bulkBody
	if !bind(c, &body) {
		return
	}
	// An unknown label maps to the zero Status, which the service rejects after counting
	// the call against the bulk rate limit.
	status, _ := parseStatus(body.Status)
	ids := body.Identifiers
	if ids == nil {
		ids = body.NIMs
	}
	res, err := h.svc.BulkUpdate(c.Request.Context(), who, attendance.BulkRequest{
		SessionID:   body.SessionID,
		Status:      status,
		Identifiers: ids,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"updated": res.Updated,
		"missing": res.Missing,
		"status":  statusLabel(status),
	})
}

type createSessionBody struct {
	Title     string    `json:"title" binding:"required"`
	StartTime time.Time `json:"startTime" binding:"required"`
	Latitude  *float64  `json:"latitude" binding:"required"`
	Longitude *float64  `json:"longitude" binding:"required"`
	Radius    float64   `json:"radius"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var body createSessionBody
	if !bind(c, &body) {
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), who, attendance.NewSession{
		Title:     body.Title,
		StartTime: body.StartTime,
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
		Radius:    body.Radius,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, sess)
}

type adminSessionView struct {
	attendance.Session
	State string `json:"state"`
}

type studentSessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Radius    float64   `json:"radius"`
	State     string    `json:"state"`
}

// ListSessions handles GET /sessions. Students do not see the session coordinates.
func (h *Handler) ListSessions(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.svc.ListSessions(c.Request.Context(), who)
	if err != nil {
		writeError(c, err)
		return
	}
	if who.Role == attendance.RoleAdmin {
		out := make([]adminSessionView, 0, len(list))
		for _, s := range list {
			out = append(out, adminSessionView{Session: s.Session, State: s.State.String()})
		}
		respond(c, http.StatusOK, gin.H{"sessions": out})
		return
	}
	out := make([]studentSessionView, 0, len(list))
	for _, s := range list {
		out = append(out, studentSessionView{
			ID:        s.ID,
			Title:     s.Title,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Radius:    s.Radius,
			State:     s.State.String(),
		})
	}
	respond(c, http.StatusOK, gin.H{"sessions": out})
}
