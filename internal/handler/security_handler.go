package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/service"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
	"github.com/wanderline/auth-api/pkg/response"
)

// SecurityHandler exposes account security views and admin operations.
type SecurityHandler struct {
	service *service.AuthService
	exports *service.ExportService
}

// NewSecurityHandler creates a new handler.
func NewSecurityHandler(svc *service.AuthService, exports *service.ExportService) *SecurityHandler {
	return &SecurityHandler{service: svc, exports: exports}
}

// Status returns the caller's current security state.
func (h *SecurityHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status, err := h.service.SecurityStatus(c.Request.Context(), claims, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}

// Events lists recorded security events. Admin only.
func (h *SecurityHandler) Events(c *gin.Context) {
	filter := models.EventFilter{
		EventType: c.Query("event_type"),
		Severity:  models.EventSeverity(c.Query("severity")),
		Email:     c.Query("email"),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339"))
			return
		}
		filter.Since = &since
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	events, err := h.service.ListEvents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events, map[string]interface{}{"count": len(events)})
}

// ExportEvents renders the filtered audit trail to CSV and returns a
// signed download token. Admin only.
func (h *SecurityHandler) ExportEvents(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.EventFilter{
		EventType: c.Query("event_type"),
		Severity:  models.EventSeverity(c.Query("severity")),
		Email:     c.Query("email"),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339"))
			return
		}
		filter.Since = &since
	}

	actor := models.Actor{UserID: claims.UserID, Email: claims.Email, IPAddress: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.exports.ExportEvents(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// DownloadExport streams a previously generated export. The signed token
// is the credential; no session is required.
func (h *SecurityHandler) DownloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}

	file, err := h.exports.OpenExport(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.FileAttachment(file.Name(), filepath.Base(file.Name()))
}

// ClearLockout removes an active lockout for an email and ip pair. Admin only.
func (h *SecurityHandler) ClearLockout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	email := c.Query("email")
	ip := c.Query("ip")
	if email == "" || ip == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "email and ip query parameters are required"))
		return
	}

	if err := h.service.ClearLockout(c.Request.Context(), claims, email, ip); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
