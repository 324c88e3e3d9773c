package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wanderline/auth-api/internal/middleware"
	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/service"
)

func TestSecurityHandlerStatusWithoutClaims(t *testing.T) {
	handler := NewSecurityHandler(nil, nil)

	c, w := newTestContext(t, http.MethodGet, "/security/status", "")
	handler.Status(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecurityHandlerEventsRejectsBadSince(t *testing.T) {
	handler := NewSecurityHandler(nil, nil)

	c, w := newTestContext(t, http.MethodGet, "/security/events?since=yesterday", "")
	handler.Events(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityHandlerEventsRejectsBadLimit(t *testing.T) {
	handler := NewSecurityHandler(nil, nil)

	c, w := newTestContext(t, http.MethodGet, "/security/events?limit=-3", "")
	handler.Events(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityHandlerClearLockoutRequiresPair(t *testing.T) {
	handler := NewSecurityHandler(nil, nil)

	c, w := newTestContext(t, http.MethodDelete, "/security/lockouts?email=user@example.com", "")
	c.Set(middleware.ContextUserKey, &models.AccessClaims{UserID: "admin", Role: models.RoleAdmin})
	handler.ClearLockout(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHandlerHealth(t *testing.T) {
	handler := NewMetricsHandler(nil)

	c, w := newTestContext(t, http.MethodGet, "/health", "")
	handler.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordAuthOutcome("login", "success")
	handler := NewMetricsHandler(metrics)

	c, w := newTestContext(t, http.MethodGet, "/metrics", "")
	handler.Prometheus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "auth_attempts_total"))
}
