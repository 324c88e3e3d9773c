package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/service"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
	"github.com/wanderline/auth-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
	metrics *service.MetricsService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, metrics *service.MetricsService) *AuthHandler {
	return &AuthHandler{service: svc, metrics: metrics}
}

func (h *AuthHandler) recordOutcome(operation string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	h.metrics.RecordAuthOutcome(operation, outcome)
}

// Signup registers a new account and returns a signed-in token pair.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// no email to key on, so the garbage request burns a bare-IP slot
		if limitErr := h.service.ConsumeAuthBudget(c.Request.Context(), c.ClientIP(), "", c.Request.UserAgent()); limitErr != nil {
			response.Error(c, limitErr)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signup payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Signup(c.Request.Context(), req)
	h.recordOutcome("signup", err)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// Signin authenticates credentials and returns a token pair.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if limitErr := h.service.ConsumeAuthBudget(c.Request.Context(), c.ClientIP(), "", c.Request.UserAgent()); limitErr != nil {
			response.Error(c, limitErr)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	h.recordOutcome("login", err)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh rotates a refresh token into a new token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Refresh(c.Request.Context(), req)
	h.recordOutcome("refresh", err)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Signout revokes the caller's tokens and ends the session.
func (h *AuthHandler) Signout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	// body is optional; a missing refresh token still ends the session
	_ = c.ShouldBindJSON(&payload)

	err := h.service.Logout(c.Request.Context(), claims, tokenFromContext(c), payload.RefreshToken, c.ClientIP(), c.GetHeader("User-Agent"))
	h.recordOutcome("logout", err)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ChangePassword rotates the password and ends all other sessions.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	err := h.service.ChangePassword(c.Request.Context(), claims, req, c.ClientIP(), c.GetHeader("User-Agent"))
	h.recordOutcome("change_password", err)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me returns the authenticated user's stored profile.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info, nil)
}
