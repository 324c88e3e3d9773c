package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/wanderline/auth-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional metadata.
func JSON(c *gin.Context, status int, data interface{}, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error sends an error response converting the error to the common
// structure. A 429 carrying a wait hint gets the Retry-After header too.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds(appErr.RetryAfter), 10))
	}
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// RateLimited sends a 429 with a Retry-After header rounded up to whole
// seconds, plus the same hint in the body for JS clients.
func RateLimited(c *gin.Context, retryAfter time.Duration) {
	secs := retryAfterSeconds(retryAfter)
	c.Header("Cache-Control", "no-store")
	c.Header("Retry-After", strconv.FormatInt(secs, 10))
	c.JSON(http.StatusTooManyRequests, Envelope{
		Error: appErrors.ErrRateLimited,
		Meta:  map[string]interface{}{"retry_after_seconds": secs},
	})
}

// retryAfterSeconds rounds a wait up to whole seconds, never below one.
func retryAfterSeconds(retryAfter time.Duration) int64 {
	secs := int64(retryAfter.Seconds())
	if retryAfter > 0 && retryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
