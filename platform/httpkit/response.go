// Package httpkit holds the gin plumbing shared by outreach handlers:
// response helpers, error mapping and the service-token middleware.
package httpkit

import (
	"errors"
	"net/http"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx JSON response. Reason is the
// machine-readable rejection reason collaborators branch on.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Reason  string      `json:"reason,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// JSON writes payload with status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes payload with 200.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Error writes an ErrorResponse without a reason.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError writes err and reports whether there was one. Untyped errors
// become a 500 without leaking their text.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return true
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message, Reason: appErr.Reason})
	return true
}
