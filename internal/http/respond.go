package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/devices"
	"github.com/tapterm/paybroker/internal/sessions"
	"github.com/tapterm/paybroker/internal/terminals"
)

// ConflictMessage is returned with every 409 from an approval path.
const ConflictMessage = "Only the most recent pending session can be approved. Cancel older ones first."

// RespondError maps service errors onto HTTP status codes and JSON bodies.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound), errors.Is(err, devices.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, sessions.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": ConflictMessage})
	case errors.Is(err, devices.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": validationMessage(err)})
	case errors.Is(err, sessions.ErrInvalidInput), errors.Is(err, devices.ErrInvalidInput), errors.Is(err, terminals.ErrEmptyStoreCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, sessions.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// validationMessage strips the sentinel prefix so clients see "terminalId required".
func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}

// IsJSONRequest reports whether the request body is JSON.
func IsJSONRequest(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.ContentType()), "application/json")
}

// WantsJSON reports whether the caller sent JSON or asked for it back.
func WantsJSON(c *gin.Context) bool {
	return IsJSONRequest(c) || strings.Contains(strings.ToLower(c.GetHeader("Accept")), "application/json")
}

// CheckoutPath returns the relative checkout page path for a terminal.
func CheckoutPath(terminalID string) string {
	return "/p/" + terminalID
}
