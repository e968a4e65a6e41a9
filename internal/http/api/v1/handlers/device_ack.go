package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	apihttp "github.com/tapterm/paybroker/internal/http"
)

// deviceAckRequest is what terminals report after showing a result.
type deviceAckRequest struct {
	SessionID  string `json:"sessionId"`
	TerminalID string `json:"terminalId"`
	Status     string `json:"status"`
}

// DeviceAck records a terminal's acknowledgement. The body is optional and
// never rejected.
func DeviceAck(c *gin.Context) {
	var body deviceAckRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&body)
	}
	log.WithFields(log.Fields{
		"device_id":   c.GetHeader(apihttp.HeaderDeviceID),
		"session_id":  body.SessionID,
		"terminal_id": body.TerminalID,
		"status":      body.Status,
	}).Info("device ack")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
