package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/sessions"
)

// SessionHandler backs the operator session tools.
type SessionHandler struct {
	sessions *sessions.Service
	defaults devices.Defaults
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessionSvc *sessions.Service, defaults devices.Defaults) *SessionHandler {
	return &SessionHandler{sessions: sessionSvc, defaults: defaults}
}

// Create opens a pending session from the operator form and shows its checkout page.
func (h *SessionHandler) Create(c *gin.Context) {
	terminalID := strings.TrimSpace(c.PostForm("terminalId"))
	if terminalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "terminalId required"})
		return
	}
	amount := h.defaults.Amount
	parsed, ok, errAmount := parseFormAmount(c.PostForm("amount"))
	if errAmount != nil {
		apihttp.RespondError(c, errAmount)
		return
	}
	if ok {
		amount = parsed
	}
	currency := strings.TrimSpace(c.PostForm("currency"))
	if currency == "" {
		currency = h.defaults.Currency
	}

	row, errCreate := h.sessions.Create(c.Request.Context(), sessions.RoleOperator, sessions.CreateParams{
		TerminalID: terminalID,
		Amount:     amount,
		Currency:   currency,
	})
	if errCreate != nil {
		apihttp.RespondError(c, errCreate)
		return
	}
	c.Redirect(http.StatusSeeOther, apihttp.CheckoutPath(row.TerminalID))
}

// Cancel cancels one session and returns to its checkout page, or to /admin
// when the form names no terminal.
func (h *SessionHandler) Cancel(c *gin.Context) {
	sessionID := strings.TrimSpace(c.PostForm("sessionId"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId required"})
		return
	}
	if _, errCancel := h.sessions.Cancel(c.Request.Context(), sessions.RoleOperator, sessionID); errCancel != nil {
		apihttp.RespondError(c, errCancel)
		return
	}
	back := "/admin"
	if terminalID := strings.TrimSpace(c.PostForm("terminalId")); terminalID != "" {
		back = apihttp.CheckoutPath(terminalID)
	}
	c.Redirect(http.StatusSeeOther, back)
}

// CancelOlder cancels every pending session of the terminal but the newest.
func (h *SessionHandler) CancelOlder(c *gin.Context) {
	terminalID := strings.TrimSpace(c.PostForm("terminalId"))
	if terminalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "terminalId required"})
		return
	}
	if _, errCancel := h.sessions.CancelOlderPending(c.Request.Context(), sessions.RoleOperator, terminalID); errCancel != nil {
		apihttp.RespondError(c, errCancel)
		return
	}
	c.Redirect(http.StatusSeeOther, apihttp.CheckoutPath(terminalID))
}

// Pending lists a terminal's pending sessions, newest first.
func (h *SessionHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, errList := h.sessions.ListPending(c.Request.Context(), c.Param("terminalId"), limit)
	if errList != nil {
		apihttp.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminalId": c.Param("terminalId"), "sessions": rows})
}

// parseFormAmount reads a decimal form value truncated toward zero.
// Blank or unparsable input reports false; a number too large for an
// amount is an error.
func parseFormAmount(raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, errParse := strconv.ParseFloat(raw, 64)
	if errParse != nil && !errors.Is(errParse, strconv.ErrRange) {
		return 0, false, nil
	}
	amount, errAmount := sessions.TruncateAmount(v)
	if errAmount != nil {
		return 0, false, errAmount
	}
	return amount, true, nil
}
