package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/sessions"
)

// SessionHandler serves session creation and lookup for devices.
type SessionHandler struct {
	sessions *sessions.Service
	devices  *devices.Service
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessionSvc *sessions.Service, deviceSvc *devices.Service) *SessionHandler {
	return &SessionHandler{sessions: sessionSvc, devices: deviceSvc}
}

// createSessionRequest mirrors the JSON body; amount is a JSON number truncated toward zero.
type createSessionRequest struct {
	TerminalID string   `json:"terminalId"`
	Amount     *float64 `json:"amount"`
	Currency   string   `json:"currency"`
}

// Create opens a pending session. Without a terminalId the x-device-id header
// selects an enrolled device, whose amount and currency fill the blanks.
func (h *SessionHandler) Create(c *gin.Context) {
	body, ok := bindCreateRequest(c)
	if !ok {
		return
	}
	params := sessions.CreateParams{
		TerminalID: strings.TrimSpace(body.TerminalID),
		Currency:   strings.TrimSpace(body.Currency),
	}
	amount, errAmount := truncAmount(body.Amount)
	if errAmount != nil {
		apihttp.RespondError(c, errAmount)
		return
	}

	if deviceID := strings.TrimSpace(c.GetHeader(apihttp.HeaderDeviceID)); params.TerminalID == "" && deviceID != "" {
		device, errDevice := h.devices.Get(c.Request.Context(), deviceID)
		switch {
		case errDevice == nil:
			params.TerminalID = device.TerminalID
			if amount == nil {
				amount = &device.Amount
			}
			if params.Currency == "" {
				params.Currency = device.Currency
			}
		case !errors.Is(errDevice, devices.ErrNotFound):
			apihttp.RespondError(c, errDevice)
			return
		}
	}
	h.create(c, params, amount)
}

// CreatePayment opens a pending session for an explicit terminal.
func (h *SessionHandler) CreatePayment(c *gin.Context) {
	body, ok := bindCreateRequest(c)
	if !ok {
		return
	}
	amount, errAmount := truncAmount(body.Amount)
	if errAmount != nil {
		apihttp.RespondError(c, errAmount)
		return
	}
	h.create(c, sessions.CreateParams{
		TerminalID: strings.TrimSpace(body.TerminalID),
		Currency:   strings.TrimSpace(body.Currency),
	}, amount)
}

func (h *SessionHandler) create(c *gin.Context, params sessions.CreateParams, amount *int64) {
	if params.TerminalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "terminalId required"})
		return
	}
	defaults := h.devices.Defaults()
	params.Amount = defaults.Amount
	if amount != nil {
		params.Amount = *amount
	}
	if params.Currency == "" {
		params.Currency = defaults.Currency
	}

	row, errCreate := h.sessions.Create(c.Request.Context(), apihttp.CallerRole(c), params)
	if errCreate != nil {
		apihttp.RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// List returns the most recent sessions across terminals.
func (h *SessionHandler) List(c *gin.Context) {
	rows, errList := h.sessions.ListRecent(c.Request.Context(), sessions.DefaultRecentLimit)
	if errList != nil {
		apihttp.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Get returns one session.
func (h *SessionHandler) Get(c *gin.Context) {
	row, errGet := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		apihttp.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, row)
}

// bindCreateRequest decodes an optional JSON body; an empty body is accepted.
func bindCreateRequest(c *gin.Context) (createSessionRequest, bool) {
	var body createSessionRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return body, true
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return body, false
	}
	return body, true
}

// truncAmount reports nil for an absent amount.
func truncAmount(v *float64) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	n, err := sessions.TruncateAmount(*v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
