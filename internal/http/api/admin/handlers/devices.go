package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
)

// DeviceHandler manages device records from the admin devices page.
type DeviceHandler struct {
	devices *devices.Service
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(deviceSvc *devices.Service) *DeviceHandler {
	return &DeviceHandler{devices: deviceSvc}
}

// Upsert creates or overwrites a device from the form.
func (h *DeviceHandler) Upsert(c *gin.Context) {
	deviceID := strings.TrimSpace(c.PostForm("deviceId"))
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId required"})
		return
	}
	params := devices.UpsertParams{
		DeviceID:   deviceID,
		StoreCode:  c.PostForm("storeCode"),
		TerminalID: c.PostForm("terminalId"),
		Currency:   c.PostForm("currency"),
	}
	amount, ok, errAmount := parseFormAmount(c.PostForm("amount"))
	if errAmount != nil {
		apihttp.RespondError(c, errAmount)
		return
	}
	if ok {
		params.Amount = &amount
	}
	if _, errUpsert := h.devices.Upsert(c.Request.Context(), params); errUpsert != nil {
		apihttp.RespondError(c, errUpsert)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/devices")
}

// Delete removes a device; unknown ids are ignored.
func (h *DeviceHandler) Delete(c *gin.Context) {
	if errDelete := h.devices.Delete(c.Request.Context(), c.PostForm("deviceId")); errDelete != nil {
		apihttp.RespondError(c, errDelete)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/devices")
}

// List returns devices as JSON, optionally filtered by ?keyword=.
func (h *DeviceHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, errList := h.devices.List(c.Request.Context(), limit, c.Query("keyword"))
	if errList != nil {
		apihttp.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": rows})
}
