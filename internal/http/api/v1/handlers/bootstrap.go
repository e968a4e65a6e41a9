package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
)

// BootstrapHandler enrolls devices and returns their terminal assignment.
type BootstrapHandler struct {
	devices     *devices.Service
	checkoutURL func(string) string
}

// NewBootstrapHandler constructs a BootstrapHandler.
func NewBootstrapHandler(deviceSvc *devices.Service, checkoutURL func(string) string) *BootstrapHandler {
	return &BootstrapHandler{devices: deviceSvc, checkoutURL: checkoutURL}
}

// bootstrapResponse is the enrollment payload plus the checkout link.
type bootstrapResponse struct {
	devices.BootstrapResult
	CheckoutURL string `json:"checkoutUrl"`
}

// Bootstrap resolves the calling device. The deviceId query parameter wins
// over the x-device-id header; the x-store-code header wins over ?store=.
func (h *BootstrapHandler) Bootstrap(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Query("deviceId"))
	if deviceID == "" {
		deviceID = c.GetHeader(apihttp.HeaderDeviceID)
	}
	storeCode := strings.TrimSpace(c.GetHeader(apihttp.HeaderStoreCode))
	if storeCode == "" {
		storeCode = c.Query("store")
	}

	res, errBootstrap := h.devices.Bootstrap(c.Request.Context(), deviceID, storeCode)
	if errBootstrap != nil {
		apihttp.RespondError(c, errBootstrap)
		return
	}
	c.JSON(http.StatusOK, bootstrapResponse{
		BootstrapResult: res,
		CheckoutURL:     h.checkoutURL(res.TerminalID),
	})
}
