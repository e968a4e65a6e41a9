// Package v1 exposes the device and integration API under /api/v1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/http/api/v1/handlers"
	"github.com/tapterm/paybroker/internal/sessions"
)

// RegisterV1Routes registers the device-facing routes.
func RegisterV1Routes(r *gin.Engine, apiKey string, sessionSvc *sessions.Service, deviceSvc *devices.Service, checkoutURL func(string) string) {
	if r == nil || sessionSvc == nil || deviceSvc == nil {
		return
	}

	v1 := r.Group("/api/v1")

	sessionHandler := handlers.NewSessionHandler(sessionSvc, deviceSvc)
	v1.GET("/sessions", sessionHandler.List)
	v1.GET("/sessions/:id", sessionHandler.Get)

	authed := v1.Group("")
	authed.Use(apihttp.APIKeyAuthMiddleware(apiKey))

	bootstrapHandler := handlers.NewBootstrapHandler(deviceSvc, checkoutURL)
	authed.GET("/bootstrap", bootstrapHandler.Bootstrap)

	authed.POST("/sessions", sessionHandler.Create)
	authed.POST("/payments", sessionHandler.CreatePayment)
	authed.POST("/device/ack", handlers.DeviceAck)
}
