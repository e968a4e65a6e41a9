// Package admin registers the operator routes under /api/admin.
package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/http/api/admin/handlers"
	"github.com/tapterm/paybroker/internal/sessions"
)

// RegisterAdminRoutes registers login, session tools and device management.
// Form endpoints bounce anonymous callers to /admin; JSON endpoints answer 401.
func RegisterAdminRoutes(r *gin.Engine, auth apihttp.OperatorAuth, adminKeyHash string, sessionSvc *sessions.Service, deviceSvc *devices.Service) {
	if r == nil || sessionSvc == nil || deviceSvc == nil {
		return
	}

	admin := r.Group("/api/admin")

	authHandler := handlers.NewAuthHandler(auth, adminKeyHash)
	admin.POST("/login", authHandler.Login)
	admin.POST("/logout", authHandler.Logout)

	sessionHandler := handlers.NewSessionHandler(sessionSvc, deviceSvc.Defaults())
	deviceHandler := handlers.NewDeviceHandler(deviceSvc)

	forms := admin.Group("")
	forms.Use(apihttp.RequireOperatorRedirect())
	forms.POST("/sessions/create", sessionHandler.Create)
	forms.POST("/sessions/cancel", sessionHandler.Cancel)
	forms.POST("/sessions/cancel-older", sessionHandler.CancelOlder)
	forms.POST("/devices/upsert", deviceHandler.Upsert)
	forms.POST("/devices/delete", deviceHandler.Delete)

	api := admin.Group("")
	api.Use(apihttp.RequireOperatorJSON())
	api.GET("/devices", deviceHandler.List)
	api.GET("/terminals/:terminalId/pending", sessionHandler.Pending)
}
