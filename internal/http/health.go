package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	dbutil "github.com/tapterm/paybroker/internal/db"
	"gorm.io/gorm"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database and reports the active dialect.
func (h *HealthHandler) Healthz(c *gin.Context) {
	dialect := dbutil.DialectName(h.db)
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		log.WithError(errDB).Warn("healthz: no sql handle")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": dialect})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		log.WithError(errPing).Warn("healthz: database ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": dialect})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "database": dialect})
}
