package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/security"
)

// AuthHandler handles operator sign-in and sign-out.
type AuthHandler struct {
	auth         apihttp.OperatorAuth
	adminKeyHash string
}

// NewAuthHandler constructs an AuthHandler. adminKeyHash is the bcrypt hash of ADMIN_KEY.
func NewAuthHandler(auth apihttp.OperatorAuth, adminKeyHash string) *AuthHandler {
	return &AuthHandler{auth: auth, adminKeyHash: adminKeyHash}
}

// Login checks the submitted key and issues the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	key := strings.TrimSpace(c.PostForm("key"))
	if key == "" || !security.CheckPassword(h.adminKeyHash, key) {
		log.WithField("client_ip", c.ClientIP()).Warn("operator login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if errIssue := h.auth.Issue(c); errIssue != nil {
		log.WithError(errIssue).Error("issue operator cookie")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	log.WithField("client_ip", c.ClientIP()).Info("operator signed in")
	c.Redirect(http.StatusSeeOther, "/admin")
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.auth.Clear(c)
	c.Redirect(http.StatusSeeOther, "/admin")
}
