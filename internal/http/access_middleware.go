// Package http holds the middleware and response helpers shared by the API route groups.
package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/security"
	"github.com/tapterm/paybroker/internal/sessions"
)

// Header and cookie names used by the broker.
const (
	HeaderAPIKey     = "x-api-key"
	HeaderDeviceID   = "x-device-id"
	HeaderStoreCode  = "x-store-code"
	OperatorCookie   = "admin"
	contextOperator  = "operator"
	contextAPIKeyOK  = "apiKeyAuthed"
	operatorLoginURL = "/admin"
)

// OperatorAuth issues and verifies the operator session cookie.
type OperatorAuth struct {
	Secret string        // HS256 signing secret.
	TTL    time.Duration // Cookie and token lifetime.
	Secure bool          // Mark the cookie Secure (HTTPS deployments).
}

// Issue signs a fresh operator token and sets it as the session cookie.
func (a OperatorAuth) Issue(c *gin.Context) error {
	token, errToken := security.GenerateOperatorToken(a.Secret, a.TTL)
	if errToken != nil {
		return errToken
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OperatorCookie, token, int(a.TTL.Seconds()), "/", "", a.Secure, true)
	return nil
}

// Clear removes the operator session cookie.
func (a OperatorAuth) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(OperatorCookie, "", -1, "/", "", a.Secure, true)
}

// Verify reports whether the request carries a valid operator cookie.
func (a OperatorAuth) Verify(c *gin.Context) bool {
	token, errCookie := c.Cookie(OperatorCookie)
	if errCookie != nil || strings.TrimSpace(token) == "" {
		return false
	}
	if _, errParse := security.ParseOperatorToken(a.Secret, token); errParse != nil {
		log.WithError(errParse).Debug("operator cookie rejected")
		return false
	}
	return true
}

// OperatorSessionMiddleware marks requests that carry a valid operator cookie.
// It never aborts; guards further down decide what an anonymous caller may do.
func OperatorSessionMiddleware(auth OperatorAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.Verify(c) {
			c.Set(contextOperator, true)
		}
		c.Next()
	}
}

// IsOperator reports whether OperatorSessionMiddleware accepted the request.
func IsOperator(c *gin.Context) bool {
	return c.GetBool(contextOperator)
}

// APIKeyAuthMiddleware rejects requests without the configured x-api-key header.
func APIKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !security.APIKeyMatches(apiKey, c.GetHeader(HeaderAPIKey)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(contextAPIKeyOK, true)
		c.Next()
	}
}

// OperatorOrAPIKeyMiddleware admits either a signed-in operator or an API key holder.
func OperatorOrAPIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsOperator(c) {
			c.Next()
			return
		}
		if security.APIKeyMatches(apiKey, c.GetHeader(HeaderAPIKey)) {
			c.Set(contextAPIKeyOK, true)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

// RequireOperatorRedirect sends anonymous form submissions back to the login page.
func RequireOperatorRedirect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsOperator(c) {
			c.Redirect(http.StatusSeeOther, operatorLoginURL)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireOperatorJSON answers 401 for anonymous JSON callers.
func RequireOperatorJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsOperator(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// CallerRole maps the authenticated principal to a lifecycle role.
// Operators win over API key holders when both are present.
func CallerRole(c *gin.Context) sessions.Role {
	if IsOperator(c) {
		return sessions.RoleOperator
	}
	if c.GetBool(contextAPIKeyOK) {
		return sessions.RoleDevice
	}
	return sessions.RoleSandbox
}
