// Package sandbox serves the demo approval endpoints used by the checkout page.
package sandbox

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/models"
	"github.com/tapterm/paybroker/internal/sessions"
)

// RegisterSandboxRoutes registers /api/sandbox routes.
func RegisterSandboxRoutes(r *gin.Engine, apiKey string, sessionSvc *sessions.Service) {
	if r == nil || sessionSvc == nil {
		return
	}
	h := NewPayHandler(sessionSvc)
	sandbox := r.Group("/api/sandbox")
	sandbox.POST("/pay", apihttp.OperatorOrAPIKeyMiddleware(apiKey), h.Pay)
	sandbox.GET("/customer-pay", h.CustomerPay)
	sandbox.POST("/customer-pay", h.CustomerPay)
}

// PayHandler approves sessions on behalf of a simulated customer.
type PayHandler struct {
	sessions *sessions.Service
}

// NewPayHandler constructs a PayHandler.
func NewPayHandler(sessionSvc *sessions.Service) *PayHandler {
	return &PayHandler{sessions: sessionSvc}
}

type payRequest struct {
	SessionID string `json:"sessionId" form:"sessionId"`
}

// Pay approves the named session. Form posts are redirected to the checkout
// page; JSON callers get the paid session back.
func (h *PayHandler) Pay(c *gin.Context) {
	var body payRequest
	if apihttp.IsJSONRequest(c) {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	} else if errBind := c.ShouldBind(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	sessionID := strings.TrimSpace(body.SessionID)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId required"})
		return
	}

	row, errApprove := h.sessions.Approve(c.Request.Context(), apihttp.CallerRole(c), sessionID)
	if errApprove != nil {
		apihttp.RespondError(c, errApprove)
		return
	}
	respondApproved(c, row)
}

// CustomerPay is the unauthenticated approval link: ?sessionId= approves that
// session if it is the newest pending one, ?terminalId= approves whatever is
// newest for the terminal.
func (h *PayHandler) CustomerPay(c *gin.Context) {
	sessionID := strings.TrimSpace(firstNonEmpty(c.Query("sessionId"), c.PostForm("sessionId")))
	terminalID := strings.TrimSpace(firstNonEmpty(c.Query("terminalId"), c.PostForm("terminalId")))

	var (
		row        *models.PaymentSession
		errApprove error
	)
	switch {
	case sessionID != "":
		row, errApprove = h.sessions.Approve(c.Request.Context(), sessions.RoleSandbox, sessionID)
	case terminalID != "":
		row, errApprove = h.sessions.ApproveNewestForTerminal(c.Request.Context(), sessions.RoleSandbox, terminalID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "terminalId_or_sessionId_required"})
		return
	}
	if errApprove != nil {
		apihttp.RespondError(c, errApprove)
		return
	}
	respondApproved(c, row)
}

func respondApproved(c *gin.Context, row *models.PaymentSession) {
	if apihttp.WantsJSON(c) {
		c.JSON(http.StatusOK, row)
		return
	}
	c.Redirect(http.StatusSeeOther, apihttp.CheckoutPath(row.TerminalID))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
