// Package pages renders the checkout page and the operator pages.
package pages

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/models"
	"github.com/tapterm/paybroker/internal/sessions"
	"github.com/tapterm/paybroker/internal/terminals"
	"github.com/tapterm/paybroker/internal/webui"
)

// RegisterPageRoutes installs the templates and page routes on r.
func RegisterPageRoutes(r *gin.Engine, bundle webui.Bundle, sessionSvc *sessions.Service, deviceSvc *devices.Service, allocator *terminals.Allocator) {
	if r == nil || sessionSvc == nil || deviceSvc == nil {
		return
	}
	r.SetHTMLTemplate(bundle.Templates)
	r.StaticFS("/assets", bundle.AssetsFS)

	h := &PageHandler{sessions: sessionSvc, devices: deviceSvc, allocator: allocator}
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/admin") })
	r.GET("/p/:terminalId", h.Checkout)
	r.GET("/admin", h.Admin)
	r.GET("/admin/devices", h.Devices)
}

// PageHandler renders HTML pages.
type PageHandler struct {
	sessions  *sessions.Service
	devices   *devices.Service
	allocator *terminals.Allocator
}

// pageData is shared by every template.
type pageData struct {
	Title            string
	Operator         bool
	DefaultStoreCode string
	DefaultAmount    int64
	DefaultCurrency  string

	TerminalID string
	Session    *models.PaymentSession
	Pending    []models.PaymentSession
	Sessions   []models.PaymentSession
	Devices    []models.Device
	Stores     []models.TerminalSequence
}

func (h *PageHandler) base(c *gin.Context, title string) pageData {
	defaults := h.devices.Defaults()
	return pageData{
		Title:            title,
		Operator:         apihttp.IsOperator(c),
		DefaultStoreCode: defaults.StoreCode,
		DefaultAmount:    defaults.Amount,
		DefaultCurrency:  defaults.Currency,
	}
}

// Checkout shows the newest pending session with a sandbox approve button,
// plus operator tools when signed in.
func (h *PageHandler) Checkout(c *gin.Context) {
	terminalID := strings.TrimSpace(c.Param("terminalId"))
	data := h.base(c, "Checkout "+terminalID)
	data.TerminalID = terminalID

	newest, errNewest := h.sessions.NewestPending(c.Request.Context(), terminalID)
	switch {
	case errNewest == nil:
		data.Session = newest
	case !errors.Is(errNewest, sessions.ErrNotFound):
		h.fail(c, errNewest)
		return
	}
	if data.Operator {
		pending, errPending := h.sessions.ListPending(c.Request.Context(), terminalID, sessions.DefaultPendingLimit)
		if errPending != nil {
			h.fail(c, errPending)
			return
		}
		data.Pending = pending
	}
	c.HTML(http.StatusOK, "checkout.tmpl", data)
}

// Admin shows the login form or the recent session list.
func (h *PageHandler) Admin(c *gin.Context) {
	data := h.base(c, "Admin")
	if data.Operator {
		rows, errList := h.sessions.ListRecent(c.Request.Context(), sessions.DefaultPendingLimit)
		if errList != nil {
			h.fail(c, errList)
			return
		}
		data.Sessions = rows
	}
	c.HTML(http.StatusOK, "admin.tmpl", data)
}

// Devices shows the device table with upsert and delete forms.
func (h *PageHandler) Devices(c *gin.Context) {
	data := h.base(c, "Devices")
	if data.Operator {
		rows, errList := h.devices.List(c.Request.Context(), 0, c.Query("keyword"))
		if errList != nil {
			h.fail(c, errList)
			return
		}
		data.Devices = rows
		if h.allocator != nil {
			stores, errStores := h.allocator.List(c.Request.Context())
			if errStores != nil {
				h.fail(c, errStores)
				return
			}
			data.Stores = stores
		}
	}
	c.HTML(http.StatusOK, "devices.tmpl", data)
}

func (h *PageHandler) fail(c *gin.Context, err error) {
	apihttp.RespondError(c, err)
}
