// Package app wires configuration, storage and the HTTP surface into a runnable broker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/config"
	"github.com/tapterm/paybroker/internal/db"
	"github.com/tapterm/paybroker/internal/devices"
	apihttp "github.com/tapterm/paybroker/internal/http"
	"github.com/tapterm/paybroker/internal/http/api/admin"
	"github.com/tapterm/paybroker/internal/http/api/pages"
	"github.com/tapterm/paybroker/internal/http/api/sandbox"
	v1 "github.com/tapterm/paybroker/internal/http/api/v1"
	"github.com/tapterm/paybroker/internal/security"
	"github.com/tapterm/paybroker/internal/sessions"
	"github.com/tapterm/paybroker/internal/terminals"
	"github.com/tapterm/paybroker/internal/webui"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Services bundles the domain services built on one database handle.
type Services struct {
	DB        *gorm.DB
	Allocator *terminals.Allocator
	Sessions  *sessions.Service
	Devices   *devices.Service
}

// NewServices builds the domain services from cfg.
func NewServices(cfg config.Config, conn *gorm.DB) *Services {
	allocator := terminals.NewAllocator(conn, cfg.TerminalPrefix, cfg.TerminalPad)
	return &Services{
		DB:        conn,
		Allocator: allocator,
		Sessions:  sessions.NewService(conn),
		Devices: devices.NewService(conn, allocator, devices.Defaults{
			StoreCode: cfg.DefaultStoreCode,
			Amount:    cfg.DefaultAmount,
			Currency:  cfg.DefaultCurrency,
		}),
	}
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.WithField("dialect", db.DialectName(conn)).Info("migrations applied")
	return nil
}

// AllocateTerminal mints one terminal id for storeCode outside of enrollment.
func AllocateTerminal(ctx context.Context, cfg config.Config, storeCode string) (string, error) {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close(conn) }()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return "", errMigrate
	}
	if strings.TrimSpace(storeCode) == "" {
		storeCode = cfg.DefaultStoreCode
	}
	return terminals.NewAllocator(conn, cfg.TerminalPrefix, cfg.TerminalPad).Allocate(ctx, storeCode)
}

// NewRouter builds the gin engine with every route group registered.
func NewRouter(cfg config.Config, svc *Services) (*gin.Engine, error) {
	bundle, errLoad := webui.Load()
	if errLoad != nil {
		return nil, fmt.Errorf("load web templates: %w", errLoad)
	}
	adminKeyHash, errHash := security.HashPassword(cfg.AdminKey)
	if errHash != nil {
		return nil, fmt.Errorf("hash admin key: %w", errHash)
	}
	secret := cfg.SessionSecret
	if strings.TrimSpace(secret) == "" {
		generated, errSecret := security.GenerateRandomString(64)
		if errSecret != nil {
			return nil, errSecret
		}
		secret = generated
		log.Warn("SESSION_SECRET not set; operator sessions will not survive a restart")
	}
	auth := apihttp.OperatorAuth{
		Secret: secret,
		TTL:    cfg.AdminSessionTTL,
		Secure: strings.HasPrefix(strings.ToLower(cfg.PublicBaseURL), "https://"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), apihttp.RequestLoggerMiddleware(), apihttp.OperatorSessionMiddleware(auth))

	engine.GET("/healthz", apihttp.NewHealthHandler(svc.DB).Healthz)
	v1.RegisterV1Routes(engine, cfg.APIKey, svc.Sessions, svc.Devices, cfg.CheckoutURL)
	sandbox.RegisterSandboxRoutes(engine, cfg.APIKey, svc.Sessions)
	admin.RegisterAdminRoutes(engine, auth, adminKeyHash, svc.Sessions, svc.Devices)
	pages.RegisterPageRoutes(engine, bundle, svc.Sessions, svc.Devices, svc.Allocator)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
	return engine, nil
}

// RunServer boots the broker and blocks until ctx is canceled.
func RunServer(ctx context.Context, cfg config.Config) error {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	engine, errRouter := NewRouter(cfg, NewServices(cfg, conn))
	if errRouter != nil {
		return errRouter
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":     cfg.ListenAddr,
			"dialect":  db.DialectName(conn),
			"base_url": cfg.PublicBaseURL,
		}).Info("payment broker listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}
