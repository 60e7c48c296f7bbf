// Package app assembles the gateway: configuration, registry, upstream
// provisioning client, services, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/aussiebroadwan/llmgate/internal/gate/http"
	"github.com/aussiebroadwan/llmgate/internal/gate/oidc"
	"github.com/aussiebroadwan/llmgate/internal/gate/proxy"
	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/internal/gate/store"
	"github.com/aussiebroadwan/llmgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/llmgate/internal/gate/upstream"
	"github.com/aussiebroadwan/llmgate/pkg/netx"
	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gateway with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	sessions *sessionx.Codec

	loginService *service.LoginService
	keyService   *service.KeyService
	authResolver *service.AuthResolver

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "llmgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("GATE_SESSION_SECRET is required")
	}
	app.sessions = sessionx.NewCodec(cfg.SessionSecret, cfg.SessionTTL)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"upstream", app.cfg.UpstreamURL,
		"campus_mode", app.cfg.CampusPoolKey != "",
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}

// initDatabase opens the registry and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	provider := oidc.NewGoogleProvider(
		app.cfg.OIDCClientID,
		app.cfg.OIDCClientSecret,
		app.cfg.BaseURL+"/callback",
	)

	app.loginService = &service.LoginService{
		Provider:      provider,
		Sessions:      app.sessions,
		AllowedDomain: app.cfg.AllowedDomain,
	}

	app.keyService = &service.KeyService{
		Store: app.db,
		Provisioner: upstream.NewClient(
			app.cfg.UpstreamURL,
			app.cfg.UpstreamAdminKey,
			app.cfg.KeyLimitUSD,
			app.cfg.KeyLimitReset,
		),
		KeyNameTemplate: app.cfg.KeyNameTemplate,
	}

	ranges := netx.ParseRanges(app.cfg.CampusRanges)
	if app.cfg.CampusRanges != "" && len(ranges) == 0 {
		app.logger.Warn("no usable campus ranges parsed", "raw", app.cfg.CampusRanges)
	}

	app.authResolver = &service.AuthResolver{
		Store:        app.db,
		PoolKey:      app.cfg.CampusPoolKey,
		CampusRanges: ranges,
	}
}

// initHTTP wires the router and HTTP server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.sessions,
		BuildVersion,
		app.cfg.BaseURL,
		app.cfg.TrustedIPHeader,
		app.db,
		app.logger,
	)

	router.LoginService = app.loginService
	router.KeyService = app.keyService
	router.AuthResolver = app.authResolver
	router.Transformer = &proxy.Transformer{
		BasePrompt:   app.cfg.SystemPrompt,
		CampusPrompt: app.cfg.CampusPrompt,
	}
	router.Forwarder = proxy.NewForwarder(app.cfg.UpstreamURL)

	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
