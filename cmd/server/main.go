package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"jt-wrs/backend/internal/api"
	"jt-wrs/backend/internal/auth"
	"jt-wrs/backend/internal/config"
	"jt-wrs/backend/internal/logging"
	"jt-wrs/backend/internal/mcp"
	"jt-wrs/backend/internal/repository"
	"jt-wrs/backend/internal/services"
	"jt-wrs/backend/internal/tls"
)

const version = "0.1.0"

func main() {
	ctx := context.Background()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	// Initialize logging
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	logger.Info("Configuration loaded",
		"store_backend", cfg.Store.Backend,
		"store_root", cfg.Store.Root,
		"ams_url", cfg.AMS.URL,
		"git_server", cfg.Git.Server,
		"auth", cfg.Auth.Enable,
	)

	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	logger.Info("Starting JTracker Workflow Registry")

	// Initialize store
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		// the service still starts; /health reports the outage
		logger.Warn("Store not reachable yet", "backend", cfg.Store.Backend, "error", err)
	}
	logger.Info("Store connected", "backend", cfg.Store.Backend)

	// Initialize service layer
	registry := services.NewRegistryFromConfig(cfg, store, logger.With("component", "registry"))

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(otelecho.Middleware("jt-wrs"))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger.With("component", "auth"))
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		os.Exit(1)
	}

	// Mount REST API handlers; writes go through the bearer guard
	e.GET("/health", api.NewHandler(store).HandleHealth)
	api.RegisterHandlersWithBaseURL(e, api.NewServer(registry), api.BasePath, echo.WrapMiddleware(authz.RequireAuth))

	logger.Info("REST API handlers mounted", "base", api.BasePath, "write_auth", authz.Enabled())

	// Mount MCP protocol handlers; tools that write check the caller's token
	mcpServer := mcp.NewServer(registry, version, mcp.WithWriteGuard(authz.CheckWrite))
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer(), authz.WithPrincipal)
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec and Swagger UI
	e.GET("/openapi.yaml", api.SpecHandler(cfg.Auth.Issuer))
	e.GET("/docs", api.SwaggerHandler("/openapi.yaml"))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.TLS.Enable {
		created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			logger.Error("failed to prepare TLS certificate", "error", err)
			os.Exit(1)
		}
		if created {
			logger.Warn("Generated self-signed certificate", "cert", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}
