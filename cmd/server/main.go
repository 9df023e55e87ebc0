package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"contentpay/backend/internal/api"
	"contentpay/backend/internal/auth"
	"contentpay/backend/internal/config"
	"contentpay/backend/internal/generator"
	"contentpay/backend/internal/ledger"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/mcp"
	"contentpay/backend/internal/orchestrator"
	"contentpay/backend/internal/pipeline"
	"contentpay/backend/internal/registry"
	"contentpay/backend/internal/repository"
	"contentpay/backend/internal/tls"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, configFile string
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the ContentPay API and MCP server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile, configFile)
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default ./config.yaml)")
	return cmd
}

func run(ctx context.Context, envFile, configFile string) error {
	cfg, err := config.LoadConfig(envFile, configFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"storage", cfg.Storage.Driver,
		"okta_domain", cfg.Auth.OktaDomain,
		"generator_url", cfg.Generator.URL,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client id matches the backend client id; PKCE from the docs page will fail for a confidential client")
	}

	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err.Error())
		return err
	}
	defer stores.Close()
	logger.Info("Storage ready", "driver", cfg.Storage.Driver)

	ledgerSvc := ledger.New(stores.Ledger, logger)
	if n, err := ledgerSvc.SeedBalances(ctx, cfg.Seed.Balances); err != nil {
		return fmt.Errorf("failed to seed balances: %w", err)
	} else if n > 0 {
		logger.Info("Seeded balances", "users", n)
	}

	svc, err := pipeline.New(
		orchestrator.New(logger),
		ledgerSvc,
		registry.New(stores.Content, logger),
		newGenerator(cfg, logger),
		cfg.Generator.Timeout,
		logger,
	)
	if err != nil {
		return err
	}
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize auth", "error", err.Error())
		return err
	}

	apiServer := api.NewServer(svc, logger)
	if stores.Pool != nil {
		apiServer.AddHealthCheck("database", stores.Ping)
	}

	e := newEcho(cfg, logger, apiServer, authz, svc)
	return serve(ctx, cfg, logger, e)
}

func newGenerator(cfg *config.Config, logger *logging.Logger) generator.Generator {
	if cfg.Generator.URL != "" {
		logger.Info("Using generation sidecar", "url", cfg.Generator.URL)
		return generator.NewHTTPGenerator(cfg.Generator.URL, &http.Client{Timeout: cfg.Generator.Timeout})
	}
	logger.Info("Using mock generator", "min_latency", cfg.Generator.MinLatency.String(), "max_latency", cfg.Generator.MaxLatency.String())
	return generator.NewMockGenerator(cfg.Generator.MinLatency, cfg.Generator.MaxLatency, logger)
}

func newEcho(cfg *config.Config, logger *logging.Logger, apiServer *api.Server, authz *auth.Auth, svc *pipeline.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apiServer.ErrorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(otelecho.Middleware("contentpay"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"request_id", v.RequestID,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/health", apiServer.HandleHealth)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	requireAuth := echo.WrapMiddleware(authz.RequireAuth)

	apiGroup := e.Group("/api", requireAuth)
	api.RegisterHandlers(apiGroup, apiServer)
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(svc, logger)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers), requireAuth)
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers), requireAuth)
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))
	return e
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger, e *echo.Echo) error {
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Generator.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.TLS.Enable {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return errors.New("tls enabled but cert_file or key_file is not set")
		}
		if len(cfg.TLS.Hostnames) > 0 {
			created, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				return fmt.Errorf("failed to generate self-signed cert: %w", err)
			}
			if created {
				logger.Info("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
			}
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err.Error())
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err.Error())
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err.Error())
			}
			return err
		}
		logger.Info("Server stopped gracefully")
		return nil
	}
}
