// Package app provides the main application setup and dependency injection.
package app

import (
	"media-acquire-go/pkg/agentbrowser"
	"media-acquire-go/pkg/appctx"
	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/config"
	"media-acquire-go/pkg/extractor"
	"media-acquire-go/pkg/handlers/api"
	"media-acquire-go/pkg/httpclient"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/materializer"
	"media-acquire-go/pkg/orchestrator"
	"media-acquire-go/pkg/proxyrotator"
	"media-acquire-go/pkg/server"
	"media-acquire-go/pkg/strategy"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing media-acquire",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"proxy_pool_size", len(cfg.ProxyPool),
	)

	// Create application context
	ctx := appctx.New(cfg, log)

	// Create HTTP client factory
	httpClient := httpclient.New(cfg.AttemptTimeout, log)

	// Egress proxy pool
	rotator := proxyrotator.New(cfg.ProxyPool, log)
	ctx.WithRotator(rotator)

	// Credential cache
	authCache := auth.NewRegionCache(cfg.AuthTTL)
	ctx.WithAuthCache(authCache)

	// Credential provider, if configured
	var provider interfaces.CredentialProvider
	if cfg.ProviderURL != "" {
		provider = agentbrowser.NewClient(cfg.ProviderURL, cfg.ProviderTimeout, cfg.CookieDir, log)
		ctx.WithProvider(provider)
		log.Info("credential provider enabled", "url", cfg.ProviderURL)
	}

	// Extraction client and orchestrator
	playerClient := extractor.NewPlayerClient(httpClient, log)
	orch := orchestrator.New(rotator, strategy.Default(), playerClient, provider, authCache, log, orchestrator.Options{
		DefaultRegion:   cfg.DefaultRegion,
		AttemptTimeout:  cfg.AttemptTimeout,
		AttemptInterval: cfg.AttemptInterval,
	})
	ctx.WithOrchestrator(orch)

	// Materializer for download-to-disk requests
	ctx.WithMaterializer(materializer.New(httpClient, cfg.FFmpegPath, log))

	// Create HTTP server
	srv := server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting media-acquire server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
}
