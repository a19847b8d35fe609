// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/config"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/orchestrator"
	"media-acquire-go/pkg/proxyrotator"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config       *config.Config
	Log          *logging.Logger
	Rotator      *proxyrotator.Rotator
	AuthCache    *auth.RegionCache
	Provider     interfaces.CredentialProvider
	Orchestrator *orchestrator.Orchestrator
	Materializer interfaces.Materializer
	BaseURL      string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithRotator sets the proxy rotator.
func (c *Context) WithRotator(r *proxyrotator.Rotator) *Context {
	c.Rotator = r
	return c
}

// WithAuthCache sets the credential cache.
func (c *Context) WithAuthCache(cache *auth.RegionCache) *Context {
	c.AuthCache = cache
	return c
}

// WithProvider sets the credential provider.
func (c *Context) WithProvider(p interfaces.CredentialProvider) *Context {
	c.Provider = p
	return c
}

// WithOrchestrator sets the acquisition orchestrator.
func (c *Context) WithOrchestrator(o *orchestrator.Orchestrator) *Context {
	c.Orchestrator = o
	return c
}

// WithMaterializer sets the materializer.
func (c *Context) WithMaterializer(m interfaces.Materializer) *Context {
	c.Materializer = m
	return c
}
