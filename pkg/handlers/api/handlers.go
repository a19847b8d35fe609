// Package api provides HTTP handlers for the acquisition API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"media-acquire-go/pkg/appctx"
	"media-acquire-go/pkg/geo"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/orchestrator"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Acquisition routes
	mux.HandleFunc("POST /api/resolve", h.handleResolve)
	mux.HandleFunc("POST /api/download", h.handleDownload)

	// Status routes
	mux.HandleFunc("GET /api/proxies", h.handleProxies)
	mux.HandleFunc("GET /api/auth/regions", h.handleAuthRegions)
	mux.HandleFunc("POST /api/auth/refresh", h.handleAuthRefresh)
}

// resolveRequest is the body for resolve and download calls. Region wins
// over Country when both are set.
type resolveRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

func (req *resolveRequest) region(defaultRegion string) string {
	if req.Region != "" {
		return req.Region
	}
	if req.Country != "" {
		return geo.RegionForCountry(req.Country)
	}
	return defaultRegion
}

// handleIndex serves basic service information.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": "media-acquire",
		"endpoints": []string{
			"GET /health",
			"POST /api/resolve",
			"POST /api/download",
			"GET /api/proxies",
			"GET /api/auth/regions",
			"POST /api/auth/refresh",
		},
	})
}

// handleHealth reports service health and pool state.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	cachedRegions := make([]string, 0)
	if h.ctx.AuthCache != nil {
		for region := range h.ctx.AuthCache.AllCached() {
			cachedRegions = append(cachedRegions, region)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"proxy_pool_size":     h.ctx.Rotator.Len(),
		"healthy_proxies":     len(h.ctx.Rotator.Healthy()),
		"cached_regions":      cachedRegions,
		"provider_configured": h.ctx.Provider != nil && h.ctx.Provider.IsConfigured(),
	})
}

// handleResolve runs the acquisition loop and returns the selected streams
// without downloading them.
func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.ctx.Config.ResolveTimeout)
	defer cancel()

	media, err := h.ctx.Orchestrator.Resolve(ctx, orchestrator.Request{
		URL:     req.URL,
		Quality: req.Quality,
		Region:  req.region(h.ctx.Config.DefaultRegion),
	})
	if err != nil {
		h.writeAcquisitionError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, media)
}

// handleDownload resolves and then materializes the media to disk, returning
// the output path.
func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Materializer == nil {
		h.writeError(w, http.StatusNotImplemented, "download support not configured")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.ctx.Config.DownloadTimeout)
	defer cancel()

	media, err := h.ctx.Orchestrator.Resolve(ctx, orchestrator.Request{
		URL:     req.URL,
		Quality: req.Quality,
		Region:  req.region(h.ctx.Config.DefaultRegion),
	})
	if err != nil {
		h.writeAcquisitionError(w, err)
		return
	}

	path, err := h.ctx.Materializer.Materialize(ctx, media, h.ctx.Config.OutputDir)
	if err != nil {
		h.log.Error("materialization failed", "url", req.URL, "error", err)
		h.writeError(w, http.StatusBadGateway, "download failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"title": media.Info.Title,
		"id":    media.Info.ID,
	})
}

// handleProxies reports egress pool status.
func (h *Handlers) handleProxies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"pool":    h.ctx.Rotator.All(),
		"healthy": h.ctx.Rotator.Healthy(),
	})
}

// handleAuthRegions reports which regions currently hold live credentials.
func (h *Handlers) handleAuthRegions(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any)
	for region, bundle := range h.ctx.AuthCache.AllCached() {
		out[region] = map[string]any{
			"has_tokens":   bundle.HasTokens(),
			"cookies":      len(bundle.Cookies),
			"extracted_at": bundle.ExtractedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handleAuthRefresh forces a credential refresh for a region.
func (h *Handlers) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Provider == nil || !h.ctx.Provider.IsConfigured() {
		h.writeError(w, http.StatusNotImplemented, "no credential provider configured")
		return
	}

	var req struct {
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	region := req.Region
	if region == "" {
		region = h.ctx.Config.DefaultRegion
	}
	if !geo.IsSupported(region) {
		h.writeError(w, http.StatusBadRequest, "unsupported region")
		return
	}

	bundle, err := h.ctx.Provider.Refresh(r.Context(), region, true, "")
	if err != nil {
		h.log.Error("manual refresh failed", "region", region, "error", err)
		h.writeError(w, http.StatusBadGateway, "credential provider unreachable")
		return
	}
	if bundle == nil {
		h.writeError(w, http.StatusBadGateway, "credential provider could not mint a bundle")
		return
	}
	h.ctx.AuthCache.Put(region, bundle)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"region":     region,
		"has_tokens": bundle.HasTokens(),
		"cookies":    len(bundle.Cookies),
	})
}

// writeAcquisitionError maps loop failures to HTTP statuses. Upstream blocks
// are reported as temporary so clients retry instead of giving up.
func (h *Handlers) writeAcquisitionError(w http.ResponseWriter, err error) {
	var ae *orchestrator.AcquisitionError
	if !errors.As(err, &ae) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.log.Warn("acquisition failed", "kind", string(ae.Kind), "video_id", ae.VideoID)

	switch ae.Kind {
	case orchestrator.KindNoRendition:
		h.writeError(w, http.StatusNotFound, "media unavailable at requested quality")
	case orchestrator.KindTimeout:
		h.writeError(w, http.StatusGatewayTimeout, "acquisition timed out, retry later")
	default:
		// Bot detection, proxy exhaustion and credential failures are all
		// transient conditions from the client's point of view.
		h.writeError(w, http.StatusServiceUnavailable, "upstream temporarily blocked, retry later")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
