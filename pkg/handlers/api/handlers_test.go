package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"media-acquire-go/pkg/appctx"
	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/config"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/orchestrator"
	"media-acquire-go/pkg/proxyrotator"
	"media-acquire-go/pkg/strategy"
	"media-acquire-go/pkg/types"
)

// fakeExtractor scripts extraction outcomes for handler tests.
type fakeExtractor struct {
	result *types.Extraction
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, videoID string, strat strategy.Strategy, proxyURL string, bundle *auth.Bundle) (*types.Extraction, error) {
	return f.result, f.err
}

func testExtraction() *types.Extraction {
	return &types.Extraction{
		Info: types.VideoInfo{ID: "dQw4w9WgXcQ", Title: "test video"},
		Renditions: []types.Rendition{
			{
				ID: "22", URL: "https://cdn.example.com/22", Container: "mp4",
				Height: 720, VideoCodec: "avc1.64001F", AudioCodec: "mp4a.40.2",
				Bitrate: 1500, Transport: types.TransportHTTPS,
			},
		},
	}
}

func newTestMux(t *testing.T, ext *fakeExtractor) *http.ServeMux {
	t.Helper()
	log := logging.New("error", false, nil)
	cfg := &config.Config{
		DefaultRegion:  "us",
		ResolveTimeout: 5 * time.Second,
	}
	ctx := appctx.New(cfg, log)
	rotator := proxyrotator.New(nil, log)
	cache := auth.NewRegionCache(time.Hour)
	ctx.WithRotator(rotator).WithAuthCache(cache)

	orch := orchestrator.New(rotator, strategy.Default(), ext, nil, cache, log, orchestrator.Options{
		DefaultRegion:  "us",
		AttemptTimeout: time.Second,
	})
	ctx.WithOrchestrator(orch)

	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["provider_configured"] != false {
		t.Errorf("provider_configured = %v, want false", resp["provider_configured"])
	}
}

func TestHandleResolve_Success(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodPost, "/api/resolve",
		`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "quality": "720p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var media types.ResolvedMedia
	if err := json.Unmarshal(w.Body.Bytes(), &media); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if media.Video == nil || media.Video.ID != "22" {
		t.Errorf("video = %+v", media.Video)
	}
	if media.NeedsMerge {
		t.Error("muxed selection should not need a merge")
	}
	if media.Info.Title != "test video" {
		t.Errorf("title = %q", media.Info.Title)
	}
}

func TestHandleResolve_CountryMapsToRegion(t *testing.T) {
	// Country-only requests route through the geo mapping; a request for
	// Germany must not error even though only "region" is first-class.
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodPost, "/api/resolve",
		`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "country": "DE"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleResolve_BadRequests(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", "{"},
		{"missing url", `{"quality": "720p"}`},
		{"unrecognized url", `{"url": "https://example.com/x"}`},
		{"unrecognized quality", `{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "quality": "potato"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, mux, http.MethodPost, "/api/resolve", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleResolve_UpstreamBlockedIsServiceUnavailable(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{err: errors.New("Sign in to confirm you're not a bot")})

	w := doJSON(t, mux, http.MethodPost, "/api/resolve",
		`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp["error"], "retry later") {
		t.Errorf("error = %q, want retry hint", resp["error"])
	}
}

func TestHandleResolve_NoRenditionIsNotFound(t *testing.T) {
	// Extraction succeeds but every rendition is unresolved.
	locked := testExtraction()
	locked.Renditions[0].URL = ""
	mux := newTestMux(t, &fakeExtractor{result: locked})

	w := doJSON(t, mux, http.MethodPost, "/api/resolve",
		`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleDownload_NotConfigured(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodPost, "/api/download",
		`{"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestHandleProxies(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodGet, "/api/proxies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["pool"]) != 0 {
		t.Errorf("pool = %v, want empty", resp["pool"])
	}
}

func TestHandleAuthRefresh_NoProvider(t *testing.T) {
	mux := newTestMux(t, &fakeExtractor{result: testExtraction()})

	w := doJSON(t, mux, http.MethodPost, "/api/auth/refresh", `{"region": "us"}`)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}
