package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/proxyrotator"
	"media-acquire-go/pkg/strategy"
	"media-acquire-go/pkg/types"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// attemptRecord captures one extractor call.
type attemptRecord struct {
	strategy string
	proxy    string
	hasToken bool
}

// fakeExtractor scripts extraction outcomes per attempt.
type fakeExtractor struct {
	attempts []attemptRecord
	respond  func(rec attemptRecord) (*types.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, videoID string, strat strategy.Strategy, proxyURL string, bundle *auth.Bundle) (*types.Extraction, error) {
	rec := attemptRecord{
		strategy: strat.Label,
		proxy:    proxyURL,
		hasToken: bundle != nil && bundle.POToken != "",
	}
	f.attempts = append(f.attempts, rec)
	return f.respond(rec)
}

// fakeProvider scripts credential refreshes.
type fakeProvider struct {
	configured bool
	calls      int
	bundle     *auth.Bundle
	err        error
}

func (f *fakeProvider) Refresh(ctx context.Context, region string, forceRefresh bool, hintURL string) (*auth.Bundle, error) {
	f.calls++
	return f.bundle, f.err
}

func (f *fakeProvider) IsConfigured() bool { return f.configured }

func goodExtraction() *types.Extraction {
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

func tokenBundle(t *testing.T) *auth.Bundle {
	t.Helper()
	b, err := auth.NewBundle("us", []auth.Cookie{{Name: "SID", Value: "v", Domain: ".example.com"}}, "potok", "visid")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newTestOrchestrator(t *testing.T, proxies []string, ext *fakeExtractor, provider *fakeProvider) (*Orchestrator, *auth.RegionCache) {
	t.Helper()
	log := logging.New("error", false, nil)
	cache := auth.NewRegionCache(time.Hour)
	// Assign through a nil check so an absent provider stays a nil
	// interface rather than a typed nil.
	var p interfaces.CredentialProvider
	if provider != nil {
		p = provider
	}
	o := New(proxyrotator.New(proxies, log), strategy.Default(), ext, p, cache, log, Options{
		DefaultRegion:  "us",
		AttemptTimeout: 5 * time.Second,
	})
	return o, cache
}

func TestResolve_FirstAttemptSucceeds(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return goodExtraction(), nil
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	media, err := o.Resolve(context.Background(), Request{URL: testVideoURL, Quality: "720p"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if media.Video == nil || media.Video.ID != "22" {
		t.Errorf("video = %+v", media.Video)
	}
	if len(ext.attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(ext.attempts))
	}
	if ext.attempts[0].strategy != "ios" {
		t.Errorf("first strategy = %q, want ios", ext.attempts[0].strategy)
	}
	if ext.attempts[0].proxy != "" {
		t.Errorf("proxy = %q, want direct connection", ext.attempts[0].proxy)
	}
}

func TestResolve_FallsThroughStrategies(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		if rec.strategy == "tv_embedded" {
			return goodExtraction(), nil
		}
		return nil, errors.New("playability ERROR: something went wrong")
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Without a bundle the web persona is skipped: ios, android, tv_embedded.
	want := []string{"ios", "android", "tv_embedded"}
	if len(ext.attempts) != len(want) {
		t.Fatalf("attempts = %d, want %d", len(ext.attempts), len(want))
	}
	for i, w := range want {
		if ext.attempts[i].strategy != w {
			t.Errorf("attempt %d strategy = %q, want %q", i, ext.attempts[i].strategy, w)
		}
	}
}

func TestResolve_HardBlockAbandonsProxy(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		if rec.proxy == "socks5://bad:1080" {
			return nil, errors.New("HTTP Error 429: Too Many Requests")
		}
		return goodExtraction(), nil
	}}
	o, _ := newTestOrchestrator(t, []string{"socks5://bad:1080", "socks5://good:1080"}, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// One throttled attempt on the bad proxy, then straight to the next
	// proxy without burning the remaining strategies on the burned address.
	if len(ext.attempts) != 2 {
		t.Fatalf("attempts = %d, want 2: %+v", len(ext.attempts), ext.attempts)
	}
	if ext.attempts[0].proxy != "socks5://bad:1080" {
		t.Errorf("first proxy = %q", ext.attempts[0].proxy)
	}
	if ext.attempts[1].proxy != "socks5://good:1080" {
		t.Errorf("second proxy = %q", ext.attempts[1].proxy)
	}
}

func TestResolve_AllProxiesHardBlocked(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("player request failed: HTTP 403 Forbidden")
	}}
	o, _ := newTestOrchestrator(t, []string{"socks5://a:1080", "socks5://b:1080"}, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err == nil {
		t.Fatal("expected error")
	}
	// 403 is both bot detection and hard block; bot detection takes
	// precedence on the first failure per proxy, but with no provider the
	// loop continues and the hard block never fires, so the terminal kind
	// is bot detection.
	if !IsKind(err, KindBotDetected) {
		t.Errorf("err = %v, want kind %s", err, KindBotDetected)
	}
}

func TestResolve_ProxyExhausted(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("HTTP Error 429: Too Many Requests")
	}}
	o, _ := newTestOrchestrator(t, []string{"socks5://a:1080", "socks5://b:1080"}, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsKind(err, KindProxyExhausted) {
		t.Errorf("err = %v, want kind %s", err, KindProxyExhausted)
	}
	// One attempt per proxy: the throttle abandons each immediately.
	if len(ext.attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(ext.attempts))
	}
}

func TestResolve_EscalatesOnceAndSucceeds(t *testing.T) {
	provider := &fakeProvider{configured: true}
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		if rec.strategy == "web" && rec.hasToken {
			return goodExtraction(), nil
		}
		return nil, errors.New("Sign in to confirm you're not a bot")
	}}
	o, cache := newTestOrchestrator(t, nil, ext, provider)
	provider.bundle = tokenBundle(t)

	media, err := o.Resolve(context.Background(), Request{URL: testVideoURL, Region: "us"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if media.Video == nil {
		t.Fatal("no video selected")
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	// The fresh bundle lands in the cache for later calls.
	if cache.Get("us") != provider.bundle {
		t.Error("fresh bundle not cached")
	}
	// After escalation only token-eligible strategies are retried.
	last := ext.attempts[len(ext.attempts)-1]
	if last.strategy != "web" || !last.hasToken {
		t.Errorf("last attempt = %+v, want token-carrying web strategy", last)
	}
}

func TestResolve_EscalatesAtMostOnce(t *testing.T) {
	provider := &fakeProvider{configured: true}
	provider.bundle = nil // provider cannot mint
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("Sign in to confirm you're not a bot")
	}}
	o, _ := newTestOrchestrator(t, nil, ext, provider)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err == nil {
		t.Fatal("expected error")
	}
	// Every attempt reports bot detection but the provider is asked exactly
	// once per resolve call.
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if !IsKind(err, KindCredentialUnavailable) {
		t.Errorf("err = %v, want kind %s", err, KindCredentialUnavailable)
	}
}

func TestResolve_BotDetectedWithoutProvider(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("Sign in to confirm you're not a bot")
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if !IsKind(err, KindBotDetected) {
		t.Errorf("err = %v, want kind %s", err, KindBotDetected)
	}
}

func TestResolve_UnconfiguredProviderIsNotAsked(t *testing.T) {
	provider := &fakeProvider{configured: false}
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("Sign in to confirm you're not a bot")
	}}
	o, _ := newTestOrchestrator(t, nil, ext, provider)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
	if !IsKind(err, KindBotDetected) {
		t.Errorf("err = %v, want kind %s", err, KindBotDetected)
	}
}

func TestResolve_CachedBundleEnablesWebStrategy(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("playability ERROR: something went wrong")
	}}
	o, cache := newTestOrchestrator(t, nil, ext, nil)
	cache.Put("us", tokenBundle(t))

	_, _ = o.Resolve(context.Background(), Request{URL: testVideoURL, Region: "us"})

	sawWeb := false
	for _, a := range ext.attempts {
		if a.strategy == "web" {
			sawWeb = true
			if !a.hasToken {
				t.Error("web attempt ran without the cached bundle's token")
			}
		}
	}
	if !sawWeb {
		t.Error("web strategy never attempted despite cached bundle")
	}
}

func TestResolve_FailedRefreshKeepsCachedBundle(t *testing.T) {
	provider := &fakeProvider{configured: true, err: errors.New("provider down")}
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("Sign in to confirm you're not a bot")
	}}
	o, cache := newTestOrchestrator(t, nil, ext, provider)
	stale := tokenBundle(t)
	cache.Put("us", stale)

	_, _ = o.Resolve(context.Background(), Request{URL: testVideoURL, Region: "us"})

	// The cached bundle is replaced only after a successful refresh; a
	// failed escalation leaves it for other callers.
	if cache.Get("us") != stale {
		t.Error("failed refresh evicted the cached bundle")
	}
}

func TestResolve_Timeout(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return nil, errors.New("playability ERROR: slow upstream")
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := o.Resolve(ctx, Request{URL: testVideoURL})
	if !IsKind(err, KindTimeout) {
		t.Errorf("err = %v, want kind %s", err, KindTimeout)
	}
}

func TestResolve_NoRendition(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		return &types.Extraction{
			Info:       types.VideoInfo{ID: "dQw4w9WgXcQ"},
			Renditions: []types.Rendition{{ID: "137", Container: "mp4", Height: 1080, VideoCodec: "avc1"}},
		}, nil
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL, Quality: "1080p"})
	if !IsKind(err, KindNoRendition) {
		t.Errorf("err = %v, want kind %s", err, KindNoRendition)
	}
}

func TestResolve_InvalidInputs(t *testing.T) {
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		t.Fatal("extractor should not be called")
		return nil, nil
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	if _, err := o.Resolve(context.Background(), Request{URL: "https://example.com/nope"}); err == nil {
		t.Error("expected error for unrecognized URL")
	}
	if _, err := o.Resolve(context.Background(), Request{URL: testVideoURL, Quality: "potato"}); err == nil {
		t.Error("expected error for unrecognized quality")
	}
}

func TestResolve_ErrorCarriesBoundedTail(t *testing.T) {
	n := 0
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		n++
		return nil, fmt.Errorf("playability ERROR: failure %d", n)
	}}
	o, _ := newTestOrchestrator(t, nil, ext, nil)

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	var ae *AcquisitionError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T, want *AcquisitionError", err)
	}
	if len(ae.Recent) == 0 || len(ae.Recent) > maxRecent {
		t.Errorf("Recent tail = %d messages, want 1..%d", len(ae.Recent), maxRecent)
	}
	// The tail holds the most recent failures.
	last := ae.Recent[len(ae.Recent)-1]
	if last != fmt.Sprintf("playability ERROR: failure %d", n) {
		t.Errorf("last recent = %q", last)
	}
}

func TestResolve_Events(t *testing.T) {
	var events []Event
	log := logging.New("error", false, nil)
	ext := &fakeExtractor{respond: func(rec attemptRecord) (*types.Extraction, error) {
		if rec.strategy == "android" {
			return goodExtraction(), nil
		}
		return nil, errors.New("playability ERROR: nope")
	}}
	o := New(proxyrotator.New(nil, log), strategy.Default(), ext, nil, auth.NewRegionCache(time.Hour), log, Options{
		Sink: func(ev Event) { events = append(events, ev) },
	})

	_, err := o.Resolve(context.Background(), Request{URL: testVideoURL})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var seen []EventType
	for _, ev := range events {
		seen = append(seen, ev.Type)
		if ev.OperationID == "" {
			t.Error("event missing operation ID")
		}
	}
	want := []EventType{EventAttemptStart, EventAttemptFailed, EventAttemptStart, EventAttemptOK}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
