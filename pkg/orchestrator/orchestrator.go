// Package orchestrator drives the acquisition loop: iterate proxies and
// client strategies in priority order, classify failures, escalate to the
// credential provider at most once per call, and hand the winning extraction
// to the selector.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/botdetect"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/proxyrotator"
	"media-acquire-go/pkg/selector"
	"media-acquire-go/pkg/strategy"
	"media-acquire-go/pkg/types"
	"media-acquire-go/pkg/urlutil"
)

// EventType identifies a step in the acquisition loop for observers.
type EventType string

const (
	EventAttemptStart   EventType = "attempt_start"
	EventAttemptFailed  EventType = "attempt_failed"
	EventAttemptOK      EventType = "attempt_ok"
	EventBotDetected    EventType = "bot_detected"
	EventHardBlock      EventType = "hard_block"
	EventEscalation     EventType = "escalation"
	EventEscalationFail EventType = "escalation_failed"
)

// Event is a point-in-time report from a resolve call. Events are for
// reporting only; consumers must not feed them back into the loop.
type Event struct {
	Type        EventType `json:"type"`
	OperationID string    `json:"operation_id"`
	VideoID     string    `json:"video_id"`
	Proxy       string    `json:"proxy,omitempty"`
	Strategy    string    `json:"strategy,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// EventSink receives loop events. Implementations must be fast; the loop
// calls them inline.
type EventSink func(Event)

// Request is one resolve call.
type Request struct {
	URL     string
	Quality string // "best", "audio", "720p", ...
	Region  string // provider region; empty uses the configured default
}

// Orchestrator owns the per-call retry policy. It is safe for concurrent use;
// all mutable state lives in its collaborators.
type Orchestrator struct {
	rotator   *proxyrotator.Rotator
	matrix    *strategy.Matrix
	extractor interfaces.Extractor
	provider  interfaces.CredentialProvider
	cache     *auth.RegionCache
	log       *logging.Logger

	defaultRegion  string
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	sink           EventSink
}

// Options configures an Orchestrator.
type Options struct {
	DefaultRegion  string
	AttemptTimeout time.Duration
	// AttemptInterval paces consecutive attempts to avoid tripping upstream
	// throttling; zero disables pacing.
	AttemptInterval time.Duration
	Sink            EventSink
}

// New creates an orchestrator. provider may be nil when no credential
// service is configured; escalation is then skipped.
func New(rotator *proxyrotator.Rotator, matrix *strategy.Matrix, extractor interfaces.Extractor,
	provider interfaces.CredentialProvider, cache *auth.RegionCache, log *logging.Logger, opts Options) *Orchestrator {

	if opts.DefaultRegion == "" {
		opts.DefaultRegion = "us"
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 90 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.AttemptInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.AttemptInterval), 1)
	}
	return &Orchestrator{
		rotator:        rotator,
		matrix:         matrix,
		extractor:      extractor,
		provider:       provider,
		cache:          cache,
		log:            log.WithComponent("orchestrator"),
		defaultRegion:  opts.DefaultRegion,
		attemptTimeout: opts.AttemptTimeout,
		limiter:        limiter,
		sink:           opts.Sink,
	}
}

// Resolve runs the full acquisition loop for one video and returns the
// selected media. The caller bounds the whole call via ctx.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (*types.ResolvedMedia, error) {
	videoID, err := urlutil.NormalizeVideoID(req.URL)
	if err != nil {
		return nil, err
	}
	target, err := selector.ParseQuality(req.Quality)
	if err != nil {
		return nil, err
	}
	region := req.Region
	if region == "" {
		region = o.defaultRegion
	}

	opID := uuid.NewString()
	log := o.log.WithOperationID(opID).WithRegion(region)
	log.Info("resolve started", "video_id", videoID, "quality", req.Quality)

	ext, err := o.acquire(ctx, opID, videoID, region, log)
	if err != nil {
		return nil, err
	}

	media, err := selector.Select(ext, target)
	if err != nil {
		if errors.Is(err, selector.ErrNoDownloadableRendition) {
			return nil, &AcquisitionError{Kind: KindNoRendition, VideoID: videoID}
		}
		return nil, err
	}
	log.Info("resolve complete",
		"video_id", videoID,
		"needs_merge", media.NeedsMerge,
		"title", media.Info.Title,
	)
	return media, nil
}

// acquire iterates proxies and strategies until one attempt yields an
// extraction. Escalation to the credential provider happens at most once per
// call, regardless of how many attempts report bot detection.
func (o *Orchestrator) acquire(ctx context.Context, opID, videoID, region string, log *logging.Logger) (*types.Extraction, error) {
	bundle := o.liveBundle(region)
	escalated := false
	escalationFailed := false
	sawBotDetection := false
	var recent []string

	proxies := o.rotator.Healthy()
	if len(proxies) == 0 {
		// Empty pool means direct connection.
		proxies = []string{""}
	}

	hardBlocks := 0
	for _, proxyURL := range proxies {
		strategies := o.matrix.Eligible(bundle)

		for i := 0; i < len(strategies); i++ {
			strat := strategies[i]
			if err := o.pace(ctx); err != nil {
				return nil, o.terminal(videoID, recent, sawBotDetection, escalationFailed, hardBlocks, len(proxies), err)
			}

			o.emit(Event{Type: EventAttemptStart, OperationID: opID, VideoID: videoID,
				Proxy: proxyURL, Strategy: strat.Label, At: time.Now()})

			ext, err := o.attempt(ctx, videoID, strat, proxyURL, bundle)
			if err == nil {
				o.rotator.MarkSuccess(proxyURL)
				o.emit(Event{Type: EventAttemptOK, OperationID: opID, VideoID: videoID,
					Proxy: proxyURL, Strategy: strat.Label, At: time.Now()})
				log.Info("attempt succeeded", "strategy", strat.Label, "proxy", proxyURL)
				return ext, nil
			}

			msg := err.Error()
			recent = appendRecent(recent, msg)
			log.Warn("attempt failed", "strategy", strat.Label, "proxy", proxyURL, "error", msg)
			o.emit(Event{Type: EventAttemptFailed, OperationID: opID, VideoID: videoID,
				Proxy: proxyURL, Strategy: strat.Label, Detail: msg, At: time.Now()})

			if ctx.Err() != nil {
				return nil, o.terminal(videoID, recent, sawBotDetection, escalationFailed, hardBlocks, len(proxies), ctx.Err())
			}

			// Bot detection outranks hard block: a message can look like
			// both, and fresh credentials are the cheaper remedy.
			if botdetect.IsBotDetection(msg) {
				sawBotDetection = true
				o.emit(Event{Type: EventBotDetected, OperationID: opID, VideoID: videoID,
					Proxy: proxyURL, Strategy: strat.Label, At: time.Now()})

				if !escalated && o.providerConfigured() {
					escalated = true
					fresh := o.escalate(ctx, opID, videoID, region, log)
					if fresh != nil {
						bundle = fresh
						// Retry only the token-carrying strategies on the
						// current proxy; the others already failed.
						strategies = o.matrix.TokenEligible()
						i = -1
					} else {
						escalationFailed = true
					}
				}
				continue
			}

			if botdetect.IsHardBlock(msg) {
				o.rotator.MarkFailed(proxyURL)
				hardBlocks++
				o.emit(Event{Type: EventHardBlock, OperationID: opID, VideoID: videoID,
					Proxy: proxyURL, Strategy: strat.Label, At: time.Now()})
				log.Warn("egress hard-blocked, abandoning proxy", "proxy", proxyURL)
				break
			}
		}
	}

	return nil, o.terminal(videoID, recent, sawBotDetection, escalationFailed, hardBlocks, len(proxies), nil)
}

// attempt runs one extraction bounded by the attempt timeout.
func (o *Orchestrator) attempt(ctx context.Context, videoID string, strat strategy.Strategy, proxyURL string, bundle *auth.Bundle) (*types.Extraction, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()
	var b *auth.Bundle
	if strat.TokenEligible {
		b = bundle
	}
	return o.extractor.Extract(attemptCtx, videoID, strat, proxyURL, b)
}

// escalate asks the credential provider for a fresh bundle and caches it on
// success. The cache entry for the region is replaced only after a usable
// bundle arrives; a failed refresh leaves any cached bundle in place for
// other callers.
func (o *Orchestrator) escalate(ctx context.Context, opID, videoID, region string, log *logging.Logger) *auth.Bundle {
	o.emit(Event{Type: EventEscalation, OperationID: opID, VideoID: videoID, At: time.Now()})
	log.Info("escalating to credential provider", "video_id", videoID)

	fresh, err := o.provider.Refresh(ctx, region, true, urlutil.WatchURL(videoID))
	if err != nil {
		log.Error("credential provider unreachable", "error", err)
		o.emit(Event{Type: EventEscalationFail, OperationID: opID, VideoID: videoID,
			Detail: err.Error(), At: time.Now()})
		return nil
	}
	if fresh == nil {
		log.Warn("credential provider could not mint a bundle")
		o.emit(Event{Type: EventEscalationFail, OperationID: opID, VideoID: videoID,
			Detail: "provider returned no bundle", At: time.Now()})
		return nil
	}
	o.cache.Put(region, fresh)
	log.Info("fresh credential bundle installed", "has_tokens", fresh.HasTokens())
	return fresh
}

// liveBundle returns the cached bundle for a region if still valid.
func (o *Orchestrator) liveBundle(region string) *auth.Bundle {
	if o.cache == nil {
		return nil
	}
	return o.cache.Get(region)
}

func (o *Orchestrator) providerConfigured() bool {
	return o.provider != nil && o.provider.IsConfigured()
}

// pace waits for the attempt rate limiter, honoring ctx.
func (o *Orchestrator) pace(ctx context.Context) error {
	return o.limiter.Wait(ctx)
}

// terminal maps loop state to the most specific failure kind.
func (o *Orchestrator) terminal(videoID string, recent []string, sawBot, escalationFailed bool, hardBlocks, poolSize int, cause error) error {
	kind := KindExhausted
	switch {
	case cause != nil && errors.Is(cause, context.DeadlineExceeded):
		kind = KindTimeout
	case hardBlocks >= poolSize && poolSize > 0 && hardBlocks > 0:
		kind = KindProxyExhausted
	case sawBot && !o.providerConfigured():
		kind = KindBotDetected
	case escalationFailed:
		kind = KindCredentialUnavailable
	}
	return &AcquisitionError{Kind: kind, VideoID: videoID, Recent: recent}
}

func (o *Orchestrator) emit(ev Event) {
	if o.sink != nil {
		o.sink(ev)
	}
}
