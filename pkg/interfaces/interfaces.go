// Package interfaces defines the core abstractions of the acquisition
// engine. The orchestrator depends only on these, making the retry loop
// testable with fakes and keeping the expensive collaborators swappable.
package interfaces

import (
	"context"

	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/strategy"
	"media-acquire-go/pkg/types"
)

// Extractor performs one extraction attempt against the upstream platform
// using a specific client strategy, egress proxy and credential bundle.
// proxyURL "" means direct connection; bundle may be nil.
type Extractor interface {
	Extract(ctx context.Context, videoID string, strat strategy.Strategy, proxyURL string, bundle *auth.Bundle) (*types.Extraction, error)
}

// CredentialProvider mints fresh credential bundles for a region via remote
// browser automation. Refresh is expensive (tens of seconds) and must run
// under the caller's context deadline. Expected failures return (nil, nil);
// a non-nil error indicates the provider itself is unreachable or
// misconfigured, which degrades the call but is not fatal.
type CredentialProvider interface {
	Refresh(ctx context.Context, region string, forceRefresh bool, hintURL string) (*auth.Bundle, error)
	IsConfigured() bool
}

// Materializer turns a resolved selection into a local media file,
// downloading and merging separate streams when required.
type Materializer interface {
	Materialize(ctx context.Context, media *types.ResolvedMedia, outputDir string) (string, error)
}

// Logger defines the logging interface used throughout the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
