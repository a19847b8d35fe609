package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a resolve call gave up.
type FailureKind string

const (
	// KindProxyExhausted: every proxy in the pool hit a hard block.
	KindProxyExhausted FailureKind = "proxy_exhausted"
	// KindBotDetected: anti-automation block with no credential provider
	// available to escalate through.
	KindBotDetected FailureKind = "bot_detected"
	// KindCredentialUnavailable: escalation was attempted but the provider
	// could not mint a usable bundle.
	KindCredentialUnavailable FailureKind = "credential_unavailable"
	// KindNoRendition: extraction succeeded but nothing downloadable
	// satisfies the requested quality.
	KindNoRendition FailureKind = "no_downloadable_rendition"
	// KindTimeout: the overall resolve deadline expired mid-loop.
	KindTimeout FailureKind = "timeout"
	// KindExhausted: every proxy and strategy combination failed without a
	// more specific cause.
	KindExhausted FailureKind = "exhausted"
)

// AcquisitionError is the terminal error of a failed resolve. Recent holds a
// bounded tail of the attempt failure messages so callers can log context
// without the error growing with the attempt count.
type AcquisitionError struct {
	Kind    FailureKind
	VideoID string
	Recent  []string
}

func (e *AcquisitionError) Error() string {
	msg := fmt.Sprintf("acquisition failed (%s) for %s", e.Kind, e.VideoID)
	if len(e.Recent) > 0 {
		msg += ": " + strings.Join(e.Recent, "; ")
	}
	return msg
}

// IsKind reports whether err is an AcquisitionError of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// maxRecent bounds the failure tail carried on a terminal error.
const maxRecent = 3

// appendRecent keeps the last maxRecent messages.
func appendRecent(tail []string, msg string) []string {
	tail = append(tail, msg)
	if len(tail) > maxRecent {
		tail = tail[len(tail)-maxRecent:]
	}
	return tail
}
