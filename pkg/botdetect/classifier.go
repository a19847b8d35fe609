// Package botdetect classifies upstream failure messages. It is the single
// decision point separating "retry" from "escalate" from "terminal" in the
// acquisition loop. Both classifiers are pure and stateless.
package botdetect

import "strings"

// botPhrases is the fixed vocabulary of anti-automation block messages.
// Matching is case-insensitive substring.
var botPhrases = []string{
	"sign in to confirm",
	"confirm you're not a bot",
	"not a bot",
	"verify you are human",
	"captcha",
	"unusual traffic",
	"automated queries",
	"rate limit exceeded",
	"403 forbidden",
	"http error 403",
	"failed to extract any player response",
	"unable to extract",
}

// hardBlockIndicators mark an egress address as burned: the proxy is
// abandoned for the rest of the call instead of trying further strategies
// through it.
var hardBlockIndicators = []string{
	"403",
	"429",
	"too many requests",
	"blocked",
	"captcha",
	"rate limit",
}

// IsBotDetection reports whether a failure message indicates an
// anti-automation block that fresh credentials may clear.
func IsBotDetection(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range botPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsHardBlock reports whether a failure message indicates the egress IP
// itself is blocked or throttled, making further strategies through the same
// proxy pointless.
func IsHardBlock(message string) bool {
	lower := strings.ToLower(message)
	for _, indicator := range hardBlockIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
