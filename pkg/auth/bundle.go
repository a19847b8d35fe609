// Package auth models upstream credential bundles and their region cache.
// Credentials are opaque strings; only their lifecycle (mint, cache, expire,
// refresh) is modeled here.
package auth

import (
	"fmt"
	"time"
	"unicode"
)

// DefaultMaxAge is how long a bundle is considered fresh.
const DefaultMaxAge = time.Hour

// Cookie is a single browser cookie captured by the credential provider.
type Cookie struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Domain  string `json:"domain"`
	Path    string `json:"path"`
	Secure  bool   `json:"secure"`
	Expires int64  `json:"expires"` // unix seconds, 0 for session cookies
}

// Bundle is one credential set minted for a region. Bundles are immutable:
// a refresh produces a new bundle that supersedes the old one in the cache.
type Bundle struct {
	Cookies       []Cookie
	POToken       string // proof-of-origin token, opaque
	VisitorID     string // visitor identifier, opaque
	Region        string
	ExtractedAt   time.Time
	CookieJarPath string
	EgressIP      string
	EgressCountry string
}

// NewBundle validates and constructs a bundle. All credential validation is
// centralized here so every consumer receives a guaranteed-valid value.
func NewBundle(region string, cookies []Cookie, poToken, visitorID string) (*Bundle, error) {
	if region == "" {
		return nil, fmt.Errorf("auth: bundle region must not be empty")
	}
	if err := validateToken("proof-of-origin token", poToken); err != nil {
		return nil, err
	}
	if err := validateToken("visitor identifier", visitorID); err != nil {
		return nil, err
	}
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			return nil, fmt.Errorf("auth: cookie with empty name or domain for region %s", region)
		}
	}
	return &Bundle{
		Cookies:     cookies,
		POToken:     poToken,
		VisitorID:   visitorID,
		Region:      region,
		ExtractedAt: time.Now(),
	}, nil
}

// HasTokens reports whether the bundle carries a proof-of-origin token or a
// visitor identifier. Cookie-only bundles are usable but lower-probability.
func (b *Bundle) HasTokens() bool {
	return b.POToken != "" || b.VisitorID != ""
}

// IsExpired reports whether the bundle is older than maxAge. A maxAge of 0
// uses DefaultMaxAge.
func (b *Bundle) IsExpired(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return time.Since(b.ExtractedAt) > maxAge
}

// FormattedPOToken returns the token in the client-scoped wire form
// "<client>+<visitorID>+<token>" expected by the extraction layer, or ""
// when no token is present.
func (b *Bundle) FormattedPOToken(client string) string {
	if b.POToken == "" {
		return ""
	}
	if b.VisitorID != "" {
		return client + "+" + b.VisitorID + "+" + b.POToken
	}
	return client + "+" + b.POToken
}

// validateToken rejects tokens that are present but not printable
// single-line strings. Empty tokens are allowed (absence is valid).
func validateToken(label, token string) error {
	for _, r := range token {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Errorf("auth: %s contains non-printable or whitespace character", label)
		}
	}
	return nil
}
