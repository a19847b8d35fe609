// Package agentbrowser provides a client for a remote browser-automation
// service that mints upstream credential bundles (cookies, proof-of-origin
// token, visitor identifier) for a region. The service drives a real
// browser session and inspects network traffic and page script state; this
// client depends only on the result shape.
package agentbrowser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
)

// sessionCookie mirrors the cookie records in the service response.
type sessionCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// sessionRequest is the request body for the session endpoint.
type sessionRequest struct {
	Region       string `json:"region"`
	ForceRefresh bool   `json:"force_refresh"`
	HintURL      string `json:"hint_url,omitempty"`
	MaxTimeout   int    `json:"maxTimeout"`
}

// sessionResponse is the full response from the session endpoint.
type sessionResponse struct {
	Status        string          `json:"status"`
	Message       string          `json:"message"`
	Cookies       []sessionCookie `json:"cookies"`
	POToken       string          `json:"po_token"`
	VisitorID     string          `json:"visitor_id"`
	EgressIP      string          `json:"egress_ip"`
	EgressCountry string          `json:"egress_country"`
}

// Client talks to the credential-minting service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	cookieDir  string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a new credential provider client. cookieDir is where
// per-region cookie jars are written for tooling that consumes jar files.
func NewClient(baseURL string, timeout time.Duration, cookieDir string, log *logging.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		timeout:   timeout,
		cookieDir: cookieDir,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second, // Add buffer for network overhead
		},
		log: log.WithComponent("agentbrowser"),
	}
}

// IsConfigured returns true if the client is properly configured.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// Refresh mints a fresh bundle for region. Expected failures (the service
// reports it could not complete the session, or returns no cookies) yield
// (nil, nil); only transport-level problems produce an error. Partial
// success with cookies but no tokens still yields a bundle.
func (c *Client) Refresh(ctx context.Context, region string, forceRefresh bool, hintURL string) (*auth.Bundle, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("agentbrowser: no provider URL configured")
	}

	start := time.Now()
	log := c.log.WithRegion(region)
	log.Info("requesting credential session", "force_refresh", forceRefresh)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(sessionRequest{
		Region:       region,
		ForceRefresh: forceRefresh,
		HintURL:      hintURL,
		MaxTimeout:   int(c.timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("agentbrowser: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agentbrowser: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agentbrowser: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("agentbrowser: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The service answered; treat as an expected minting failure.
		log.Warn("provider returned non-OK status", "status", resp.StatusCode, "body_len", len(respBody))
		return nil, nil
	}

	var sess sessionResponse
	if err := json.Unmarshal(respBody, &sess); err != nil {
		return nil, fmt.Errorf("agentbrowser: parse response: %w", err)
	}

	if sess.Status != "ok" {
		log.Warn("credential session failed", "message", sess.Message)
		return nil, nil
	}
	if len(sess.Cookies) == 0 && sess.POToken == "" && sess.VisitorID == "" {
		log.Warn("credential session returned no usable data")
		return nil, nil
	}

	cookies := make([]auth.Cookie, 0, len(sess.Cookies))
	for _, sc := range sess.Cookies {
		cookies = append(cookies, auth.Cookie{
			Name:    sc.Name,
			Value:   sc.Value,
			Domain:  sc.Domain,
			Path:    sc.Path,
			Secure:  sc.Secure,
			Expires: sc.Expires,
		})
	}

	bundle, err := auth.NewBundle(region, cookies, sess.POToken, sess.VisitorID)
	if err != nil {
		// Malformed tokens from the service are an expected failure mode.
		log.Warn("provider returned invalid bundle", "error", err)
		return nil, nil
	}
	bundle.EgressIP = sess.EgressIP
	bundle.EgressCountry = sess.EgressCountry

	if c.cookieDir != "" && len(cookies) > 0 {
		jarPath := auth.JarPath(c.cookieDir, region)
		if err := auth.WriteJar(jarPath, cookies); err != nil {
			log.Warn("failed to write cookie jar", "path", jarPath, "error", err)
		} else {
			bundle.CookieJarPath = jarPath
		}
	}

	log.Info("credential session complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"cookies", len(cookies),
		"has_po_token", sess.POToken != "",
		"has_visitor_id", sess.VisitorID != "",
		"egress_ip", sess.EgressIP,
	)
	return bundle, nil
}

var _ interfaces.CredentialProvider = (*Client)(nil)
