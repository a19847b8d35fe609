// Package proxyrotator manages a pool of egress proxy endpoints with
// failure tracking and automatic reset.
package proxyrotator

import (
	"sync"

	"media-acquire-go/pkg/logging"
)

// Rotator rotates over a fixed pool of proxy URLs, skipping endpoints that
// were marked failed. When every endpoint has failed the failed set is
// cleared so selection never starves while the pool is non-empty.
type Rotator struct {
	mu        sync.Mutex
	endpoints []string
	failed    map[string]struct{}
	next      int
	log       *logging.Logger
}

// New creates a rotator over the given endpoints. The pool may be empty, in
// which case Next always returns "" and callers connect directly.
func New(endpoints []string, log *logging.Logger) *Rotator {
	eps := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e != "" {
			eps = append(eps, e)
		}
	}
	return &Rotator{
		endpoints: eps,
		failed:    make(map[string]struct{}),
		log:       log.WithComponent("proxyrotator"),
	}
}

// Next returns the next healthy endpoint in round-robin order, or "" if the
// pool is empty. If all endpoints are failed, the failed set is cleared
// before selection.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return ""
	}
	r.resetIfAllFailed()

	for range r.endpoints {
		e := r.endpoints[r.next%len(r.endpoints)]
		r.next++
		if _, bad := r.failed[e]; !bad {
			return e
		}
	}
	// Unreachable after resetIfAllFailed, kept as a safeguard.
	return r.endpoints[0]
}

// Healthy returns a snapshot of endpoints not currently marked failed, in
// pool order. If all endpoints are failed, the failed set is cleared first.
func (r *Rotator) Healthy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetIfAllFailed()
	out := make([]string, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		if _, bad := r.failed[e]; !bad {
			out = append(out, e)
		}
	}
	return out
}

// MarkFailed marks an endpoint as temporarily failed.
func (r *Rotator) MarkFailed(endpoint string) {
	if endpoint == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[endpoint] = struct{}{}
	r.log.Warn("proxy marked failed", "proxy", endpoint, "failed_count", len(r.failed))
}

// MarkSuccess clears the failed mark for an endpoint.
func (r *Rotator) MarkSuccess(endpoint string) {
	if endpoint == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failed, endpoint)
}

// All returns a copy of the full pool regardless of health.
func (r *Rotator) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

// resetIfAllFailed clears the failed set when it covers the whole pool.
// Caller must hold r.mu.
func (r *Rotator) resetIfAllFailed() {
	if len(r.endpoints) > 0 && len(r.failed) >= len(r.endpoints) {
		r.log.Info("all proxies failed, resetting pool", "pool_size", len(r.endpoints))
		r.failed = make(map[string]struct{})
	}
}
