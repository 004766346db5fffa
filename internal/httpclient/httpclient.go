// Package httpclient is the shared outbound HTTP layer: tuned transports,
// retry with backoff and jitter, a per-host concurrency cap, and compressed
// response decoding. Sports providers and the downstream client both build
// on it.
package httpclient

import (
	"net/http"
	"time"
)

const (
	// ProviderTimeout bounds sports-provider calls; DownstreamTimeout the
	// channel-manager calls, which page through larger bodies.
	ProviderTimeout   = 10 * time.Second
	DownstreamTimeout = 30 * time.Second

	defaultIdleConnTimeout = 90 * time.Second
	maxIdleConnsPerHost    = 16
)

var defaultClient = &http.Client{
	Timeout: ProviderTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	},
}

// Default returns the shared tuned client (provider timeout).
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client sharing the tuned transport with a different
// timeout.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{Timeout: timeout, Transport: t.Clone()}
}
