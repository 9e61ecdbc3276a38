package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 10 * time.Second

// NewClient returns an HTTP client with the given overall timeout, or
// DefaultTimeout when zero. The timeout covers connection and body read, so
// a stalled remote fails the call instead of blocking the cycle.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
