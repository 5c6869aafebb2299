// Package httpclient builds the outbound HTTP clients used for the identity
// provider and the blob hosts.
package httpclient

import (
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

const (
	maxRetries = 2
	retryDelay = 200 * time.Millisecond
)

// New returns a client bounded by timeout. Requests using one of the
// idempotent methods are retried on temporary network errors and 5xx
// answers; everything else is sent once.
func New(timeout time.Duration, idempotent ...string) *http.Client {
	if len(idempotent) == 0 {
		idempotent = []string{http.MethodGet, http.MethodHead}
	}
	transport := rehttp.NewTransport(
		http.DefaultTransport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(maxRetries),
			rehttp.RetryHTTPMethods(idempotent...),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatusInterval(500, 600),
			),
		),
		rehttp.ConstDelay(retryDelay),
	)
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
