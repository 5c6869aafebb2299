package models

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrBadRequest             = errors.New("bad request")
	ErrMethodNotAllowed       = errors.New("method not allowed")
	ErrConcurrentModification = errors.New("resource was modified concurrently, please retry")
	ErrUpstreamUnavailable    = errors.New("upstream service unavailable")
	ErrPersistence            = errors.New("failed to persist resource")
)

// Claims is the verified payload of an access token issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Permissions     []string `json:"permissions"`
	Scope           string   `json:"scope,omitempty"`
	AuthorizedParty string   `json:"azp,omitempty"`
}

// UpstreamError wraps a failed call to the identity provider or the blob store.
type UpstreamError struct {
	Op      string
	Timeout bool
	Err     error
}

func NewUpstreamError(op string, err error) *UpstreamError {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &UpstreamError{Op: op, Timeout: timeout, Err: err}
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
