package auth

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindMissingAuthHeader   Kind = "missing_auth_header"
	KindMalformedAuthScheme Kind = "malformed_auth_scheme"
	KindMissingToken        Kind = "missing_token"
	KindMalformedAuthHeader Kind = "malformed_auth_header"
	KindMalformedHeader     Kind = "malformed_header"
	KindMalformedToken      Kind = "malformed_token"
	KindKeyNotFound         Kind = "key_not_found"
	KindExpiredToken        Kind = "expired_token"
	KindInvalidClaims       Kind = "invalid_claims"
	KindUnparseableToken    Kind = "unparseable_token"
	KindNoPermissionsClaim  Kind = "no_permissions_claim"
	KindForbidden           Kind = "forbidden"
)

var ErrAuth = errors.New("authorization failed")

type failure struct {
	status  int
	message string
}

var failures = map[Kind]failure{
	KindMissingAuthHeader:   {http.StatusUnauthorized, "Authorization header is missing"},
	KindMalformedAuthScheme: {http.StatusUnauthorized, "Invalid Header: must start with Bearer."},
	KindMissingToken:        {http.StatusUnauthorized, "Invalid Header: Missing token"},
	KindMalformedAuthHeader: {http.StatusUnauthorized, "Invalid Header: Must be bearer token"},
	KindMalformedHeader:     {http.StatusUnauthorized, "Invalid Header: Authorization malformed."},
	KindMalformedToken:      {http.StatusBadRequest, "Invalid Header: Unable to parse authentication token"},
	KindKeyNotFound:         {http.StatusBadRequest, "Invalid Header: Unable to find the appropriate key."},
	KindExpiredToken:        {http.StatusUnauthorized, "Error: Token Expired"},
	KindInvalidClaims:       {http.StatusUnauthorized, "Invalid claims:Please check the audience and the issuer"},
	KindUnparseableToken:    {http.StatusBadRequest, "Invalid Header: Unable to parse authentication token"},
	KindNoPermissionsClaim:  {http.StatusBadRequest, "Bad request: No permissions exist"},
	KindForbidden:           {http.StatusForbidden, "Unauthorized request"},
}

// Error is a rejected request. Status and Message form the whole response.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func newError(kind Kind, err error) *Error {
	f := failures[kind]
	return &Error{Kind: kind, Status: f.status, Message: f.message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrAuth
}
