// Package proxyerr defines the error kinds the proxy maps to HTTP status
// codes, so that a mapping decision is always made before the first
// response body byte is written.
package proxyerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of failure along the credential-exchange
// and proxying pipeline.
type Kind int

const (
	// KindMalformedRequest covers bad URLs, missing CA headers, and
	// non-https schemes.
	KindMalformedRequest Kind = iota
	// KindAuthRejected means the concierge returned a message without a
	// credential.
	KindAuthRejected
	// KindMalformedUpstream means the concierge response had neither a
	// credential nor a message.
	KindMalformedUpstream
	// KindUpstreamExchangeFailed means the concierge POST itself failed
	// (transport error, or an API error other than NotFound).
	KindUpstreamExchangeFailed
	// KindMalformedCredential means the cert/key returned by the
	// concierge could not be assembled into a usable identity.
	KindMalformedCredential
	// KindTransportFailed means the outbound request to the target API
	// server failed.
	KindTransportFailed
	// KindUnsupportedUpgrade means the upstream responded 101 Switching
	// Protocols.
	KindUnsupportedUpgrade
)

// StatusCode returns the HTTP status this kind maps to, per the table in
// the error-handling design.
func (k Kind) StatusCode() int {
	switch k {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindAuthRejected:
		return http.StatusUnauthorized
	case KindMalformedUpstream, KindUpstreamExchangeFailed, KindMalformedCredential, KindTransportFailed:
		return http.StatusInternalServerError
	case KindUnsupportedUpgrade:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed-request"
	case KindAuthRejected:
		return "auth-rejected"
	case KindMalformedUpstream:
		return "malformed-upstream"
	case KindUpstreamExchangeFailed:
		return "upstream-exchange-failed"
	case KindMalformedCredential:
		return "malformed-credential"
	case KindTransportFailed:
		return "transport-failed"
	case KindUnsupportedUpgrade:
		return "unsupported-upgrade"
	default:
		return "unknown"
	}
}

// Error is a Kind carrying the cause of the failure. It is always
// constructed with a non-nil cause so the full chain survives for
// error-level logging.
type Error struct {
	Kind  Kind
	Cause error
}

// New wraps cause with kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Newf is a convenience constructor building the cause from a format
// string.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status the error should be surfaced with.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// As is a convenience wrapper over errors.As for extracting a *Error from
// an arbitrary error chain.
func As(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
