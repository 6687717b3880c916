package mediaclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/invitarr/invitarr-server/internal/domain"
)

// ErrorKind is the vendor-agnostic category of a vendor failure.
// It is the only failure detail shown to end users.
type ErrorKind string

// Error kinds.
const (
	KindAuth           ErrorKind = "auth"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUnavailable    ErrorKind = "unavailable"
	KindTimeout        ErrorKind = "timeout"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindUnknown        ErrorKind = "unknown"
)

// VendorError is the normalized failure of a vendor call. Vendor specific
// error codes and statuses are translated into Kind at the client boundary.
type VendorError struct {
	Vendor        domain.VendorType
	Op            string
	Kind          ErrorKind
	Retryable     bool
	StatusCode    int    // HTTP status when applicable
	VendorMessage string // Raw vendor detail, for logs only
	Err           error
}

func (e *VendorError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Vendor, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.VendorMessage != "" {
		msg += ": " + e.VendorMessage
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VendorError) Unwrap() error {
	return e.Err
}

// CapabilityUnsupportedError is returned when the vendor lacks a primitive.
type CapabilityUnsupportedError struct {
	Vendor     domain.VendorType
	Capability Capability
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Vendor, e.Capability)
}

// UnknownVendorTypeError is returned by the registry for unregistered vendors.
type UnknownVendorTypeError struct {
	Vendor domain.VendorType
}

func (e *UnknownVendorTypeError) Error() string {
	return fmt.Sprintf("unknown vendor type %q", string(e.Vendor))
}

// IsRetryable reports whether err is a retryable VendorError.
func IsRetryable(err error) bool {
	var ve *VendorError
	return errors.As(err, &ve) && ve.Retryable
}

// IsCapabilityUnsupported reports whether err is a CapabilityUnsupportedError.
func IsCapabilityUnsupported(err error) bool {
	var ce *CapabilityUnsupportedError
	return errors.As(err, &ce)
}

// KindOf returns the category of err, KindUnknown for non-vendor errors.
func KindOf(err error) ErrorKind {
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

// ClassifyStatus maps an HTTP status to an error kind and retryability.
// 408, 429 and 5xx are transient; other 4xx are not.
func ClassifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth, false
	case status == http.StatusNotFound:
		return KindNotFound, false
	case status == http.StatusConflict:
		return KindConflict, false
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status == http.StatusRequestTimeout:
		return KindTimeout, true
	case status >= 500:
		return KindUnavailable, true
	case status >= 400:
		return KindInvalidRequest, false
	default:
		return KindUnknown, false
	}
}

// HTTPError builds a VendorError from a non-success HTTP response.
func HTTPError(vendor domain.VendorType, op string, status int, body string) *VendorError {
	kind, retryable := ClassifyStatus(status)
	return &VendorError{
		Vendor:        vendor,
		Op:            op,
		Kind:          kind,
		Retryable:     retryable,
		StatusCode:    status,
		VendorMessage: truncate(body, 512),
	}
}

// TransportError builds a VendorError for failures below HTTP (dial, TLS, timeouts).
// These are always retryable.
func TransportError(vendor domain.VendorType, op string, err error) *VendorError {
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &VendorError{Vendor: vendor, Op: op, Kind: kind, Retryable: true, Err: err}
}

// Normalize guarantees that no vendor specific error leaves a client: anything
// that is not already a VendorError or CapabilityUnsupportedError is wrapped.
func Normalize(vendor domain.VendorType, op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve
	}
	var ce *CapabilityUnsupportedError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TransportError(vendor, op, err)
	}
	return &VendorError{Vendor: vendor, Op: op, Kind: KindUnknown, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
