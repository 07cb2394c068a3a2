package keycore

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the engine can surface. Callers branch on
// the kind, never on message text.
type Kind int

const (
	// KindInternal is an unexpected failure inside a primitive or
	// collaborator. Always logged with full context, shown to users as a
	// generic retryable failure.
	KindInternal Kind = iota

	// KindInvalidInput covers malformed secret lengths, missing record
	// fields and undecodable encodings. Rejected before any crypto runs.
	KindInvalidInput

	// KindAuthenticationFailure means a wrong passphrase/PIN or corrupted,
	// tampered ciphertext. The two causes are indistinguishable by design.
	KindAuthenticationFailure

	// KindDeviceMismatch means the current device fingerprint differs from
	// the one registered for the organization. Kept distinct from
	// AuthenticationFailure so callers can suggest device re-registration
	// instead of "wrong password".
	KindDeviceMismatch

	// KindUnsupportedFormat means an unknown wrap algorithm, record version
	// or a legacy record shape that requires an upgrade.
	KindUnsupportedFormat

	// KindStorageUnavailable means the local store is missing or the remote
	// source failed with no cached fallback. Recoverable by retry.
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAuthenticationFailure:
		return "authentication_failure"
	case KindDeviceMismatch:
		return "device_mismatch"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// Error is the typed result carried across the engine boundary. The
// orchestrator never panics or re-labels: the kind set at the failing step
// is the kind the caller sees.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "recover_org_key"
	Message string // user-facing, actionable for auth/device kinds
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a typed error for op with the given kind.
func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the kind from err. Errors that did not originate in this
// package are classified as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsAuthenticationFailure reports whether err is a wrong-credentials or
// corrupted-ciphertext failure.
func IsAuthenticationFailure(err error) bool {
	return err != nil && KindOf(err) == KindAuthenticationFailure
}

// IsDeviceMismatch reports whether err is a device verification failure.
func IsDeviceMismatch(err error) bool {
	return err != nil && KindOf(err) == KindDeviceMismatch
}

// IsStorageUnavailable reports whether err indicates that neither the local
// store nor the remote source could serve the request.
func IsStorageUnavailable(err error) bool {
	return err != nil && KindOf(err) == KindStorageUnavailable
}

// IsUnsupportedFormat reports whether err came from an unknown algorithm,
// version or record shape.
func IsUnsupportedFormat(err error) bool {
	return err != nil && KindOf(err) == KindUnsupportedFormat
}
