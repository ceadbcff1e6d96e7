package memerr

import "errors"

// ErrorClass categorizes errors by their nature for retry and fallback
// planning. The router uses it to decide whether to retry an idempotent
// operation or fall through to the next storage tier.
type ErrorClass string

const (
	// ErrorClassInfrastructure indicates a storage tier or dependency issue
	// Examples: redis unreachable, sqlite file missing, etcd lease lost
	ErrorClassInfrastructure ErrorClass = "infrastructure"

	// ErrorClassSemantic indicates input or configuration issues
	// Examples: invalid persona, importance out of range, oversized content
	ErrorClassSemantic ErrorClass = "semantic"

	// ErrorClassTransient indicates temporary failures that may resolve
	// Examples: timeouts, rate limits, lock contention
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates non-recoverable failures
	// Examples: item does not exist, cross-persona access denied
	ErrorClassPermanent ErrorClass = "permanent"
)

// Retryable reports whether an error of this class is worth retrying.
// Infrastructure failures are retryable because the router may reach a
// fallback tier; semantic and permanent failures never are.
func (c ErrorClass) Retryable() bool {
	return c == ErrorClassTransient || c == ErrorClassInfrastructure
}

// DefaultClassForCode returns the default error class for a given error code.
// This provides sensible defaults based on the error code's semantic meaning.
func DefaultClassForCode(code string) ErrorClass {
	switch code {
	case ErrCodeBackendUnavailable:
		return ErrorClassInfrastructure
	case ErrCodeValidation:
		return ErrorClassSemantic
	case ErrCodeConflict:
		return ErrorClassSemantic
	case ErrCodeTimeout:
		return ErrorClassTransient
	case ErrCodeRateLimited:
		return ErrorClassTransient
	case ErrCodeAuthDenied:
		return ErrorClassPermanent
	case ErrCodeNotFound:
		return ErrorClassPermanent
	case ErrCodeInternal:
		// INTERNAL is context-dependent, default to transient
		return ErrorClassTransient
	default:
		// Unknown error codes default to transient
		return ErrorClassTransient
	}
}

// ClassOf extracts the error class from any error in the chain. When the
// structured error carries no explicit class, the default for its code
// applies. Unstructured errors classify as transient.
func ClassOf(err error) ErrorClass {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorClassTransient
	}
	if e.Class != "" {
		return e.Class
	}
	return DefaultClassForCode(e.Code)
}

// Retryable reports whether the error is worth retrying, based on its
// class. Convenience wrapper over ClassOf.
func Retryable(err error) bool {
	return ClassOf(err).Retryable()
}
