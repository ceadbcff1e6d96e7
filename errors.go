package mnemo

import (
	"errors"

	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
)

// IsAuth reports whether an error is an authentication or authorization
// denial: a missing, expired, or insufficient token, or a cross-persona
// request the access matrix rejects.
func IsAuth(err error) bool {
	return memerr.HasCode(err, memerr.ErrCodeAuthDenied)
}

// IsRateLimited reports whether an error is a rate-limit denial. Such
// errors carry a "retry_after" detail with the suggested backoff.
func IsRateLimited(err error) bool {
	return memerr.HasCode(err, memerr.ErrCodeRateLimited)
}

// IsNotFound reports whether an error means the requested item does not
// exist in any tier.
func IsNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound) ||
		memerr.HasCode(err, memerr.ErrCodeNotFound)
}

// IsValidation reports whether an error is a request validation
// failure: a bad persona or kind, importance outside [0,1], or
// oversized content.
func IsValidation(err error) bool {
	return memerr.HasCode(err, memerr.ErrCodeValidation) ||
		errors.Is(err, memory.ErrInvalidItem) ||
		errors.Is(err, memory.ErrInvalidID) ||
		errors.Is(err, memory.ErrInvalidQuery)
}
