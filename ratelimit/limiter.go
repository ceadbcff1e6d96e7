package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Default limiter parameters. The window slides: a request is admitted
// when fewer than Limit requests landed in the preceding Window.
const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

// Backend mode names reported in Result.Backend and the mode header.
const (
	BackendRedis = "redis"
	BackendLocal = "local"
)

// Limiter admits or rejects requests for a client key.
type Limiter interface {
	// Allow records one request attempt for the key and reports whether
	// it fits the budget. Denied attempts do not consume budget.
	Allow(ctx context.Context, key string) (Result, error)
}

// Result is one admission decision.
type Result struct {
	// Allowed reports whether the request fits the budget.
	Allowed bool `json:"allowed"`

	// Limit is the budget per window.
	Limit int `json:"limit"`

	// Remaining is the budget left in the current window.
	Remaining int `json:"remaining"`

	// Reset is when the oldest counted request leaves the window.
	Reset time.Time `json:"reset"`

	// RetryAfter is how long a denied caller should wait. Zero when
	// allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Backend names the limiter mode that made the decision.
	Backend string `json:"backend"`
}

// Headers renders the decision as HTTP response headers. Retry-After is
// present only on denials and is rounded up to whole seconds.
func (r Result) Headers() map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.Reset.Unix(), 10),
		"X-RateLimit-Backend":   r.Backend,
	}
	if !r.Allowed {
		seconds := int(math.Ceil(r.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		h["Retry-After"] = strconv.Itoa(seconds)
	}
	return h
}

// ClientKey derives a limiter key from a transport address and a
// qualifier: the persona for authenticated callers, the user agent
// otherwise.
func ClientKey(addr, qualifier string) string {
	return fmt.Sprintf("%s|%s", addr, qualifier)
}
