package types

import (
	"fmt"
	"time"
)

// TTLBounds defines expiry bounds for items held in the fast tier.
// Per-persona profiles scale the base TTL up or down; bounds keep the
// scaled value inside an operationally sane range.
type TTLBounds struct {
	// Default is the TTL to use if the caller does not specify one.
	// A zero value means use the service default (1 hour).
	Default time.Duration

	// Max is the maximum allowed TTL.
	// A zero value means no upper bound is enforced.
	Max time.Duration

	// Min is the minimum allowed TTL.
	// A zero value means no lower bound is enforced.
	Min time.Duration
}

// Validate checks that the TTL bounds are internally consistent.
// It verifies that:
// - If both min and max are set, min <= max
// - If default is set, it falls within the min/max bounds
//
// Returns an error if the bounds are invalid.
func (b TTLBounds) Validate() error {
	if b.Min > 0 && b.Max > 0 && b.Min > b.Max {
		return fmt.Errorf("min ttl %v exceeds max ttl %v", b.Min, b.Max)
	}

	if b.Default > 0 {
		if b.Min > 0 && b.Default < b.Min {
			return fmt.Errorf("default ttl %v below min %v", b.Default, b.Min)
		}
		if b.Max > 0 && b.Default > b.Max {
			return fmt.Errorf("default ttl %v exceeds max %v", b.Default, b.Max)
		}
	}

	return nil
}

// Resolve returns the effective TTL for an item. It implements the
// following precedence order:
// 1. If requested > 0, use the requested TTL clamped into bounds
// 2. Else if Default > 0, use the default
// 3. Else use the service default (1 hour)
func (b TTLBounds) Resolve(requested time.Duration) time.Duration {
	if requested > 0 {
		return b.Clamp(requested)
	}
	if b.Default > 0 {
		return b.Default
	}
	return time.Hour
}

// Clamp forces a TTL into the configured bounds. Values below Min are
// raised, values above Max are lowered, and everything else passes
// through unchanged.
func (b TTLBounds) Clamp(ttl time.Duration) time.Duration {
	if b.Min > 0 && ttl < b.Min {
		return b.Min
	}
	if b.Max > 0 && ttl > b.Max {
		return b.Max
	}
	return ttl
}
