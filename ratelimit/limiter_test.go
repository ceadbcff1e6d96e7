package ratelimit

import (
	"testing"
	"time"
)

func TestResultHeaders(t *testing.T) {
	reset := time.Unix(1700000000, 0)

	allowed := Result{
		Allowed:   true,
		Limit:     100,
		Remaining: 42,
		Reset:     reset,
		Backend:   BackendRedis,
	}

	h := allowed.Headers()
	if got := h["X-RateLimit-Limit"]; got != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "100")
	}
	if got := h["X-RateLimit-Remaining"]; got != "42" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "42")
	}
	if got := h["X-RateLimit-Reset"]; got != "1700000000" {
		t.Errorf("X-RateLimit-Reset = %q, want %q", got, "1700000000")
	}
	if got := h["X-RateLimit-Backend"]; got != BackendRedis {
		t.Errorf("X-RateLimit-Backend = %q, want %q", got, BackendRedis)
	}
	if _, ok := h["Retry-After"]; ok {
		t.Error("allowed result should not carry Retry-After")
	}
}

func TestResultHeadersDenied(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       string
	}{
		{"whole seconds", 13 * time.Second, "13"},
		{"fractional seconds round up", 12300 * time.Millisecond, "13"},
		{"sub second floors at one", 200 * time.Millisecond, "1"},
		{"zero floors at one", 0, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied := Result{
				Allowed:    false,
				Limit:      3,
				Reset:      time.Now(),
				RetryAfter: tt.retryAfter,
				Backend:    BackendLocal,
			}

			h := denied.Headers()
			if got := h["Retry-After"]; got != tt.want {
				t.Errorf("Retry-After = %q, want %q", got, tt.want)
			}
			if got := h["X-RateLimit-Remaining"]; got != "0" {
				t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "0")
			}
		})
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		addr      string
		qualifier string
		want      string
	}{
		{"10.0.0.7", "athena", "10.0.0.7|athena"},
		{"10.0.0.7", "curl/8.4", "10.0.0.7|curl/8.4"},
		{"", "", "|"},
	}

	for _, tt := range tests {
		if got := ClientKey(tt.addr, tt.qualifier); got != tt.want {
			t.Errorf("ClientKey(%q, %q) = %q, want %q", tt.addr, tt.qualifier, got, tt.want)
		}
	}
}
