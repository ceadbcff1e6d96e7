// Package health provides reusable health check functions for the mnemo
// service.
//
// This package offers standardized ways to verify storage connectivity
// and on-disk state, and to fold per-backend statuses into one answer.
// It is designed to help backends and the service facade report health
// consistently.
//
// # Health Check Functions
//
// The package provides four main health check functions:
//
//   - NetworkCheck: Verify TCP connectivity to a host:port
//   - FileCheck: Verify a file or directory exists
//   - Combine: Aggregate multiple health checks into a single status
//   - AggregateTiers: Fold per-backend statuses with critical weighting
//
// # Usage Example
//
//	import (
//	    "context"
//	    "time"
//	    "github.com/pantheon-ai/mnemo/health"
//	)
//
//	// Check network connectivity to redis
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	redisStatus := health.NetworkCheck(ctx, "localhost", 6379)
//
//	// Combine multiple checks
//	overall := health.Combine(
//	    redisStatus,
//	    health.FileCheck("/var/lib/mnemo/mnemo.db"),
//	    health.FileCheck("/var/lib/mnemo/mnemo-vectors.db"),
//	)
//
//	if overall.IsUnhealthy() {
//	    log.Printf("Health check failed: %s", overall.Message)
//	    log.Printf("Details: %+v", overall.Details)
//	}
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// # Tier Aggregation
//
// AggregateTiers applies a weighted version of the same rule for the
// service as a whole. Backends named critical (typically the durable
// store) take the service down when unhealthy; any other impaired
// backend only degrades it, since reads and writes keep flowing
// through the remaining tiers.
//
// # Context and Timeouts
//
// NetworkCheck accepts a context for timeout and cancellation control.
// If nil is passed, a default 5-second timeout is used.
package health
