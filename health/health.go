// Package health provides reusable health check functions for the mnemo
// service. It offers standardized ways to verify storage connectivity,
// on-disk state, and to aggregate per-tier statuses into one answer.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pantheon-ai/mnemo/types"
)

// NetworkCheck verifies TCP connectivity to a host and port.
// It uses the provided context for timeout and cancellation control.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	status := health.NetworkCheck(ctx, "localhost", 6379)
//	if status.IsUnhealthy() {
//	    log.Println("Cannot reach redis")
//	}
func NetworkCheck(ctx context.Context, host string, port int) types.HealthStatus {
	if host == "" {
		return types.NewUnhealthyStatus("host cannot be empty", nil)
	}

	if port <= 0 || port > 65535 {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("invalid port number: %d", port),
			map[string]any{"port": port},
		)
	}

	// Use context with timeout if not already set
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"host":  host,
				"port":  port,
				"error": err.Error(),
			},
		)
	}

	// Close connection immediately
	conn.Close()

	return types.NewHealthyStatus(
		fmt.Sprintf("successfully connected to %s", address),
	)
}

// FileCheck verifies that a file or directory exists at the specified path.
// It returns healthy if the path exists, unhealthy otherwise.
//
// Example:
//
//	status := health.FileCheck("/var/lib/mnemo/mnemo.db")
//	if status.IsUnhealthy() {
//	    log.Fatal("durable store is missing")
//	}
func FileCheck(path string) types.HealthStatus {
	if path == "" {
		return types.NewUnhealthyStatus("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewUnhealthyStatus(
				fmt.Sprintf("path '%s' does not exist", path),
				map[string]any{
					"path": path,
				},
			)
		}

		return types.NewUnhealthyStatus(
			fmt.Sprintf("failed to stat path '%s'", path),
			map[string]any{
				"path":  path,
				"error": err.Error(),
			},
		)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}

	return types.NewHealthyStatus(
		fmt.Sprintf("%s '%s' exists", fileType, path),
	)
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
//
// Example:
//
//	status := health.Combine(
//	    health.FileCheck(durablePath),
//	    health.FileCheck(vectorPath),
//	)
//	if status.IsUnhealthy() {
//	    log.Fatal("On-disk state missing")
//	}
func Combine(checks ...types.HealthStatus) types.HealthStatus {
	if len(checks) == 0 {
		return types.NewHealthyStatus("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		switch check.Status {
		case types.StatusUnhealthy:
			msg := check.Message
			if msg == "" {
				msg = "unnamed check"
			}
			unhealthyChecks = append(unhealthyChecks, msg)
		case types.StatusDegraded:
			msg := check.Message
			if msg == "" {
				msg = "unnamed check"
			}
			degradedChecks = append(degradedChecks, msg)
		case types.StatusHealthy:
			healthyCount++
		}
	}

	// Return unhealthy if any check is unhealthy
	if len(unhealthyChecks) > 0 {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	// Return degraded if any check is degraded
	if len(degradedChecks) > 0 {
		return types.NewDegradedStatus(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	// All checks are healthy
	return types.NewHealthyStatus(
		fmt.Sprintf("all %d check(s) passed", len(checks)),
	)
}

// AggregateTiers folds per-backend statuses into one service status.
// Backends named in critical take the service down when they are
// unhealthy; any other non-healthy backend only degrades it, because
// the router keeps serving through the remaining tiers.
//
// The result's details carry every backend's status string plus the
// statuses of the unhealthy or degraded ones.
//
// Example:
//
//	status := health.AggregateTiers(map[string]types.HealthStatus{
//	    "fast_kv": fastStatus,
//	    "vector":  vectorStatus,
//	    "durable": durableStatus,
//	}, "durable")
func AggregateTiers(statuses map[string]types.HealthStatus, critical ...string) types.HealthStatus {
	if len(statuses) == 0 {
		return types.NewHealthyStatus("no backends registered")
	}

	isCritical := make(map[string]bool, len(critical))
	for _, name := range critical {
		isCritical[name] = true
	}

	details := make(map[string]any, len(statuses))
	var criticalDown, impaired []string

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := statuses[name]
		details[name] = status.Status
		switch {
		case status.IsUnhealthy() && isCritical[name]:
			criticalDown = append(criticalDown, name)
		case !status.IsHealthy():
			impaired = append(impaired, name)
		}
	}

	if len(criticalDown) > 0 {
		details["unhealthy_backends"] = criticalDown
		return types.NewUnhealthyStatus(
			fmt.Sprintf("critical backend(s) down: %v", criticalDown),
			details,
		)
	}

	if len(impaired) > 0 {
		details["impaired_backends"] = impaired
		return types.NewDegradedStatus(
			fmt.Sprintf("backend(s) impaired: %v", impaired),
			details,
		)
	}

	return types.NewHealthyStatus(
		fmt.Sprintf("all %d backend(s) healthy", len(statuses)),
	)
}
