package types

// Health status constants represent the operational state of a storage
// tier or of the service as a whole.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the component is operational but running
	// on a fallback path or experiencing issues.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the health state of a storage tier or service.
// The service aggregates one per backend: a down durable tier makes the
// whole service unhealthy, any other down tier degrades it.
type HealthStatus struct {
	// Status is the current health state (healthy, degraded, or unhealthy).
	Status string `json:"status"`

	// Message provides a human-readable description of the health status.
	Message string `json:"message,omitempty"`

	// Details contains additional context and diagnostic information,
	// such as per-backend statuses, item counts, or the error that
	// triggered a degradation.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (h HealthStatus) IsHealthy() bool {
	return h.Status == StatusHealthy
}

// IsDegraded returns true if the status is StatusDegraded.
func (h HealthStatus) IsDegraded() bool {
	return h.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (h HealthStatus) IsUnhealthy() bool {
	return h.Status == StatusUnhealthy
}

// WithDetail returns a copy of the status with one more detail attached.
// The original is not modified, so statuses can be built up fluently:
//
//	return types.NewHealthyStatus("redis reachable").
//	    WithDetail("items", count).
//	    WithDetail("backend", "fast_kv")
func (h HealthStatus) WithDetail(key string, value any) HealthStatus {
	details := make(map[string]any, len(h.Details)+1)
	for k, v := range h.Details {
		details[k] = v
	}
	details[key] = value
	h.Details = details
	return h
}

// NewHealthyStatus creates a new healthy status with an optional message.
func NewHealthyStatus(message string) HealthStatus {
	return HealthStatus{
		Status:  StatusHealthy,
		Message: message,
	}
}

// NewDegradedStatus creates a new degraded status with a message and optional details.
func NewDegradedStatus(message string, details map[string]any) HealthStatus {
	return HealthStatus{
		Status:  StatusDegraded,
		Message: message,
		Details: details,
	}
}

// NewUnhealthyStatus creates a new unhealthy status with a message and optional details.
func NewUnhealthyStatus(message string, details map[string]any) HealthStatus {
	return HealthStatus{
		Status:  StatusUnhealthy,
		Message: message,
		Details: details,
	}
}
