// Package types provides shared type definitions for the mnemo memory
// service.
//
// This package defines the types that cross package boundaries without
// pulling in the storage model itself: health statuses reported by
// backends and TTL bounds applied to fast-tier expiry.
//
// # Health Types
//
// Health types represent the operational status of a storage tier or of
// the whole service:
//
//	status := types.NewHealthyStatus("redis reachable")
//	if status.IsHealthy() {
//	    // Tier is fully operational
//	}
//
//	degraded := types.NewDegradedStatus("fast tier down, routing to durable", map[string]any{
//	    "backend": "fast_kv",
//	})
//
// Details can also be attached fluently:
//
//	status = types.NewHealthyStatus("ok").
//	    WithDetail("items", 128).
//	    WithDetail("backend", "vector")
//
// # TTL Bounds
//
// TTLBounds keep per-kind expiry inside an operationally sane range
// after persona profiles have scaled it:
//
//	bounds := types.TTLBounds{
//	    Default: time.Hour,
//	    Min:     time.Minute,
//	    Max:     7 * 24 * time.Hour,
//	}
//	ttl := bounds.Resolve(0)           // 1h default
//	ttl = bounds.Clamp(30 * time.Second) // raised to 1m
//
// # JSON Serialization
//
// All types support JSON marshaling and unmarshaling:
//
//	data, err := json.Marshal(status)
//	if err != nil {
//	    log.Fatal(err)
//	}
package types
