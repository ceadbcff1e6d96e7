// Package ratelimit enforces a sliding-window request budget per client
// key.
//
// Every instance of the service shares one budget through Redis: each
// key holds a sorted set of request timestamps under rate_limit:{client}
// in the service-state database. One transactional pipeline trims the
// expired entries, counts the survivors, records the new request, and
// refreshes the key expiry; a request that finds the window full is
// denied and its entry removed, so denials never consume budget.
//
// # Fallback
//
// The Coordinator prefers the Redis limiter and trips to an in-process
// limiter with identical semantics when Redis errors. Local mode
// coordinates nothing across instances. Mode transitions are logged, and
// after a cooldown the next request probes Redis again. Decisions carry
// the deciding backend so responses can expose it in the
// X-RateLimit-Backend header.
//
// # Usage
//
//	rl, err := ratelimit.NewRedis(ratelimit.RedisOptions{
//	    URL:    "redis://localhost:6379/0",
//	    Limit:  100,
//	    Window: time.Minute,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	limiter := ratelimit.NewCoordinator(ratelimit.CoordinatorOptions{
//	    Redis:  rl,
//	    Limit:  100,
//	    Window: time.Minute,
//	})
//	defer limiter.Close()
//
//	res, err := limiter.Allow(ctx, ratelimit.ClientKey(addr, persona))
//
// Health and stats paths are expected to bypass the limiter entirely;
// the service never consults it for them.
package ratelimit
