// Package mnemo is a tiered, persona-scoped memory service for agent
// fleets.
//
// Items are classified into four kinds (working, episodic, semantic,
// procedural) and routed across three storage tiers: a Redis fast tier
// for the working set and hot episodes, a vector index for semantic
// search, and a SQLite durable store as the authoritative long-term
// record. A background lifecycle consolidates important working memory
// into the long-term kinds and prunes what an exponential forgetting
// curve has let go of.
//
// Every operation runs inside a security envelope: persona namespaces
// are isolated, callers authenticate with single-show token secrets,
// cross-persona requests pass an access matrix, every decision lands in
// an audit ring, and a distributed sliding-window rate limiter meters
// each persona.
//
// # Getting started
//
//	cfg, err := config.Load("/etc/mnemo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := mnemo.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	secret, _, err := svc.Authenticate(ctx, "athena", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	item, err := svc.Remember(ctx, mnemo.RememberRequest{
//	    Token:      secret,
//	    Content:    memory.TextContent("decision: adopt the new queue"),
//	    Importance: 0.9,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := svc.Recall(ctx, mnemo.RecallRequest{
//	    Token: secret,
//	    Query: "queue",
//	})
//
// # Packages
//
// The root package is the facade; each concern lives in its own
// package:
//
//   - memory: core types (Item, Kind, Persona, Query) and the Backend
//     contract
//   - rediskv, vector, durable: the storage drivers
//   - router: kind-based write routing, tiered reads, search composition
//   - isolation: persona namespaces, TTL scaling, kind priorities
//   - access: tokens, the access matrix, the audit ring
//   - ratelimit: the sliding-window limiter and its local fallback
//   - lifecycle: consolidation and forgetting-curve pruning
//   - lease: the per-persona writer lease for multi-instance deployments
//   - config, memerr, health, types: configuration, structured errors,
//     health checks, shared types
package mnemo
