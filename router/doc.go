// Package router composes the storage tiers into one hybrid memory
// store.
//
// The router owns the routing policy: which tier takes a write for each
// memory kind, which tiers a read probes and in what order, and which
// tiers contribute to a search. Callers see a single store; the router
// sees three backends with different strengths and routes around the
// ones that are down.
//
// # Write Routing
//
// Writes are keyed by item kind. Working items go to the fast tier,
// episodic items go to the fast tier and are archived to durable when
// important enough, semantic items go to the vector tier with a fast
// cache copy, and procedural items go to the vector tier with a
// mandatory durable copy. When a primary tier is unavailable the next
// tier in the chain takes the write, so the service degrades instead of
// refusing writes.
//
// # Read Path
//
// Retrieves probe the local LRU cache, then the fast, vector, and
// durable tiers in order. A hit outside the fast tier is written back to
// it, and every successful retrieve persists the item's bumped access
// counters. Searches consult the vector tier for semantic and procedural
// kinds, the fast importance index for episodic and working kinds, and
// top up from durable when short, deduplicating by id.
//
// # Usage
//
//	r, err := router.New(router.Options{
//	    Fast:    fastStore,
//	    Vector:  vectorIndex,
//	    Durable: durableStore,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	item, err := r.Retrieve(ctx, id)
//
// Idempotent operations retry once after a transient backend error;
// writes never retry.
package router
