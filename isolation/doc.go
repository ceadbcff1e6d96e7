// Package isolation maps personas to their isolated storage namespaces.
//
// Each persona owns a fixed fast-tier logical database with its own
// connection pool, an item quota, a TTL multiplier applied on top of the
// per-kind base TTLs, a set of focus keywords that mark content as
// consolidation-worthy, and per-kind retention priorities for the
// forgetting curve.
//
// The profile table is static. The Resolver adds the fallback policy:
// unknown personas resolve to the shared namespace with a logged
// warning, so namespace resolution can never fail at request time.
// Production mode tightens this to an error instead.
//
//	resolver := isolation.NewResolver(isolation.Options{Logger: logger})
//
//	profile, _ := resolver.Resolve(memory.PersonaAthena)
//	ttl := profile.ScaleTTL(time.Hour)
//	if profile.MatchesFocus("architecture decision: adopt queue X") {
//	    // consolidate regardless of importance
//	}
package isolation
