// Package rediskv implements the fast tier of the memory service on
// Redis.
//
// The fast tier holds the working set, the episodic hot window and a
// short-lived read cache for long-term kinds. Every item lives under
// memory:{id} with a per-kind expiry scaled by its persona's TTL
// multiplier; persona:{persona}:{kind} sorted sets index ids by
// importance and type:{kind} sets track kind membership. Writes keep the
// primary key and both indexes consistent by running in a single
// transactional pipeline.
//
// # Persona Namespaces
//
// Each persona maps to its own logical Redis database, taken from the
// isolation profile, with a lazily created connection pool. Unknown
// personas are served from the shared namespace with a logged warning,
// so obtaining a handle never fails. Ids carry no persona, which means
// bare id lookups probe the namespaces in profile order.
//
// # Usage
//
//	store, err := rediskv.New(rediskv.Options{
//	    URL: "redis://localhost:6379/0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Store(ctx, item)
//
// Expiry does the working tier's forgetting: items that are not
// consolidated within their TTL simply vanish, and the importance
// indexes are purged lazily as expired ids are encountered.
package rediskv
