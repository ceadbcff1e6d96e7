// Package memory defines the core data model of the mnemo service: the
// closed sets of personas and memory kinds, the Item record, search
// queries and results, and the Backend interface that every storage tier
// implements.
//
// Memory is organized by kind, and the kind decides where an item lives
// and how long it survives:
//
//   - Working: Short-lived scratch state. Held in the fast key-value
//     tier with a TTL of about an hour.
//
//   - Episodic: Records of specific events. Held in the fast tier for a
//     day, with important episodes archived durably.
//
//   - Semantic: Facts and concepts. Indexed in the vector tier for
//     similarity search, with a short fast-tier cache.
//
//   - Procedural: How-to knowledge. Indexed in the vector tier and
//     archived durably. Never pruned.
//
// # Personas
//
// Every item belongs to exactly one persona from a closed set. Five
// agent personas own private memory; two pseudo-personas, shared and
// system, hold common knowledge that others may read:
//
//	p, ok := memory.ParsePersona("Athena")
//	if !ok {
//	    // unknown names fall back to the shared namespace
//	}
//	fmt.Println(p.IsAgent()) // true
//
// # Items
//
// Item is the unit of storage. Content may be free text or a structured
// object, and the shape round-trips through JSON unchanged:
//
//	item := &memory.Item{
//	    ID:         uuid.NewString(),
//	    Persona:    memory.PersonaAthena,
//	    Kind:       memory.KindSemantic,
//	    Content:    memory.TextContent("architecture decision: adopt queue X"),
//	    Importance: 0.9,
//	    CreatedAt:  time.Now().UTC(),
//	}
//	if err := item.Validate(); err != nil {
//	    // importance outside [0,1], empty content, bad persona or kind
//	}
//
// # Queries
//
// Query describes a recall request. Backends interpret the fields they
// understand (the vector tier embeds Text, the durable tier substring
// matches it) and results come back ordered by descending score:
//
//	results, err := backend.Search(ctx, memory.Query{
//	    Text:  "queue architecture",
//	    Kinds: []memory.Kind{memory.KindSemantic},
//	    Limit: 5,
//	}, memory.PersonaAthena)
//
// # Error Handling
//
// Backends wrap the package sentinels so callers can classify failures
// with errors.Is regardless of which tier produced them:
//
//	item, err := backend.Retrieve(ctx, id)
//	if errors.Is(err, memory.ErrNotFound) {
//	    // absent in this tier; the router falls through to the next
//	}
package memory
