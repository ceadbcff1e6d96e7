// Package durable implements the authoritative tier of the memory
// service on SQLite.
//
// Three tables hold the long-term record: memories_episodic,
// memories_semantic and memories_procedural. Working items have no table
// of their own; when routing falls back to the durable store they land
// in the episodic table with their kind column preserving the truth, so
// nothing is mislabeled on the way back out.
//
// Every row carries the full item: content, tags, metadata and embedding
// as JSON columns, plus importance, timestamps and the access counter
// the retention formula feeds on. An id is unique across all three
// tables; upserts clear stale copies in one transaction so a
// consolidation that changed an item's kind leaves nothing behind.
//
// Search filters by persona, kind, content substring, tag membership and
// minimum importance, ordered by importance and recency. The durable
// tier is the slowest and most complete answer: the router consults it
// last and uses it to top up short result sets.
package durable
