// Package vector implements the semantic tier of the memory service on
// SQLite.
//
// Each kind has its own collection table (vectors_working,
// vectors_episodic, vectors_semantic, vectors_procedural) holding the
// item, its flattened document text and a JSON-encoded embedding.
// Search embeds the query text and brute-forces cosine similarity over
// the persona's rows, which stays cheap at the collection sizes the
// lifecycle engine maintains.
//
// # Embedders
//
// The Embedder interface externalizes embedding generation. The built-in
// HashEmbedder hashes tokens into buckets and L2-normalizes, giving
// deterministic vectors with no external service: texts sharing many
// tokens score high cosine similarity, disjoint texts score near zero.
// Deployments with a real embedding model plug it in through the service
// options; stored vectors from a different model are skipped at search
// time when their width no longer matches.
//
// # Usage
//
//	idx, err := vector.New(vector.Options{
//	    Path: "/var/lib/mnemo/mnemo-vectors.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	results, err := idx.Search(ctx, memory.Query{
//	    Text:  "database connection pooling",
//	    Kinds: []memory.Kind{memory.KindSemantic},
//	}, memory.PersonaAthena)
package vector
