// Package lifecycle runs the memory lifecycle: consolidation sweeps
// that promote working memory into long-term kinds, and pruning sweeps
// that apply an exponential forgetting curve to the long-term tiers.
//
// Consolidation promotes a working item when its importance exceeds
// 0.7, when it has been recalled more than five times, or when its
// content matches one of the persona's focus keywords. The promoted
// copy keeps its id and takes the kind a keyword classifier infers
// from the content, falling back to episodic.
//
// Pruning computes a retention score per item from its age, access
// count, importance, and the persona's per-kind priority. Episodic
// items are destroyed below 0.10, semantic items below 0.05;
// procedural knowledge is never pruned and working memory is left to
// its TTL.
//
// The Engine runs one goroutine per persona per sweep. Sweeps can also
// be driven manually:
//
//	engine, err := lifecycle.New(lifecycle.Options{
//		Router:  rt,
//		Working: fast,
//	})
//	if err != nil {
//		return err
//	}
//	promoted, err := engine.ConsolidateOnce(ctx, memory.PersonaAthena)
package lifecycle
