// Package lease elects the lifecycle writer for each persona across
// service replicas.
//
// The service is single-writer-per-persona: at most one instance may run
// a persona's consolidation and pruning loops at a time. The Manager
// makes that contract operational with etcd leases: claiming a persona
// writes /{namespace}/writer/{persona} under a TTL lease in a
// transaction that only succeeds when no live lease holds the key, and a
// background goroutine renews the lease every TTL/3. An instance that
// dies stops renewing, its leases expire, and another instance claims
// the orphaned personas.
//
// Deployments without etcd skip the package entirely: NewManagerFromEnv
// returns (nil, nil) when MNEMO_ETCD_ENDPOINTS is unset, and a nil
// Manager reports Holding true for every persona, so a single instance
// runs every loop.
package lease
