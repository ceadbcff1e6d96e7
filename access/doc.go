// Package access is the security envelope of the memory service: token
// issuance, the per-operation authorization matrix, and the audit ring.
//
// # Tokens
//
// Authenticate issues a 32-byte random secret and keeps only its SHA-256
// hash, so the stored token table cannot be replayed if it leaks. A
// token carries the operations and memory kinds its persona's access
// level grants and expires after a fixed TTL.
//
// # Authorization
//
// Authorize runs a fixed sequence for every operation: token existence
// and expiry, the persona's rate budget, the operation against the
// token's level, the kind against the token's kinds, and the
// cross-persona matrix when the target differs from the token's own
// persona. Levels nest READ < WRITE < DELETE < ADMIN; cross-persona
// deletes require ADMIN.
//
// # Audit
//
// Every decision lands in a bounded ring of 10,000 records, newest
// overwriting oldest, queryable by persona and operation. Rate denials
// and absorbed backend failures are recorded too.
//
// # Usage
//
//	ctrl := access.NewController(access.Options{Limiter: limiter})
//
//	secret, token, err := ctrl.Authenticate(ctx, memory.PersonaAthena, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dec := ctrl.Authorize(ctx, access.HashSecret(secret), access.OpStore,
//	    memory.PersonaShared, memory.KindSemantic)
//	if !dec.OK {
//	    return fmt.Errorf("denied: %s", dec.Reason)
//	}
//
// The caller keeps the secret; the controller never sees it again except
// as a hash.
package access
