package access

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pantheon-ai/mnemo/memory"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// tokenBytes is the entropy of a token secret.
const tokenBytes = 32

// Token is the server-side record of an issued credential. Only the
// SHA-256 hash of the secret is retained; the secret itself is returned
// to the caller once and never stored.
type Token struct {
	// ID identifies the token in logs and audit records.
	ID string `json:"id"`

	// Hash is the hex SHA-256 digest of the secret.
	Hash string `json:"hash"`

	// Persona is the identity the token authenticates.
	Persona memory.Persona `json:"persona"`

	// Level is the access tier granted at issue time.
	Level Level `json:"level"`

	// AllowedOps are the operations the level grants.
	AllowedOps []string `json:"allowed_ops"`

	// AllowedKinds are the memory kinds the token may touch.
	AllowedKinds []memory.Kind `json:"allowed_kinds"`

	// CreatedAt is the issue time in UTC.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the token stops being honored.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token has passed its expiry.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AllowsOp reports whether the token grants the operation.
func (t *Token) AllowsOp(op string) bool {
	for _, allowed := range t.AllowedOps {
		if allowed == op {
			return true
		}
	}
	return false
}

// AllowsKind reports whether the token may touch the kind.
func (t *Token) AllowsKind(kind memory.Kind) bool {
	return containsKind(t.AllowedKinds, kind)
}

// Clone returns a copy whose slices are independent of the original.
func (t *Token) Clone() *Token {
	clone := *t
	clone.AllowedOps = append([]string(nil), t.AllowedOps...)
	clone.AllowedKinds = append([]memory.Kind(nil), t.AllowedKinds...)
	return &clone
}

// generateSecret returns a fresh token secret: the hex encoding of 32
// random bytes.
func generateSecret() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the hex SHA-256 digest under which a secret is
// stored and looked up.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
