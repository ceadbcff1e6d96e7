package access

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/ratelimit"
)

const component = "access"

// Verifier checks caller-supplied credentials for a persona before a
// token is issued. Verification is deployment-specific; a nil Verifier
// accepts any credentials.
type Verifier func(ctx context.Context, persona memory.Persona, credentials string) error

// Options configures a Controller.
type Options struct {
	// Limiter enforces the per-persona request budget during
	// authorization. Nil skips the rate step.
	Limiter ratelimit.Limiter

	// Audit receives every decision. Created with the default capacity
	// when nil.
	Audit *AuditLog

	// Policies is the access matrix. Defaults to DefaultPolicies.
	Policies map[memory.Persona]*Policy

	// TokenTTL is the issued token lifetime. Zero means DefaultTokenTTL.
	TokenTTL time.Duration

	// Verifier validates credentials before issuing tokens. Nil accepts
	// any.
	Verifier Verifier

	// Logger receives access events. Defaults to a JSON logger on
	// stdout.
	Logger *slog.Logger
}

// Decision is the outcome of an authorization check.
type Decision struct {
	// OK reports whether the operation is permitted.
	OK bool

	// Reason is the denial reason. Empty when OK.
	Reason string

	// Token is a copy of the authenticated token when the check got past
	// authentication, even if a later step denied.
	Token *Token

	// Rate carries the rate limiter's decision when it was consulted, so
	// responses can expose the budget headers.
	Rate *ratelimit.Result
}

// Controller issues tokens and authorizes operations against the access
// matrix. Token secrets are returned once; only their hashes are kept,
// so a leaked token table cannot be replayed.
type Controller struct {
	limiter  ratelimit.Limiter
	audit    *AuditLog
	policies map[memory.Persona]*Policy
	ttl      time.Duration
	verifier Verifier
	logger   *slog.Logger

	mu     sync.Mutex
	tokens map[string]*Token // keyed by secret hash
}

// NewController creates a Controller.
func NewController(opts Options) *Controller {
	if opts.Audit == nil {
		opts.Audit = NewAuditLog(0)
	}
	if opts.Policies == nil {
		opts.Policies = DefaultPolicies()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return &Controller{
		limiter:  opts.Limiter,
		audit:    opts.Audit,
		policies: opts.Policies,
		ttl:      opts.TokenTTL,
		verifier: opts.Verifier,
		logger:   opts.Logger.With("component", component),
		tokens:   make(map[string]*Token),
	}
}

// Authenticate issues a token for the persona. The returned secret is
// shown exactly once; callers present it on every request, and the
// service stores only its hash. The token carries the operations and
// kinds its persona's policy level grants and expires after the
// configured TTL.
func (c *Controller) Authenticate(ctx context.Context, persona memory.Persona, credentials string) (string, *Token, error) {
	if err := persona.Validate(); err != nil {
		c.record(persona, "authenticate", false, map[string]any{"reason": "unknown persona"})
		return "", nil, memerr.New(component, "authenticate", memerr.ErrCodeAuthDenied,
			fmt.Sprintf("unknown persona %q", persona)).WithCause(err)
	}

	policy, ok := c.policies[persona]
	if !ok {
		c.record(persona, "authenticate", false, map[string]any{"reason": "no policy"})
		return "", nil, memerr.New(component, "authenticate", memerr.ErrCodeAuthDenied,
			fmt.Sprintf("no access policy for persona %q", persona))
	}

	if c.verifier != nil {
		if err := c.verifier(ctx, persona, credentials); err != nil {
			c.record(persona, "authenticate", false, map[string]any{"reason": "credentials rejected"})
			return "", nil, memerr.New(component, "authenticate", memerr.ErrCodeAuthDenied,
				"credentials rejected").WithCause(err)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return "", nil, memerr.New(component, "authenticate", memerr.ErrCodeInternal,
			"failed to generate token").WithCause(err)
	}

	now := time.Now().UTC()
	token := &Token{
		ID:           uuid.New().String(),
		Hash:         HashSecret(secret),
		Persona:      persona,
		Level:        policy.Level,
		AllowedOps:   policy.Level.Ops(),
		AllowedKinds: policy.AllowedKinds(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttl),
	}

	c.mu.Lock()
	c.tokens[token.Hash] = token
	c.mu.Unlock()

	c.record(persona, "authenticate", true, map[string]any{
		"token_id": token.ID,
		"level":    token.Level.String(),
	})
	c.logger.Info("token issued",
		"persona", persona, "level", token.Level, "expires_at", token.ExpiresAt)

	return secret, token.Clone(), nil
}

// Authorize checks one operation against a presented token hash. The
// steps run in a fixed order: token existence and expiry, the persona's
// rate budget, the operation against the token's level, the kind against
// the token's kinds, and the cross-persona matrix when the target
// differs from the token's persona. Every decision, allowed or denied,
// lands in the audit log.
//
// Target and kind are optional; pass their zero values for operations
// without one.
func (c *Controller) Authorize(ctx context.Context, tokenHash, op string, target memory.Persona, kind memory.Kind) Decision {
	details := map[string]any{"op": op}
	if target != "" {
		details["target"] = target.String()
	}
	if kind != "" {
		details["kind"] = kind.String()
	}

	// Step 1: the token must exist and not be expired.
	token := c.lookup(tokenHash)
	if token == nil {
		details["reason"] = "invalid token"
		c.record("", op, false, details)
		return Decision{Reason: "Invalid token"}
	}
	if token.Expired(time.Now()) {
		c.purge(tokenHash)
		details["reason"] = "token expired"
		c.record(token.Persona, op, false, details)
		return Decision{Reason: "Token expired", Token: token}
	}

	// Step 2: the persona must be inside its request budget.
	var rate *ratelimit.Result
	if c.limiter != nil {
		res, err := c.limiter.Allow(ctx, token.Persona.String())
		if err != nil {
			// Access control fails closed: an unanswerable limiter
			// denies rather than admits unmetered traffic.
			details["reason"] = "rate check failed"
			c.record(token.Persona, "rate_limit_exceeded", false, details)
			return Decision{Reason: "Rate limit exceeded", Token: token}
		}
		rate = &res
		if !res.Allowed {
			details["reason"] = "rate limit exceeded"
			details["retry_after"] = res.RetryAfter.String()
			c.record(token.Persona, "rate_limit_exceeded", false, details)
			return Decision{Reason: "Rate limit exceeded", Token: token, Rate: rate}
		}
	}

	// Step 3: the operation must be granted by the token's level.
	if !token.AllowsOp(op) {
		details["reason"] = "operation not allowed"
		c.record(token.Persona, op, false, details)
		return Decision{
			Reason: fmt.Sprintf("Operation %s not allowed for level %s", op, token.Level),
			Token:  token,
			Rate:   rate,
		}
	}

	// Step 4: the kind, when present, must be granted.
	if kind != "" && !token.AllowsKind(kind) {
		details["reason"] = "kind not allowed"
		c.record(token.Persona, op, false, details)
		return Decision{
			Reason: fmt.Sprintf("Memory kind %s not allowed", kind),
			Token:  token,
			Rate:   rate,
		}
	}

	// Step 5: cross-persona requests must pass the matrix.
	if target != "" && target != token.Persona {
		if !c.crossAllowed(token, op, target) {
			details["reason"] = "cross-persona denied"
			c.record(token.Persona, op, false, details)
			return Decision{
				Reason: fmt.Sprintf("Cross-persona access denied from %s to %s", token.Persona, target),
				Token:  token,
				Rate:   rate,
			}
		}
	}

	// Step 6: record the grant.
	c.record(token.Persona, op, true, details)
	return Decision{OK: true, Token: token, Rate: rate}
}

// AuthorizeTarget applies the cross-persona matrix to an already
// authenticated token. It exists for operations whose target persona is
// only known after the item has been fetched; the rate budget was
// charged by the preceding Authorize call, so this step checks and
// audits the matrix alone.
func (c *Controller) AuthorizeTarget(token *Token, op string, target memory.Persona) Decision {
	if token == nil {
		return Decision{Reason: "Invalid token"}
	}
	if target == "" || target == token.Persona || c.crossAllowed(token, op, target) {
		return Decision{OK: true, Token: token}
	}

	c.record(token.Persona, op, false, map[string]any{
		"op":     op,
		"target": target.String(),
		"reason": "cross-persona denied",
	})
	return Decision{
		Reason: fmt.Sprintf("Cross-persona access denied from %s to %s", token.Persona, target),
		Token:  token,
	}
}

// Revoke invalidates a token by its hash, reporting whether it existed.
func (c *Controller) Revoke(tokenHash string) bool {
	c.mu.Lock()
	token, ok := c.tokens[tokenHash]
	if ok {
		delete(c.tokens, tokenHash)
	}
	c.mu.Unlock()

	if ok {
		c.record(token.Persona, "revoke", true, map[string]any{"token_id": token.ID})
		c.logger.Info("token revoked", "persona", token.Persona, "token_id", token.ID)
	}
	return ok
}

// PurgeExpired drops every expired token and returns how many were
// removed. Expired tokens are also purged lazily when presented.
func (c *Controller) PurgeExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var purged int
	for hash, token := range c.tokens {
		if token.Expired(now) {
			delete(c.tokens, hash)
			purged++
		}
	}
	return purged
}

// RecordFailure audits an absorbed failure: a secondary write that did
// not fail its operation, a routed-around tier, a touch that could not
// persist.
func (c *Controller) RecordFailure(op, backend string, err error) {
	c.record(memory.PersonaSystem, op, false, map[string]any{
		"backend": backend,
		"error":   err.Error(),
	})
}

// Audit exposes the audit log for admin queries.
func (c *Controller) Audit() *AuditLog {
	return c.audit
}

// Stats reports controller counters.
func (c *Controller) Stats() map[string]any {
	c.mu.Lock()
	active := len(c.tokens)
	c.mu.Unlock()

	return map[string]any{
		"active_tokens": active,
		"audit_records": c.audit.Len(),
	}
}

// lookup returns a copy of the stored token for a hash, or nil.
func (c *Controller) lookup(hash string) *Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.tokens[hash]
	if !ok {
		return nil
	}
	return token.Clone()
}

// purge removes a token by hash.
func (c *Controller) purge(hash string) {
	c.mu.Lock()
	delete(c.tokens, hash)
	c.mu.Unlock()
}

// crossAllowed applies the cross-persona matrix for one operation.
func (c *Controller) crossAllowed(token *Token, op string, target memory.Persona) bool {
	policy, ok := c.policies[token.Persona]
	if !ok {
		return false
	}

	switch {
	case contains(readOps, op):
		return policy.AllowsReadFrom(target)
	case contains(writeOps, op):
		return policy.AllowsWriteTo(target)
	case op == OpShare:
		return policy.AllowsShareWith(target)
	case op == OpDelete:
		return token.Level == LevelAdmin
	default:
		return false
	}
}

// record appends one audit entry.
func (c *Controller) record(persona memory.Persona, op string, success bool, details map[string]any) {
	c.audit.Append(Record{
		Time:      time.Now().UTC(),
		Persona:   persona,
		Operation: op,
		Success:   success,
		Details:   details,
	})
}

func contains(list []string, s string) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
