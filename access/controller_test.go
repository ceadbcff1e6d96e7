package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/ratelimit"
)

// scriptedLimiter returns canned admission decisions so authorization
// tests can exercise the rate step without Redis.
type scriptedLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (s *scriptedLimiter) Allow(ctx context.Context, key string) (ratelimit.Result, error) {
	s.calls++
	if s.err != nil {
		return ratelimit.Result{}, s.err
	}
	return ratelimit.Result{
		Allowed:    s.allowed,
		Limit:      3,
		Remaining:  0,
		RetryAfter: 10 * time.Second,
		Backend:    ratelimit.BackendLocal,
	}, nil
}

func setupController(t *testing.T, opts Options) *Controller {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewController(opts)
}

func issue(t *testing.T, c *Controller, persona memory.Persona) (string, *Token) {
	t.Helper()

	secret, token, err := c.Authenticate(context.Background(), persona, "")
	require.NoError(t, err)
	require.NotNil(t, token)
	return secret, token
}

func TestAuthenticate(t *testing.T) {
	c := setupController(t, Options{})

	secret, token := issue(t, c, memory.PersonaArtemis)

	// 32 random bytes hex-encoded, never stored raw.
	assert.Len(t, secret, 64)
	assert.Equal(t, HashSecret(secret), token.Hash)
	assert.NotEqual(t, secret, token.Hash)

	assert.Equal(t, memory.PersonaArtemis, token.Persona)
	assert.Equal(t, LevelWrite, token.Level)
	assert.Contains(t, token.AllowedOps, OpStore)
	assert.Contains(t, token.AllowedOps, OpRetrieve)
	assert.NotContains(t, token.AllowedOps, OpDelete)

	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), token.ExpiresAt, time.Minute)
}

func TestAuthenticateUnknownPersona(t *testing.T) {
	c := setupController(t, Options{})

	_, _, err := c.Authenticate(context.Background(), memory.Persona("nemesis"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInvalidPersona)

	records := c.Audit().Query(AuditQuery{Operation: "authenticate"})
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestAuthenticateVerifierRejects(t *testing.T) {
	c := setupController(t, Options{
		Verifier: func(ctx context.Context, persona memory.Persona, credentials string) error {
			if credentials != "s3cret" {
				return fmt.Errorf("bad credentials")
			}
			return nil
		},
	})

	_, _, err := c.Authenticate(context.Background(), memory.PersonaAthena, "wrong")
	assert.Error(t, err)

	_, token, err := c.Authenticate(context.Background(), memory.PersonaAthena, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, LevelAdmin, token.Level)
}

func TestAuthorizeInvalidToken(t *testing.T) {
	c := setupController(t, Options{})

	dec := c.Authorize(context.Background(), HashSecret("never-issued"), OpRetrieve, "", "")
	assert.False(t, dec.OK)
	assert.Equal(t, "Invalid token", dec.Reason)
}

func TestAuthorizeExpiredTokenPurged(t *testing.T) {
	c := setupController(t, Options{TokenTTL: time.Millisecond})

	secret, token := issue(t, c, memory.PersonaAthena)
	time.Sleep(5 * time.Millisecond)

	dec := c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, "", "")
	assert.False(t, dec.OK)
	assert.Equal(t, "Token expired", dec.Reason)
	require.NotNil(t, dec.Token)
	assert.Equal(t, token.ID, dec.Token.ID)

	// The expired token was purged; presenting it again reads as unknown.
	dec = c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, "", "")
	assert.Equal(t, "Invalid token", dec.Reason)
}

func TestAuthorizeOpBeyondLevel(t *testing.T) {
	c := setupController(t, Options{})

	// The shared persona holds read-only tokens.
	secret, _ := issue(t, c, memory.PersonaShared)

	dec := c.Authorize(context.Background(), HashSecret(secret), OpStore, "", "")
	assert.False(t, dec.OK)
	assert.Contains(t, dec.Reason, "Operation store not allowed")

	dec = c.Authorize(context.Background(), HashSecret(secret), OpSearch, "", "")
	assert.True(t, dec.OK)
}

func TestAuthorizeRestrictedKind(t *testing.T) {
	c := setupController(t, Options{})

	// Working memory never crosses into the shared namespace.
	secret, _ := issue(t, c, memory.PersonaShared)

	dec := c.Authorize(context.Background(), HashSecret(secret), OpSearch, "", memory.KindWorking)
	assert.False(t, dec.OK)
	assert.Contains(t, dec.Reason, "working")

	dec = c.Authorize(context.Background(), HashSecret(secret), OpSearch, "", memory.KindSemantic)
	assert.True(t, dec.OK)
}

func TestAuthorizeCrossPersona(t *testing.T) {
	c := setupController(t, Options{})

	t.Run("write-level token denied outside its read set", func(t *testing.T) {
		secret, _ := issue(t, c, memory.PersonaArtemis)

		dec := c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, memory.PersonaHestia, "")
		assert.False(t, dec.OK)
		assert.Equal(t, "Cross-persona access denied from artemis to hestia", dec.Reason)
	})

	t.Run("shared pool readable by every agent", func(t *testing.T) {
		secret, _ := issue(t, c, memory.PersonaArtemis)

		dec := c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, memory.PersonaShared, "")
		assert.True(t, dec.OK)
	})

	t.Run("admin reads everything", func(t *testing.T) {
		secret, _ := issue(t, c, memory.PersonaAthena)

		dec := c.Authorize(context.Background(), HashSecret(secret), OpSearch, memory.PersonaHestia, "")
		assert.True(t, dec.OK)
	})

	t.Run("cross-persona delete needs admin", func(t *testing.T) {
		athena, _ := issue(t, c, memory.PersonaAthena)
		dec := c.Authorize(context.Background(), HashSecret(athena), OpDelete, memory.PersonaBellona, "")
		assert.True(t, dec.OK)

		seshat, _ := issue(t, c, memory.PersonaSeshat)
		dec = c.Authorize(context.Background(), HashSecret(seshat), OpDelete, memory.PersonaBellona, "")
		assert.False(t, dec.OK)
	})

	t.Run("own persona always passes the matrix", func(t *testing.T) {
		secret, _ := issue(t, c, memory.PersonaBellona)

		dec := c.Authorize(context.Background(), HashSecret(secret), OpStore, memory.PersonaBellona, "")
		assert.True(t, dec.OK)
	})
}

func TestAuthorizeRateLimited(t *testing.T) {
	limiter := &scriptedLimiter{allowed: false}
	c := setupController(t, Options{Limiter: limiter})

	secret, _ := issue(t, c, memory.PersonaArtemis)

	dec := c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, "", "")
	assert.False(t, dec.OK)
	assert.Equal(t, "Rate limit exceeded", dec.Reason)
	require.NotNil(t, dec.Rate)
	assert.Equal(t, 0, dec.Rate.Remaining)
	assert.Equal(t, 1, limiter.calls)

	records := c.Audit().Query(AuditQuery{Operation: "rate_limit_exceeded"})
	require.Len(t, records, 1)
	assert.Equal(t, memory.PersonaArtemis, records[0].Persona)
}

func TestAuthorizeRateCheckFailureDenies(t *testing.T) {
	limiter := &scriptedLimiter{err: fmt.Errorf("coordinator down")}
	c := setupController(t, Options{Limiter: limiter})

	secret, _ := issue(t, c, memory.PersonaArtemis)

	// Access control fails closed when the limiter cannot answer.
	dec := c.Authorize(context.Background(), HashSecret(secret), OpRetrieve, "", "")
	assert.False(t, dec.OK)
	assert.Equal(t, "Rate limit exceeded", dec.Reason)
}

func TestAuthorizeTarget(t *testing.T) {
	c := setupController(t, Options{})

	_, artemis := issue(t, c, memory.PersonaArtemis)

	dec := c.AuthorizeTarget(artemis, OpRetrieve, memory.PersonaArtemis)
	assert.True(t, dec.OK)

	dec = c.AuthorizeTarget(artemis, OpRetrieve, memory.PersonaShared)
	assert.True(t, dec.OK)

	dec = c.AuthorizeTarget(artemis, OpRetrieve, memory.PersonaHestia)
	assert.False(t, dec.OK)
	assert.Equal(t, "Cross-persona access denied from artemis to hestia", dec.Reason)

	dec = c.AuthorizeTarget(nil, OpRetrieve, memory.PersonaShared)
	assert.False(t, dec.OK)
}

func TestRevoke(t *testing.T) {
	c := setupController(t, Options{})

	secret, _ := issue(t, c, memory.PersonaHestia)
	hash := HashSecret(secret)

	dec := c.Authorize(context.Background(), hash, OpRetrieve, "", "")
	require.True(t, dec.OK)

	assert.True(t, c.Revoke(hash))
	assert.False(t, c.Revoke(hash))

	dec = c.Authorize(context.Background(), hash, OpRetrieve, "", "")
	assert.Equal(t, "Invalid token", dec.Reason)
}

func TestPurgeExpired(t *testing.T) {
	c := setupController(t, Options{TokenTTL: time.Millisecond})

	issue(t, c, memory.PersonaAthena)
	issue(t, c, memory.PersonaBellona)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 2, c.PurgeExpired())
	assert.Equal(t, 0, c.PurgeExpired())
}

func TestStats(t *testing.T) {
	c := setupController(t, Options{})

	issue(t, c, memory.PersonaAthena)
	issue(t, c, memory.PersonaSeshat)

	stats := c.Stats()
	assert.Equal(t, 2, stats["active_tokens"])
	assert.Equal(t, 2, stats["audit_records"])
}
