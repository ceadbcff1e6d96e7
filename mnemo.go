package mnemo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pantheon-ai/mnemo/access"
	"github.com/pantheon-ai/mnemo/config"
	"github.com/pantheon-ai/mnemo/durable"
	"github.com/pantheon-ai/mnemo/health"
	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/lease"
	"github.com/pantheon-ai/mnemo/lifecycle"
	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/ratelimit"
	"github.com/pantheon-ai/mnemo/rediskv"
	"github.com/pantheon-ai/mnemo/router"
	"github.com/pantheon-ai/mnemo/types"
	"github.com/pantheon-ai/mnemo/vector"
)

const component = "service"

// lister is the enumeration surface every storage driver exposes on top
// of memory.Backend. List serves the lifecycle sweeps.
type lister interface {
	List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error)
}

// Service is the memory service facade: tiered persona-scoped storage
// behind token authentication, rate limiting, and a background
// lifecycle. Construct it with New and release it with Close.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *serviceMetrics
	resolver *isolation.Resolver

	fast    memory.Backend
	vec     memory.Backend
	durable memory.Backend

	router  *router.Router
	access  *access.Controller
	limiter ratelimit.Limiter
	engine  *lifecycle.Engine
	leases  *lease.Manager

	authEnabled bool
	maxContent  int

	closeOnce sync.Once
	closeErr  error
}

// New builds the service from its configuration: storage drivers,
// router, access controller, rate limiter, and the lifecycle engine,
// already started. A driver that fails to come up is routed around; the
// durable store alone is required.
//
// Example:
//
//	cfg, err := config.Load("/etc/mnemo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := mnemo.New(cfg, mnemo.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sc := &serviceConfig{}
	for _, opt := range opts {
		opt(sc)
	}

	logger := sc.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var metrics *serviceMetrics
	if sc.meterProvider != nil {
		var err error
		if metrics, err = newServiceMetrics(sc.meterProvider); err != nil {
			return nil, err
		}
	}

	resolver := isolation.NewResolver(isolation.Options{
		Logger:     logger,
		Production: cfg.Production,
	})

	s := &Service{
		cfg:         cfg,
		logger:      logger.With("component", component),
		tracer:      sc.tracer,
		metrics:     metrics,
		resolver:    resolver,
		leases:      sc.leases,
		authEnabled: cfg.GetAuthEnabled(),
		maxContent:  cfg.GetMaxContentBytes(),
	}

	if err := s.buildBackends(cfg, sc, resolver, logger); err != nil {
		return nil, err
	}
	if err := s.buildLimiter(cfg, sc, logger); err != nil {
		return nil, err
	}

	s.access = access.NewController(access.Options{
		Limiter:  s.limiter,
		TokenTTL: cfg.GetTokenTTL(),
		Logger:   logger,
	})

	rt, err := router.New(router.Options{
		Fast:      s.fast,
		Vector:    s.vec,
		Durable:   s.durable,
		CacheSize: cfg.GetCacheSize(),
		OnFailure: s.access.RecordFailure,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	s.router = rt

	if err := s.buildLifecycle(cfg, resolver, logger); err != nil {
		return nil, err
	}

	s.logger.Info("memory service ready",
		"fast", s.fast != nil,
		"vector", s.vec != nil,
		"auth_enabled", s.authEnabled,
		"production", cfg.Production)
	return s, nil
}

// buildBackends constructs and initializes the storage drivers. The
// fast and vector tiers are optional: a driver that cannot come up is
// logged and dropped, and the router routes around it. The durable
// store must come up.
func (s *Service) buildBackends(cfg *config.Config, sc *serviceConfig, resolver *isolation.Resolver, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sc.backendsSet {
		s.fast = s.initTier(ctx, sc.fast)
		s.vec = s.initTier(ctx, sc.vec)
		s.durable = sc.durable
	} else {
		if fast, err := rediskv.New(rediskv.Options{
			URL:         cfg.GetRedisURL(),
			WorkingTTL:  cfg.TTL.GetWorking(),
			EpisodicTTL: cfg.TTL.GetEpisodic(),
			CacheTTL:    cfg.TTL.GetCache(),
			Resolver:    resolver,
			Logger:      logger,
		}); err != nil {
			logger.Warn("fast tier unavailable, routing around it", "error", err)
		} else {
			s.fast = s.initTier(ctx, fast)
		}

		embedder := sc.embedder
		if embedder == nil {
			embedder = vector.NewHashEmbedder(cfg.GetEmbeddingDim())
		}
		if vec, err := vector.New(vector.Options{
			Path:     cfg.GetVectorPath(),
			Embedder: embedder,
			Logger:   logger,
		}); err != nil {
			logger.Warn("vector tier unavailable, routing around it", "error", err)
		} else {
			s.vec = s.initTier(ctx, vec)
		}

		dur, err := durable.New(durable.Options{
			Path:   cfg.GetDurablePath(),
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open durable store: %w", err)
		}
		s.durable = dur
	}

	if s.durable != nil {
		if err := s.durable.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize durable store: %w", err)
		}
	}
	if s.fast == nil && s.vec == nil && s.durable == nil {
		return fmt.Errorf("no storage tier available")
	}
	return nil
}

// initTier initializes one optional tier, dropping it on failure.
func (s *Service) initTier(ctx context.Context, b memory.Backend) memory.Backend {
	if b == nil {
		return nil
	}
	if err := b.Initialize(ctx); err != nil {
		s.logger.Warn("tier failed to initialize, routing around it",
			"backend", b.Name(), "error", err)
		b.Close()
		return nil
	}
	return b
}

// buildLimiter wires the distributed rate limiter: the Redis sliding
// window coordinated through the same Redis the fast tier uses, with
// the local fallback taking over when Redis is unreachable.
func (s *Service) buildLimiter(cfg *config.Config, sc *serviceConfig, logger *slog.Logger) error {
	if sc.limiter != nil {
		s.limiter = sc.limiter
		return nil
	}

	var rl *ratelimit.RedisLimiter
	if r, err := ratelimit.NewRedis(ratelimit.RedisOptions{
		URL:    cfg.GetRedisURL(),
		Limit:  cfg.RateLimit.GetLimit(),
		Window: cfg.RateLimit.GetWindow(),
		Logger: logger,
	}); err != nil {
		logger.Warn("rate limit coordinator unavailable, starting local", "error", err)
	} else {
		rl = r
	}

	s.limiter = ratelimit.NewCoordinator(ratelimit.CoordinatorOptions{
		Redis:  rl,
		Limit:  cfg.RateLimit.GetLimit(),
		Window: cfg.RateLimit.GetWindow(),
		Logger: logger,
	})
	return nil
}

// buildLifecycle wires the consolidation and pruning engine. The
// background sweeps start unless the configuration disables them;
// ConsolidateNow and PruneNow work either way.
func (s *Service) buildLifecycle(cfg *config.Config, resolver *isolation.Resolver, logger *slog.Logger) error {
	opts := lifecycle.Options{
		Router:                s.router,
		Resolver:              resolver,
		ConsolidationInterval: cfg.Lifecycle.GetConsolidationInterval(),
		PruneInterval:         cfg.Lifecycle.GetPruneInterval(),
		Logger:                logger,
		OnConsolidated:        s.metrics.recordConsolidated,
		OnPruned:              s.metrics.recordPruned,
	}

	// Working memory is scanned where it lives: the fast tier, or the
	// durable store when the fast tier is down. Only the fast tier
	// needs explicit purging of promoted copies; a durable promotion
	// replaces the row in place.
	if s.fast != nil {
		if w, ok := s.fast.(lister); ok {
			opts.Working = w
			opts.WorkingPurge = s.fast
		}
	}
	if opts.Working == nil {
		w, ok := s.durable.(lister)
		if !ok {
			// No scannable working tier; the TTLs still bound working
			// memory, so the engine simply stays off.
			return nil
		}
		opts.Working = w
	}

	if e, ok := s.durable.(lister); ok {
		opts.Episodic = e
	}
	if s.vec != nil {
		if sem, ok := s.vec.(lister); ok {
			opts.Semantic = sem
		}
	}
	if opts.Semantic == nil {
		if sem, ok := s.durable.(lister); ok {
			opts.Semantic = sem
		}
	}
	if s.leases != nil {
		opts.Gate = s.leases
	}

	engine, err := lifecycle.New(opts)
	if err != nil {
		return err
	}
	s.engine = engine
	if !cfg.Lifecycle.IsDisabled() {
		s.engine.Start()
	}
	return nil
}

// Authenticate issues an access token for a persona. The returned
// secret is shown exactly once; present it on every subsequent request.
// Credentials are checked by the configured verifier; persona names are
// matched case-insensitively against the closed set.
func (s *Service) Authenticate(ctx context.Context, persona, credentials string) (string, *access.Token, error) {
	ctx, span := s.startSpan(ctx, "mnemo.Authenticate")
	defer span.End()

	p, known := memory.ParsePersona(persona)
	if !known {
		return "", nil, memerr.New(component, "authenticate", memerr.ErrCodeAuthDenied,
			fmt.Sprintf("unknown persona %q", persona))
	}
	return s.access.Authenticate(ctx, p, credentials)
}

// RememberRequest describes one Remember call.
type RememberRequest struct {
	// Token is the secret returned by Authenticate. Ignored when
	// authentication is disabled.
	Token string

	// Persona is the namespace the item is stored under. Optional when
	// authenticated: it defaults to the token's persona.
	Persona memory.Persona

	// Kind classifies the item. Empty means the classifier infers it
	// from the content, falling back to working memory.
	Kind memory.Kind

	// Content is the payload.
	Content memory.Content

	// Importance weighs the item for archival and retention, in [0,1].
	Importance float64

	// Tags and Metadata are attached to the item verbatim.
	Tags     []string
	Metadata map[string]any
}

// Remember stores one item. The write is routed by kind across the
// storage tiers; the item is returned with its assigned id.
func (s *Service) Remember(ctx context.Context, req RememberRequest) (*memory.Item, error) {
	ctx, span := s.startSpan(ctx, "mnemo.Remember")
	defer span.End()

	kind := req.Kind
	if kind != "" {
		if err := kind.Validate(); err != nil {
			return nil, memerr.New(component, "remember", memerr.ErrCodeValidation,
				"invalid kind").WithCause(err)
		}
	}

	token, persona, err := s.authorize(ctx, req.Token, access.OpStore, req.Persona, kind)
	if err != nil {
		return nil, err
	}
	if req.Persona != "" {
		persona = req.Persona
	}
	if persona == "" {
		return nil, memerr.New(component, "remember", memerr.ErrCodeValidation,
			"persona is required")
	}

	if req.Importance < 0 || req.Importance > 1 {
		return nil, memerr.New(component, "remember", memerr.ErrCodeValidation,
			fmt.Sprintf("importance %v outside [0,1]", req.Importance))
	}
	if req.Content.IsEmpty() {
		return nil, memerr.New(component, "remember", memerr.ErrCodeValidation,
			"content cannot be empty")
	}
	if size := contentSize(req.Content); size > s.maxContent {
		return nil, memerr.New(component, "remember", memerr.ErrCodeValidation,
			fmt.Sprintf("content size %d exceeds limit %d", size, s.maxContent))
	}

	if kind == "" {
		kind = lifecycle.InferAtCreate(req.Content.Flatten())
		if token != nil && !token.AllowsKind(kind) {
			return nil, memerr.New(component, "remember", memerr.ErrCodeAuthDenied,
				fmt.Sprintf("memory kind %s not allowed", kind))
		}
	}

	now := time.Now().UTC()
	item := &memory.Item{
		ID:         uuid.New().String(),
		Persona:    persona,
		Kind:       kind,
		Content:    req.Content,
		Importance: req.Importance,
		CreatedAt:  now,
		LastAccess: now,
		Tags:       req.Tags,
		Metadata:   req.Metadata,
	}

	if err := s.router.Store(ctx, item); err != nil {
		return nil, err
	}

	s.metrics.recordRemember(ctx, persona, kind)
	s.logger.Debug("item remembered", "id", item.ID, "persona", persona, "kind", kind)
	return item, nil
}

// RecallRequest describes one Recall call.
type RecallRequest struct {
	// Token is the secret returned by Authenticate. Ignored when
	// authentication is disabled.
	Token string

	// Persona is the namespace searched. Optional when authenticated:
	// it defaults to the token's persona.
	Persona memory.Persona

	// Query is the free-text query.
	Query string

	// Semantic selects the knowledge kinds (semantic and procedural)
	// instead of the experience kinds (episodic and working).
	Semantic bool

	// Kinds, when set, overrides the Semantic flag with an explicit
	// kind filter.
	Kinds []memory.Kind

	// Tags restricts results to items carrying every listed tag.
	Tags []string

	// Limit caps the result count. Zero means the default.
	Limit int

	// MinScore drops results scoring below the threshold.
	MinScore float64
}

// Recall searches a persona's memory. The semantic flag routes the
// query to the vector tier's knowledge kinds; otherwise the experience
// kinds are searched by recency and importance.
func (s *Service) Recall(ctx context.Context, req RecallRequest) ([]memory.Result, error) {
	ctx, span := s.startSpan(ctx, "mnemo.Recall")
	defer span.End()

	_, persona, err := s.authorize(ctx, req.Token, access.OpSearch, req.Persona, "")
	if err != nil {
		return nil, err
	}
	if req.Persona != "" {
		persona = req.Persona
	}
	if persona == "" {
		return nil, memerr.New(component, "recall", memerr.ErrCodeValidation,
			"persona is required")
	}

	kinds := req.Kinds
	if len(kinds) == 0 {
		if req.Semantic {
			kinds = []memory.Kind{memory.KindSemantic, memory.KindProcedural}
		} else {
			kinds = []memory.Kind{memory.KindEpisodic, memory.KindWorking}
		}
	}

	q := memory.Query{
		Text:     req.Query,
		Kinds:    kinds,
		Tags:     req.Tags,
		Limit:    req.Limit,
		MinScore: req.MinScore,
	}

	start := time.Now()
	results, err := s.router.Search(ctx, q, persona)
	if err != nil {
		return nil, err
	}

	s.metrics.recordRecall(ctx, persona, time.Since(start), len(results))
	return results, nil
}

// RetrieveByID fetches one item by id. Access counters are bumped on
// success. Fetching another persona's item requires read access to that
// persona under the access matrix.
func (s *Service) RetrieveByID(ctx context.Context, token, id string) (*memory.Item, error) {
	ctx, span := s.startSpan(ctx, "mnemo.RetrieveByID")
	defer span.End()

	tok, _, err := s.authorize(ctx, token, access.OpRetrieve, "", "")
	if err != nil {
		return nil, err
	}

	item, err := s.router.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}

	// The owner is only known after the fetch; the matrix check runs
	// against the item's persona before anything is returned.
	if s.authEnabled {
		if dec := s.access.AuthorizeTarget(tok, access.OpRetrieve, item.Persona); !dec.OK {
			return nil, memerr.New(component, "retrieve", memerr.ErrCodeAuthDenied, dec.Reason)
		}
	}
	return item, nil
}

// Delete destroys one item in every tier. Deleting another persona's
// item requires an admin token. Deletion is idempotent: a missing id
// reports true with no error.
func (s *Service) Delete(ctx context.Context, token, id string) (bool, error) {
	ctx, span := s.startSpan(ctx, "mnemo.Delete")
	defer span.End()

	tok, _, err := s.authorize(ctx, token, access.OpDelete, "", "")
	if err != nil {
		return false, err
	}

	item, err := s.router.Retrieve(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return true, nil
		}
		return false, err
	}

	if s.authEnabled {
		if dec := s.access.AuthorizeTarget(tok, access.OpDelete, item.Persona); !dec.OK {
			return false, memerr.New(component, "delete", memerr.ErrCodeAuthDenied, dec.Reason)
		}
	}

	if err := s.router.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ShareRequest describes one Share call.
type ShareRequest struct {
	// Token is the secret returned by Authenticate. Ignored when
	// authentication is disabled.
	Token string

	// From is the source persona searched for items to copy. Optional
	// when authenticated: it defaults to the token's persona.
	From memory.Persona

	// To is the persona receiving the copies.
	To memory.Persona

	// Query, Kinds, Tags and Limit select the items to copy, with the
	// same semantics as Recall.
	Query string
	Kinds []memory.Kind
	Tags  []string
	Limit int
}

// Share copies matching items from one persona to another. Each copy is
// a new item owned by the target, stamped with the source persona and
// share time in its metadata, with fresh access counters. The copy
// count is returned.
func (s *Service) Share(ctx context.Context, req ShareRequest) (int, error) {
	ctx, span := s.startSpan(ctx, "mnemo.Share")
	defer span.End()

	tok, persona, err := s.authorize(ctx, req.Token, access.OpSearch, req.From, "")
	if err != nil {
		return 0, err
	}
	from := req.From
	if from == "" {
		from = persona
	}
	if from == "" || req.To == "" {
		return 0, memerr.New(component, "share", memerr.ErrCodeValidation,
			"source and target personas are required")
	}
	if err := req.To.Validate(); err != nil {
		return 0, memerr.New(component, "share", memerr.ErrCodeValidation,
			"invalid target persona").WithCause(err)
	}

	// The share itself is gated by the matrix; the rate budget was
	// already charged by the search authorization.
	if s.authEnabled {
		if dec := s.access.AuthorizeTarget(tok, access.OpShare, req.To); !dec.OK {
			return 0, memerr.New(component, "share", memerr.ErrCodeAuthDenied, dec.Reason)
		}
	}

	results, err := s.router.Search(ctx, memory.Query{
		Text:  req.Query,
		Kinds: req.Kinds,
		Tags:  req.Tags,
		Limit: req.Limit,
	}, from)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	shared := 0
	for i := range results {
		clone := results[i].Item.Clone()
		clone.ID = uuid.New().String()
		clone.Persona = req.To
		clone.CreatedAt = now
		clone.LastAccess = now
		clone.AccessCount = 0
		clone.SetMetadata(memory.MetaSharedFrom, from.String())
		clone.SetMetadata(memory.MetaSharedAt, now.Format(time.RFC3339))

		if err := s.router.Store(ctx, clone); err != nil {
			return shared, err
		}
		shared++
	}

	s.logger.Info("items shared", "from", from, "to", req.To, "count", shared)
	return shared, nil
}

// List enumerates a persona's items of one kind across the tiers that
// hold it, newest first, deduplicated by id and truncated to limit.
func (s *Service) List(ctx context.Context, token string, persona memory.Persona, kind memory.Kind, limit int) ([]*memory.Item, error) {
	ctx, span := s.startSpan(ctx, "mnemo.List")
	defer span.End()

	if err := kind.Validate(); err != nil {
		return nil, memerr.New(component, "list", memerr.ErrCodeValidation,
			"invalid kind").WithCause(err)
	}

	_, tokenPersona, err := s.authorize(ctx, token, access.OpList, persona, kind)
	if err != nil {
		return nil, err
	}
	if persona == "" {
		persona = tokenPersona
	}
	if persona == "" {
		return nil, memerr.New(component, "list", memerr.ErrCodeValidation,
			"persona is required")
	}
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}

	seen := make(map[string]struct{})
	var merged []*memory.Item
	for _, b := range []memory.Backend{s.fast, s.vec, s.durable} {
		src, ok := b.(lister)
		if !ok {
			continue
		}
		items, err := src.List(ctx, persona, kind)
		if err != nil {
			s.logger.Warn("list scan failed", "backend", b.Name(), "error", err)
			continue
		}
		for _, item := range items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			merged = append(merged, item)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].LastAccess.After(merged[j].LastAccess)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Revoke invalidates a previously issued token.
func (s *Service) Revoke(token string) bool {
	return s.access.Revoke(access.HashSecret(token))
}

// ConsolidateNow runs one consolidation sweep for a persona
// immediately, outside the background schedule, and returns how many
// items were promoted.
func (s *Service) ConsolidateNow(ctx context.Context, persona memory.Persona) (int, error) {
	if s.engine == nil {
		return 0, memerr.New(component, "consolidate", memerr.ErrCodeInternal,
			"no lifecycle engine: no scannable working tier")
	}
	return s.engine.ConsolidateOnce(ctx, persona)
}

// PruneNow runs one pruning sweep for a persona immediately and returns
// how many items were destroyed.
func (s *Service) PruneNow(ctx context.Context, persona memory.Persona) (int, error) {
	if s.engine == nil {
		return 0, memerr.New(component, "prune", memerr.ErrCodeInternal,
			"no lifecycle engine: no scannable working tier")
	}
	return s.engine.PruneOnce(ctx, persona)
}

// Stats aggregates per-tier statistics, the router cache counters, and
// the access controller counters. Stats is exempt from rate limiting.
func (s *Service) Stats(ctx context.Context) map[string]any {
	stats := s.router.Stats(ctx)
	stats["access"] = s.access.Stats()
	if c, ok := s.limiter.(*ratelimit.Coordinator); ok {
		stats["rate_limit_mode"] = c.Mode()
	}
	return stats
}

// Health aggregates driver health into one status: a down durable store
// makes the service unhealthy, any other impaired component degrades
// it. The per-backend statuses land in the details. Health is exempt
// from rate limiting.
func (s *Service) Health(ctx context.Context) types.HealthStatus {
	statuses := s.router.Health(ctx)
	if c, ok := s.limiter.(*ratelimit.Coordinator); ok {
		statuses["rate_limit"] = c.Health(ctx)
	}
	return health.AggregateTiers(statuses, "durable")
}

// Audit exposes the audit log for admin queries.
func (s *Service) Audit() *access.AuditLog {
	return s.access.Audit()
}

// Close stops the lifecycle engine, releases any writer leases, and
// closes the storage tiers and the rate limiter. Close is idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.engine != nil {
			if err := s.engine.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.leases != nil {
			if err := s.leases.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if err := s.router.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		if c, ok := s.limiter.(*ratelimit.Coordinator); ok {
			if err := c.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		s.logger.Info("memory service stopped")
	})
	return s.closeErr
}

// authorize runs the security envelope for one operation: token
// authentication and the access checks when authentication is enabled,
// the bare rate budget otherwise. It returns the authenticated token
// (nil in bypass mode) and the token's persona.
func (s *Service) authorize(ctx context.Context, secret, op string, target memory.Persona, kind memory.Kind) (*access.Token, memory.Persona, error) {
	if !s.authEnabled {
		persona := target
		if persona == "" {
			persona = memory.PersonaShared
		}
		if s.limiter != nil {
			res, err := s.limiter.Allow(ctx, persona.String())
			if err != nil {
				// Fail closed: an unanswerable limiter denies.
				return nil, "", memerr.New(component, op, memerr.ErrCodeRateLimited,
					"rate check failed").WithCause(err)
			}
			if !res.Allowed {
				s.metrics.recordDenied(ctx, persona)
				return nil, "", rateLimitedError(op, res)
			}
		}
		return nil, persona, nil
	}

	dec := s.access.Authorize(ctx, access.HashSecret(secret), op, target, kind)
	if dec.OK {
		return dec.Token, dec.Token.Persona, nil
	}

	if dec.Rate != nil && !dec.Rate.Allowed {
		persona := memory.PersonaShared
		if dec.Token != nil {
			persona = dec.Token.Persona
		}
		s.metrics.recordDenied(ctx, persona)
		return nil, "", rateLimitedError(op, *dec.Rate)
	}
	if dec.Reason == "Rate limit exceeded" {
		return nil, "", memerr.New(component, op, memerr.ErrCodeRateLimited, dec.Reason)
	}
	return nil, "", memerr.New(component, op, memerr.ErrCodeAuthDenied, dec.Reason)
}

// rateLimitedError wraps a limiter denial with its budget details so
// transports can render the X-RateLimit headers.
func rateLimitedError(op string, res ratelimit.Result) error {
	details := make(map[string]any, 5)
	details["retry_after"] = res.RetryAfter.String()
	for k, v := range res.Headers() {
		details[k] = v
	}
	return memerr.New(component, op, memerr.ErrCodeRateLimited,
		"Rate limit exceeded").WithDetails(details)
}

// startSpan opens a tracing span when a tracer is configured.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// contentSize is the serialized size the content cap is enforced
// against.
func contentSize(c memory.Content) int {
	data, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(data)
}
