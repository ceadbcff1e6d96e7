package rediskv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pantheon-ai/mnemo/isolation"
	"github.com/pantheon-ai/mnemo/memerr"
	"github.com/pantheon-ai/mnemo/memory"
	"github.com/pantheon-ai/mnemo/types"
)

// backendName identifies this driver in results, stats and errors.
const backendName = "fast_kv"

// Name returns the backend identifier.
func (s *Store) Name() string {
	return backendName
}

// Initialize verifies the connection is usable.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.base.Ping(ctx).Err(); err != nil {
		return memerr.New(backendName, "initialize", memerr.ErrCodeBackendUnavailable,
			"redis ping failed").WithCause(err)
	}
	return nil
}

// Store upserts an item into its persona namespace. The primary write and
// both index updates run in one transactional pipeline, so a failure
// leaves no partial index state. The key expiry is the kind's base TTL
// scaled by the persona profile.
func (s *Store) Store(ctx context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", memory.ErrInvalidItem)
	}
	if err := item.Validate(); err != nil {
		return err
	}

	client, profile := s.pool(item.Persona)

	data, err := json.Marshal(item)
	if err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeInternal,
			"failed to marshal item").WithCause(err)
	}

	indexKey := personaKey(item.Persona, item.Kind)

	// Upserts do not grow the namespace, so only fresh ids count
	// against the persona quota.
	_, err = client.ZScore(ctx, indexKey, item.ID).Result()
	if err != nil && err != redis.Nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			"failed to check index").WithCause(err)
	}
	if err == redis.Nil {
		if evictErr := s.enforceQuota(ctx, client, profile, item.Kind); evictErr != nil {
			return evictErr
		}
	}

	ttl := profile.ScaleTTL(s.ttlFor(item.Kind))

	pipe := client.TxPipeline()
	pipe.Set(ctx, memoryKey(item.ID), data, ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: item.Importance, Member: item.ID})
	pipe.SAdd(ctx, typeKey(item.Kind), item.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to write item %s", item.ID)).WithCause(err)
	}

	return nil
}

// enforceQuota keeps the persona namespace under its MaxItems cap by
// evicting the lowest-importance id of the kind being written. Items of
// other kinds are never evicted on this path.
func (s *Store) enforceQuota(ctx context.Context, client *redis.Client, profile *isolation.Profile, kind memory.Kind) error {
	if profile.MaxItems <= 0 {
		return nil
	}

	var total int64
	for _, k := range memory.Kinds() {
		n, err := client.ZCard(ctx, personaKey(profile.Persona, k)).Result()
		if err != nil {
			return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
				"failed to count namespace").WithCause(err)
		}
		total += n
	}

	if total < int64(profile.MaxItems) {
		return nil
	}

	indexKey := personaKey(profile.Persona, kind)
	victims, err := client.ZRange(ctx, indexKey, 0, 0).Result()
	if err != nil || len(victims) == 0 {
		return nil
	}

	victim := victims[0]
	pipe := client.TxPipeline()
	pipe.Del(ctx, memoryKey(victim))
	pipe.ZRem(ctx, indexKey, victim)
	pipe.SRem(ctx, typeKey(kind), victim)
	if _, err := pipe.Exec(ctx); err != nil {
		return memerr.New(backendName, "store", memerr.ErrCodeBackendUnavailable,
			"failed to evict over-quota item").WithCause(err)
	}

	s.logger.Debug("evicted item over persona quota",
		"persona", profile.Persona.String(),
		"kind", kind.String(),
		"id", victim,
		"max_items", profile.MaxItems)

	return nil
}

// Retrieve loads an item by id. Ids carry no persona, so the lookup
// probes each namespace in profile order until it finds the key.
func (s *Store) Retrieve(ctx context.Context, id string) (*memory.Item, error) {
	if id == "" {
		return nil, memory.ErrInvalidID
	}

	for _, profile := range s.resolver.Profiles() {
		client, _ := s.pool(profile.Persona)

		data, err := client.Get(ctx, memoryKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, memerr.New(backendName, "retrieve", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to read item %s", id)).WithCause(err)
		}

		var item memory.Item
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, memerr.New(backendName, "retrieve", memerr.ErrCodeInternal,
				fmt.Sprintf("corrupt payload for item %s", id)).WithCause(err)
		}
		return &item, nil
	}

	return nil, fmt.Errorf("%w: id %q", memory.ErrNotFound, id)
}

// Search walks the persona's importance index for each requested kind and
// hydrates the top entries. Scores are importance weights; query text is
// not matched here, the fast tier ranks by importance alone. Ids whose
// primary key has expired are purged from the indexes as they are seen.
func (s *Store) Search(ctx context.Context, q memory.Query, persona memory.Persona) ([]memory.Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	client, _ := s.pool(persona)

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = memory.Kinds()
	}

	min := "-inf"
	if q.MinScore > 0 {
		min = strconv.FormatFloat(q.MinScore, 'f', -1, 64)
	}

	var results []memory.Result
	for _, kind := range kinds {
		indexKey := personaKey(persona, kind)

		ids, err := client.ZRevRangeByScore(ctx, indexKey, &redis.ZRangeBy{
			Min:    min,
			Max:    "+inf",
			Offset: 0,
			Count:  int64(q.Limit),
		}).Result()
		if err != nil {
			return nil, memerr.New(backendName, "search", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to walk %s index", kind)).WithCause(err)
		}
		if len(ids) == 0 {
			continue
		}

		items, err := s.hydrate(ctx, client, persona, kind, ids)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if !q.Matches(item) {
				continue
			}
			results = append(results, memory.Result{
				Item:   *item,
				Score:  item.Importance,
				Source: backendName,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results, nil
}

// hydrate MGETs the given ids and unmarshals the live ones. Ids whose
// primary key is gone are removed from the kind indexes in one pipeline.
func (s *Store) hydrate(ctx context.Context, client *redis.Client, persona memory.Persona, kind memory.Kind, ids []string) ([]*memory.Item, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = memoryKey(id)
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, memerr.New(backendName, "search", memerr.ErrCodeBackendUnavailable,
			"failed to hydrate results").WithCause(err)
	}

	items := make([]*memory.Item, 0, len(values))
	var stale []string

	for i, value := range values {
		if value == nil {
			stale = append(stale, ids[i])
			continue
		}

		raw, ok := value.(string)
		if !ok {
			continue
		}

		var item memory.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			s.logger.Warn("skipping corrupt item payload",
				"id", ids[i],
				"error", err.Error())
			continue
		}
		items = append(items, &item)
	}

	if len(stale) > 0 {
		pipe := client.TxPipeline()
		for _, id := range stale {
			pipe.ZRem(ctx, personaKey(persona, kind), id)
			pipe.SRem(ctx, typeKey(kind), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("failed to purge stale index entries",
				"count", len(stale),
				"error", err.Error())
		}
	}

	return items, nil
}

// List returns every live item of a kind in a persona's namespace,
// ordered by descending importance. The lifecycle engine uses this to
// scan the working tier.
func (s *Store) List(ctx context.Context, persona memory.Persona, kind memory.Kind) ([]*memory.Item, error) {
	client, _ := s.pool(persona)

	ids, err := client.ZRevRange(ctx, personaKey(persona, kind), 0, -1).Result()
	if err != nil {
		return nil, memerr.New(backendName, "list", memerr.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to walk %s index", kind)).WithCause(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return s.hydrate(ctx, client, persona, kind, ids)
}

// Delete removes an item and its index entries. Like Retrieve it probes
// each namespace; deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return memory.ErrInvalidID
	}

	for _, profile := range s.resolver.Profiles() {
		client, _ := s.pool(profile.Persona)

		data, err := client.Get(ctx, memoryKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return memerr.New(backendName, "delete", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to read item %s", id)).WithCause(err)
		}

		pipe := client.TxPipeline()
		pipe.Del(ctx, memoryKey(id))

		var item memory.Item
		if err := json.Unmarshal(data, &item); err == nil {
			pipe.ZRem(ctx, personaKey(item.Persona, item.Kind), id)
			pipe.SRem(ctx, typeKey(item.Kind), id)
		} else {
			// Corrupt payload: sweep every index this namespace keeps.
			for _, kind := range memory.Kinds() {
				pipe.ZRem(ctx, personaKey(profile.Persona, kind), id)
				pipe.SRem(ctx, typeKey(kind), id)
			}
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return memerr.New(backendName, "delete", memerr.ErrCodeBackendUnavailable,
				fmt.Sprintf("failed to delete item %s", id)).WithCause(err)
		}
		return nil
	}

	return nil
}

// Stats reports per-namespace key counts and aggregate kind cardinality
// for the pools opened so far.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	personaByDB := make(map[int]string)
	for _, profile := range s.resolver.Profiles() {
		personaByDB[profile.NamespaceID] = profile.Persona.String()
	}

	namespaces := make(map[string]int64)
	kinds := make(map[string]int64)

	for db, client := range s.openPools() {
		size, err := client.DBSize(ctx).Result()
		if err != nil {
			return nil, memerr.New(backendName, "stats", memerr.ErrCodeBackendUnavailable,
				"failed to read namespace size").WithCause(err)
		}

		name := personaByDB[db]
		if name == "" {
			name = strconv.Itoa(db)
		}
		namespaces[name] = size

		for _, kind := range memory.Kinds() {
			n, err := client.SCard(ctx, typeKey(kind)).Result()
			if err != nil {
				return nil, memerr.New(backendName, "stats", memerr.ErrCodeBackendUnavailable,
					"failed to read kind cardinality").WithCause(err)
			}
			kinds[kind.String()] += n
		}
	}

	return map[string]any{
		"backend":    backendName,
		"namespaces": namespaces,
		"kinds":      kinds,
	}, nil
}

// Health pings the service connection.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	if err := s.base.Ping(ctx).Err(); err != nil {
		return types.NewUnhealthyStatus("redis ping failed", map[string]any{
			"addr":  s.opts.Addr,
			"error": err.Error(),
		})
	}
	return types.NewHealthyStatus("redis responding").WithDetail("addr", s.opts.Addr)
}

// Close closes the service connection and every namespace pool.
func (s *Store) Close() error {
	var firstErr error

	s.mu.Lock()
	pools := s.pools
	s.pools = make(map[int]*redis.Client)
	s.mu.Unlock()

	for _, client := range pools {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.base.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
