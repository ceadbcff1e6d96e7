package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/pantheon-ai/mnemo/memory"
)

// ErrHeldElsewhere is returned when another instance already holds the
// writer lease for a persona.
var ErrHeldElsewhere = errors.New("lease: held by another instance")

// Config configures the lease manager's etcd connection.
type Config struct {
	// Endpoints lists the etcd cluster endpoints (host:port).
	Endpoints []string

	// Namespace prefixes every lease key. Defaults to "mnemo".
	Namespace string

	// TTL is the lease time-to-live in seconds. Defaults to 30. A lease
	// not renewed within the TTL expires and the persona becomes
	// claimable by another instance.
	TTL int64

	// TLS configures transport security. Nil means plaintext.
	TLS *TLSConfig

	// Logger receives lease events. Defaults to a JSON logger on stdout.
	Logger *slog.Logger
}

// Manager makes the at-most-one-instance-per-persona contract
// operational: each persona's lifecycle writer holds an etcd lease on
// /{namespace}/writer/{persona}, renewed every TTL/3 by a background
// goroutine. An instance that dies stops renewing, the lease expires,
// and another instance can claim the persona.
//
// Example usage:
//
//	mgr, err := lease.NewManager(lease.Config{
//	    Endpoints: []string{"localhost:2379"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	if err := mgr.Acquire(ctx, memory.PersonaAthena); err != nil {
//	    // another instance owns athena's lifecycle
//	}
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	client     *clientv3.Client
	namespace  string
	ttl        int64
	instanceID string
	logger     *slog.Logger

	mu         sync.Mutex
	leases     map[memory.Persona]clientv3.LeaseID
	cancelFns  map[memory.Persona]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewManager connects to etcd and verifies connectivity. The returned
// manager holds no leases until Acquire is called.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("lease endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "mnemo"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Verify connectivity with a quick read.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Manager{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		instanceID: uuid.New().String(),
		logger:     logger.With("component", "lease"),
		leases:     make(map[memory.Persona]clientv3.LeaseID),
		cancelFns:  make(map[memory.Persona]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewManagerFromEnv creates a manager from the MNEMO_ETCD_ENDPOINTS
// environment variable (comma-separated endpoints).
//
// When the variable is unset this returns (nil, nil): single-instance
// mode, where lifecycle loops run unconditionally. A nil *Manager is
// safe to use; Holding reports true for every persona.
func NewManagerFromEnv() (*Manager, error) {
	endpoints := os.Getenv("MNEMO_ETCD_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}

	endpointList := strings.Split(endpoints, ",")
	for i, ep := range endpointList {
		endpointList[i] = strings.TrimSpace(ep)
	}

	cfg := Config{Endpoints: endpointList}
	if ns := os.Getenv("MNEMO_ETCD_NAMESPACE"); ns != "" {
		cfg.Namespace = ns
	}
	return NewManager(cfg)
}

// Acquire claims the writer lease for a persona. The claim is atomic: a
// transaction writes the key only when no live lease holds it, so two
// instances cannot both win. Re-acquiring a persona this instance
// already holds is a no-op.
//
// Returns ErrHeldElsewhere when another instance owns the persona.
func (m *Manager) Acquire(ctx context.Context, persona memory.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("lease manager is closed")
	}
	if _, held := m.leases[persona]; held {
		return nil
	}

	leaseResp, err := m.client.Grant(ctx, m.ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	key := m.key(persona)
	txn, err := m.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, m.instanceID, clientv3.WithLease(leaseResp.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to claim lease: %w", err)
	}

	if !txn.Succeeded {
		// Lost the race; drop the unused lease.
		m.client.Revoke(ctx, leaseResp.ID)

		holder := "unknown"
		if kvs := txn.Responses[0].GetResponseRange().Kvs; len(kvs) > 0 {
			holder = string(kvs[0].Value)
		}
		if holder == m.instanceID {
			// A previous incarnation of this instance; its lease will
			// expire shortly, so treat it as contention for now.
			m.logger.Warn("stale lease from a previous run", "persona", persona)
		}
		return fmt.Errorf("%w: persona %s held by %s", ErrHeldElsewhere, persona, holder)
	}

	m.leases[persona] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	m.cancelFns[persona] = cancel

	m.wg.Add(1)
	go m.keepalive(keepaliveCtx, leaseResp.ID, persona)

	m.logger.Info("writer lease acquired", "persona", persona, "ttl", m.ttl)
	return nil
}

// Release revokes the writer lease for a persona. Releasing a persona
// this instance does not hold is a no-op.
func (m *Manager) Release(ctx context.Context, persona memory.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("lease manager is closed")
	}

	if cancel, ok := m.cancelFns[persona]; ok {
		cancel()
		delete(m.cancelFns, persona)
	}

	leaseID, ok := m.leases[persona]
	if !ok {
		return nil
	}
	delete(m.leases, persona)

	if _, err := m.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	m.logger.Info("writer lease released", "persona", persona)
	return nil
}

// Holding reports whether this instance currently owns the persona's
// writer lease. A nil manager reports true for every persona, which is
// the single-instance mode NewManagerFromEnv falls back to.
func (m *Manager) Holding(persona memory.Persona) bool {
	if m == nil {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.leases[persona]
	return held
}

// Close revokes every held lease and stops the keepalive goroutines.
// Close is idempotent.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	for _, cancel := range m.cancelFns {
		cancel()
	}
	m.cancelFns = make(map[memory.Persona]context.CancelFunc)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	for persona, leaseID := range m.leases {
		if _, err := m.client.Revoke(ctx, leaseID); err != nil {
			m.logger.Warn("failed to revoke lease on close", "persona", persona, "error", err)
		}
	}
	cancel()
	m.leases = make(map[memory.Persona]clientv3.LeaseID)

	close(m.closedChan)
	m.mu.Unlock()

	m.wg.Wait()
	return m.client.Close()
}

// keepalive renews the lease every TTL/3 seconds. It stops when the
// persona is released, the manager closes, or the lease becomes invalid
// (in which case the persona is dropped from the held set so the
// lifecycle gate closes).
func (m *Manager) keepalive(ctx context.Context, leaseID clientv3.LeaseID, persona memory.Persona) {
	defer m.wg.Done()

	interval := time.Duration(m.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closedChan:
			return
		case <-ticker.C:
			if _, err := m.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				m.logger.Warn("lease renewal failed, dropping persona",
					"persona", persona, "error", err)
				m.mu.Lock()
				delete(m.leases, persona)
				delete(m.cancelFns, persona)
				m.mu.Unlock()
				return
			}
		}
	}
}

// key builds the etcd key for a persona's writer lease.
//
// Format: /namespace/writer/persona
func (m *Manager) key(persona memory.Persona) string {
	return fmt.Sprintf("/%s/writer/%s", m.namespace, persona)
}
