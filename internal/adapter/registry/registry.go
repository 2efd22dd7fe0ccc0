// Package registry implements the remote registry port on a key-value
// backend (NATS JetStream KV in production), with a coalescing buffered
// write path, a circuit breaker, a background health probe, and an
// in-process read cache.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/adapter/otel"
	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/cache"
	"github.com/agentdock/agentdock/internal/resilience"
)

// Backend is the key-value surface the adapter writes through.
type Backend interface {
	cache.Cache
	cache.Lister
}

// Adapter implements registry.Registry. Writes never block the caller: they
// land in a pending map flushed once per coalesce window, one write per
// unique key, last value wins. While the breaker judges the backend
// unavailable, flushes drop their writes silently.
type Adapter struct {
	backend Backend
	l1      cache.Cache // optional read cache
	breaker *resilience.Breaker
	cfg     config.Registry
	metrics *otel.Metrics // optional

	mu       sync.Mutex
	pending  map[string][]byte
	deletes  map[string]struct{}
	flushing bool

	onlineMu sync.Mutex // serializes online-set read-modify-write

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the adapter and starts its health probe loop.
func New(backend Backend, l1 cache.Cache, cfg config.Registry, breakerCfg config.Breaker, metrics *otel.Metrics) *Adapter {
	a := &Adapter{
		backend: backend,
		l1:      l1,
		breaker: resilience.NewBreaker(breakerCfg.MaxFailures, breakerCfg.Timeout),
		cfg:     cfg,
		metrics: metrics,
		pending: make(map[string][]byte),
		deletes: make(map[string]struct{}),
		stop:    make(chan struct{}),
	}
	if metrics != nil {
		a.breaker.OnOpen(func() {
			metrics.BreakerOpened.Add(context.Background(), 1)
		})
	}
	a.wg.Add(1)
	go a.probeLoop()
	return a
}

// --- keys ---

func (a *Adapter) agentKey(userID, agentID string) string {
	return a.cfg.Namespace + "." + userID + ".agents." + agentID
}

func (a *Adapter) agentPrefix(userID string) string {
	return a.cfg.Namespace + "." + userID + ".agents."
}

func (a *Adapter) onlineKey() string {
	return a.cfg.Namespace + ".online_agents"
}

func (a *Adapter) probeKey() string {
	return a.cfg.Namespace + ".probe"
}

// --- write path ---

// PutAgent enqueues a coalesced write of the full record. The local read
// cache is updated immediately so this device sees its own writes.
func (a *Adapter) PutAgent(ctx context.Context, ag *agent.Agent) {
	payload, err := json.Marshal(ag)
	if err != nil {
		slog.Error("registry marshal failed", "agent_id", ag.ID, "error", err)
		return
	}
	key := a.agentKey(ag.UserID, ag.ID)
	if a.l1 != nil {
		_ = a.l1.Set(ctx, key, payload, a.cfg.L1TTL)
	}
	a.enqueue(key, payload)
}

// RemoveAgent deletes the record and drops the id from the online set.
func (a *Adapter) RemoveAgent(ctx context.Context, userID, agentID string) {
	key := a.agentKey(userID, agentID)
	if a.l1 != nil {
		_ = a.l1.Delete(ctx, key)
	}

	a.mu.Lock()
	delete(a.pending, key)
	a.deletes[key] = struct{}{}
	a.scheduleFlushLocked()
	a.mu.Unlock()

	a.MarkOffline(ctx, agentID)
}

// Heartbeat refreshes publish_info.last_heartbeat on the registry record.
// A missing or unreadable record is skipped; the next full put repairs it.
func (a *Adapter) Heartbeat(ctx context.Context, userID, agentID string, at time.Time) {
	ag, ok := a.GetAgent(ctx, userID, agentID)
	if !ok {
		slog.Debug("heartbeat skipped, record absent", "agent_id", agentID)
		return
	}
	if ag.PublishInfo == nil {
		ag.PublishInfo = &agent.PublishInfo{}
	}
	ag.PublishInfo.LastHeartbeat = at.UTC()
	a.PutAgent(ctx, ag)
	if a.metrics != nil {
		a.metrics.Heartbeats.Add(ctx, 1)
	}
}

func (a *Adapter) enqueue(key string, payload []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.pending[key]; exists && a.metrics != nil {
		a.metrics.RegistryWritesCoalesced.Add(context.Background(), 1)
	}
	a.pending[key] = payload
	delete(a.deletes, key)
	a.scheduleFlushLocked()
}

// scheduleFlushLocked arms the coalesce timer if no flush is in flight.
// Must be called with a.mu held.
func (a *Adapter) scheduleFlushLocked() {
	if a.flushing {
		return
	}
	a.flushing = true
	time.AfterFunc(a.cfg.CoalesceWindow, a.flushPending)
}

func (a *Adapter) flushPending() {
	a.mu.Lock()
	puts := a.pending
	dels := a.deletes
	a.pending = make(map[string][]byte)
	a.deletes = make(map[string]struct{})
	a.flushing = false
	a.mu.Unlock()

	if len(puts) == 0 && len(dels) == 0 {
		return
	}

	if !a.breaker.Allow() {
		// Store judged unavailable: drop silently, count it.
		if a.metrics != nil {
			a.metrics.RegistryWritesDropped.Add(context.Background(), int64(len(puts)+len(dels)))
		}
		slog.Debug("registry writes dropped, breaker open", "count", len(puts)+len(dels))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReadTimeout)
	defer cancel()

	failed := false
	for key, payload := range puts {
		if err := a.backend.Set(ctx, key, payload, 0); err != nil {
			failed = true
			slog.Debug("registry write failed", "key", key, "error", err)
			continue
		}
		if a.metrics != nil {
			a.metrics.RegistryWritesFlushed.Add(ctx, 1)
		}
	}
	for key := range dels {
		if err := a.backend.Delete(ctx, key); err != nil {
			failed = true
			slog.Debug("registry delete failed", "key", key, "error", err)
		}
	}

	if failed {
		a.breaker.RecordFailure()
	} else {
		a.breaker.RecordSuccess()
	}
}

// Flush forces pending coalesced writes out immediately.
func (a *Adapter) Flush(_ context.Context) {
	a.flushPending()
}

// --- read path ---

// GetAgent fetches a record within the configured read timeout. Timeouts,
// absence, and malformed payloads all report as not found.
func (a *Adapter) GetAgent(ctx context.Context, userID, agentID string) (*agent.Agent, bool) {
	key := a.agentKey(userID, agentID)

	if a.l1 != nil {
		if data, ok, _ := a.l1.Get(ctx, key); ok {
			if ag, valid := decodeAgent(data); valid {
				return ag, true
			}
		}
	}

	readCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()

	data, ok, err := a.backend.Get(readCtx, key)
	if err != nil {
		slog.Debug("registry read failed", "key", key, "error", err)
		a.breaker.RecordFailure()
		return nil, false
	}
	a.breaker.RecordSuccess()
	if !ok {
		return nil, false
	}

	ag, valid := decodeAgent(data)
	if !valid {
		slog.Debug("registry payload malformed, treating as absent", "key", key)
		return nil, false
	}

	if a.l1 != nil {
		_ = a.l1.Set(ctx, key, data, a.cfg.L1TTL)
	}
	return ag, true
}

// ListAgentIDs returns the ids of all agents registered for the user.
func (a *Adapter) ListAgentIDs(ctx context.Context, userID string) ([]string, error) {
	readCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()

	prefix := a.agentPrefix(userID)
	keys, err := a.backend.Keys(readCtx, prefix)
	if err != nil {
		a.breaker.RecordFailure()
		return nil, err
	}
	a.breaker.RecordSuccess()

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(prefix):])
	}
	sort.Strings(ids)
	return ids, nil
}

// decodeAgent unmarshals a registry payload. A value missing any required
// identity field is malformed and treated as absent, never as a partial
// record to merge.
func decodeAgent(data []byte) (*agent.Agent, bool) {
	var ag agent.Agent
	if err := json.Unmarshal(data, &ag); err != nil {
		return nil, false
	}
	if !ag.HasIdentity() {
		return nil, false
	}
	ag.Normalize()
	return &ag, true
}

// --- online set ---

// MarkOnline adds the agent id to the global online set.
func (a *Adapter) MarkOnline(ctx context.Context, agentID string) {
	a.updateOnlineSet(ctx, agentID, true)
}

// MarkOffline removes the agent id from the global online set.
func (a *Adapter) MarkOffline(ctx context.Context, agentID string) {
	a.updateOnlineSet(ctx, agentID, false)
}

// OnlineAgents returns the current global online set.
func (a *Adapter) OnlineAgents(ctx context.Context) ([]string, error) {
	readCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()

	data, ok, err := a.backend.Get(readCtx, a.onlineKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return decodeOnlineSet(data), nil
}

// updateOnlineSet performs an idempotent read-modify-write on the set.
// Races between devices can momentarily duplicate membership; add and
// remove are idempotent so the set converges.
func (a *Adapter) updateOnlineSet(ctx context.Context, agentID string, online bool) {
	a.onlineMu.Lock()
	defer a.onlineMu.Unlock()

	if !a.breaker.Allow() {
		slog.Debug("online-set update dropped, breaker open", "agent_id", agentID, "online", online)
		if a.metrics != nil {
			a.metrics.RegistryWritesDropped.Add(ctx, 1)
		}
		return
	}

	rwCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()

	var set []string
	data, ok, err := a.backend.Get(rwCtx, a.onlineKey())
	if err != nil {
		a.breaker.RecordFailure()
		slog.Debug("online-set read failed", "error", err)
		return
	}
	if ok {
		set = decodeOnlineSet(data)
	}

	next := make([]string, 0, len(set)+1)
	for _, id := range set {
		if id != agentID {
			next = append(next, id)
		}
	}
	if online {
		next = append(next, agentID)
	}
	sort.Strings(next)

	payload, err := json.Marshal(next)
	if err != nil {
		return
	}
	if err := a.backend.Set(rwCtx, a.onlineKey(), payload, 0); err != nil {
		a.breaker.RecordFailure()
		slog.Debug("online-set write failed", "error", err)
		return
	}
	a.breaker.RecordSuccess()
}

// decodeOnlineSet tolerates malformed payloads by returning an empty set.
func decodeOnlineSet(data []byte) []string {
	var set []string
	if err := json.Unmarshal(data, &set); err != nil {
		return []string{}
	}
	return set
}

// --- availability ---

// Available reports the breaker's current judgment of the backing store.
func (a *Adapter) Available() bool {
	return a.breaker.State() != resilience.StateOpen
}

// probeLoop restores the available state with a trivial round-trip once the
// backing store recovers.
func (a *Adapter) probeLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if a.breaker.State() == resilience.StateClosed {
				continue
			}
			a.probe()
		}
	}
}

func (a *Adapter) probe() {
	if !a.breaker.Allow() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ReadTimeout)
	defer cancel()

	payload := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := a.backend.Set(ctx, a.probeKey(), payload, 0); err != nil {
		a.breaker.RecordFailure()
		slog.Debug("registry probe failed", "error", err)
		return
	}
	a.breaker.RecordSuccess()
	slog.Info("registry available again")
}

// Close stops the probe loop and flushes pending writes.
func (a *Adapter) Close() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
	a.wg.Wait()
	a.flushPending()
}
