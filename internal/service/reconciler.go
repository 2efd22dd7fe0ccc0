package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentdock/agentdock/internal/adapter/otel"
	"github.com/agentdock/agentdock/internal/adapter/ws"
	"github.com/agentdock/agentdock/internal/domain/agent"
	"github.com/agentdock/agentdock/internal/port/broadcast"
	"github.com/agentdock/agentdock/internal/port/database"
	"github.com/agentdock/agentdock/internal/port/registry"
)

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	UserID     string   `json:"user_id"`
	Downloaded int      `json:"downloaded"`
	Uploaded   int      `json:"uploaded"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// ConsistencyReport compares the local store against the registry without
// changing either side.
type ConsistencyReport struct {
	UserID      string   `json:"user_id"`
	LocalCount  int      `json:"local_count"`
	RemoteCount int      `json:"remote_count"`
	Consistent  bool     `json:"consistent"`
	Diffs       []string `json:"diffs,omitempty"`
}

// SyncService reconciles the local store with the remote registry using
// last-write-wins on UpdatedAt. Per-record failures are collected and
// logged; a sync run never fails local operation.
type SyncService struct {
	store    database.Store
	registry registry.Registry
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics // optional
}

// NewSyncService creates a SyncService.
func NewSyncService(store database.Store, reg registry.Registry, hub broadcast.Broadcaster, metrics *otel.Metrics) *SyncService {
	return &SyncService{store: store, registry: reg, hub: hub, metrics: metrics}
}

// Reconcile performs a bidirectional sync for one user:
//
//   - remote-only records are downloaded into the local store
//   - local-only records are uploaded to the registry
//   - records on both sides follow last-write-wins on UpdatedAt,
//     with equal timestamps treated as already in sync
//
// Downloads preserve the remote record's UpdatedAt so repeated runs
// converge instead of ping-ponging.
func (s *SyncService) Reconcile(ctx context.Context, userID string) *SyncResult {
	res := &SyncResult{UserID: userID}

	local, err := s.store.ListAgents(ctx, userID, agent.ListOptions{})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list local agents: %v", err))
		slog.Error("sync aborted: local list failed", "user_id", userID, "error", err)
		return res
	}
	localByID := make(map[string]*agent.Agent, len(local))
	for i := range local {
		localByID[local[i].ID] = &local[i]
	}

	remoteIDs, err := s.registry.ListAgentIDs(ctx, userID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list registry agents: %v", err))
		slog.Warn("sync degraded: registry unreachable, uploading local records only", "user_id", userID, "error", err)
	}

	seen := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		seen[id] = struct{}{}
		remote, ok := s.registry.GetAgent(ctx, userID, id)
		if !ok {
			res.Skipped++
			continue
		}

		lcl, exists := localByID[id]
		switch {
		case !exists:
			s.download(ctx, remote, res)
		case remote.NewerThan(lcl):
			s.download(ctx, remote, res)
		case lcl.NewerThan(remote):
			s.upload(ctx, lcl, res)
		default:
			res.Skipped++
		}
	}

	for id, lcl := range localByID {
		if _, ok := seen[id]; ok {
			continue
		}
		s.upload(ctx, lcl, res)
	}

	s.hub.BroadcastEvent(ctx, ws.EventSyncCompleted, ws.SyncEvent{
		UserID:     userID,
		Downloaded: res.Downloaded,
		Uploaded:   res.Uploaded,
		Skipped:    res.Skipped,
		Errors:     res.Errors,
	})
	slog.Info("sync completed", "user_id", userID,
		"downloaded", res.Downloaded, "uploaded", res.Uploaded,
		"skipped", res.Skipped, "errors", len(res.Errors))
	return res
}

func (s *SyncService) download(ctx context.Context, remote *agent.Agent, res *SyncResult) {
	if err := s.store.PutAgent(ctx, remote); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("download %s: %v", remote.ID, err))
		slog.Error("sync download failed", "agent_id", remote.ID, "error", err)
		return
	}
	res.Downloaded++
	if s.metrics != nil {
		s.metrics.SyncDownloaded.Add(ctx, 1)
	}
}

func (s *SyncService) upload(ctx context.Context, lcl *agent.Agent, res *SyncResult) {
	s.registry.PutAgent(ctx, lcl)
	res.Uploaded++
	if s.metrics != nil {
		s.metrics.SyncUploaded.Add(ctx, 1)
	}
}

// CheckConsistency reports id and timestamp differences between the two
// sides without modifying anything.
func (s *SyncService) CheckConsistency(ctx context.Context, userID string) (*ConsistencyReport, error) {
	rep := &ConsistencyReport{UserID: userID}

	local, err := s.store.ListAgents(ctx, userID, agent.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list local agents: %w", err)
	}
	rep.LocalCount = len(local)
	localByID := make(map[string]*agent.Agent, len(local))
	for i := range local {
		localByID[local[i].ID] = &local[i]
	}

	remoteIDs, err := s.registry.ListAgentIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registry agents: %w", err)
	}
	rep.RemoteCount = len(remoteIDs)

	seen := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		seen[id] = struct{}{}
		lcl, exists := localByID[id]
		if !exists {
			rep.Diffs = append(rep.Diffs, fmt.Sprintf("%s: registry only", id))
			continue
		}
		remote, ok := s.registry.GetAgent(ctx, userID, id)
		if !ok {
			rep.Diffs = append(rep.Diffs, fmt.Sprintf("%s: registry record unreadable", id))
			continue
		}
		if remote.NewerThan(lcl) || lcl.NewerThan(remote) {
			rep.Diffs = append(rep.Diffs, fmt.Sprintf("%s: timestamps differ (local %d, registry %d)",
				id, lcl.UpdatedAt.UnixMilli(), remote.UpdatedAt.UnixMilli()))
		}
	}
	for id := range localByID {
		if _, ok := seen[id]; !ok {
			rep.Diffs = append(rep.Diffs, fmt.Sprintf("%s: local only", id))
		}
	}

	rep.Consistent = len(rep.Diffs) == 0
	return rep, nil
}
