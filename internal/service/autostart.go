package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentdock/agentdock/internal/adapter/ws"
	"github.com/agentdock/agentdock/internal/port/broadcast"
)

// AutoStartService runs the boot sequence for a user: reconcile the local
// store with the registry, then bring every published agent's endpoint
// server up. The sequence runs at most once per user per process; repeated
// triggers return the first run's summary.
type AutoStartService struct {
	sync      *SyncService
	endpoints *EndpointManager
	hub       broadcast.Broadcaster

	mu   sync.Mutex
	done map[string]*BatchResult
}

// NewAutoStartService creates an AutoStartService.
func NewAutoStartService(syncSvc *SyncService, endpoints *EndpointManager, hub broadcast.Broadcaster) *AutoStartService {
	return &AutoStartService{
		sync:      syncSvc,
		endpoints: endpoints,
		hub:       hub,
		done:      make(map[string]*BatchResult),
	}
}

// Boot reconciles and then starts all published agents for the user.
// Sync failures are logged and do not block the start phase. Idempotent
// per user for the lifetime of the process.
func (s *AutoStartService) Boot(ctx context.Context, userID string) (*BatchResult, error) {
	s.mu.Lock()
	if res, ok := s.done[userID]; ok {
		s.mu.Unlock()
		slog.Debug("auto-start already ran", "user_id", userID)
		return res, nil
	}
	s.mu.Unlock()

	syncRes := s.sync.Reconcile(ctx, userID)
	if len(syncRes.Errors) > 0 {
		slog.Warn("auto-start continuing despite sync errors",
			"user_id", userID, "errors", len(syncRes.Errors))
	}

	res, err := s.endpoints.StartAllPublished(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if prior, ok := s.done[userID]; ok {
		// A concurrent boot for the same user won; keep its summary.
		s.mu.Unlock()
		return prior, nil
	}
	s.done[userID] = res
	s.mu.Unlock()

	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.AgentID+": "+e.Error)
	}
	s.hub.BroadcastEvent(ctx, ws.EventAutoStartSummary, ws.AutoStartEvent{
		UserID:  userID,
		Total:   res.Total,
		Started: res.Started,
		Errors:  errs,
	})
	slog.Info("auto-start completed", "user_id", userID,
		"total", res.Total, "started", res.Started, "failed", len(res.Errors))
	return res, nil
}
