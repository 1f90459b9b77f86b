package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"teamsync/internal/metrics"
	"teamsync/internal/repository"
)

// Sweeper feeds the queue on schedule: per-cadence source sweeps across
// active tenants, and the trial expiry pass.
type Sweeper struct {
	repo  repository.Repository
	queue *Queue
	log   *zap.Logger
}

func NewSweeper(repo repository.Repository, queue *Queue, log *zap.Logger) *Sweeper {
	return &Sweeper{repo: repo, queue: queue, log: log}
}

// EnqueueDueRuns queues one run per connected source for every active
// tenant. Guards that depend on run-time state stay in the runner; the
// sweep only skips tenants with nothing to do. Options are handed to
// every queued run, so a deep sweep can pin the fetch window.
func (s *Sweeper) EnqueueDueRuns(ctx context.Context, sources []string, opts ...RunOption) (int, error) {
	tenants, err := s.repo.ListActiveTenants(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, tenant := range tenants {
		cfg, err := s.repo.GetTenantConfig(ctx, tenant.ID)
		if err != nil {
			s.warn("load tenant config", tenant.ID, err)
			continue
		}
		if !cfg.AutoSyncEnabled() {
			continue
		}
		connected, err := s.repo.ListConnectedSources(ctx, tenant.ID)
		if err != nil {
			s.warn("list connected sources", tenant.ID, err)
			continue
		}
		have := make(map[string]bool, len(connected))
		for _, source := range connected {
			have[source] = true
		}

		for _, source := range sources {
			if !have[source] {
				continue
			}
			if source == "github" && !githubTierAllowed(&tenant) {
				continue
			}
			if _, err := s.queue.Enqueue(tenant.ID, source, opts...); err != nil {
				s.warn("enqueue run", tenant.ID, err)
				continue
			}
			queued++
		}
	}

	if s.log != nil {
		s.log.Info("sync sweep queued runs",
			zap.Strings("sources", sources),
			zap.Int("tenants", len(tenants)),
			zap.Int("queued", queued))
	}
	return queued, nil
}

// ExpireTrials flips lapsed trial tenants to expired.
func (s *Sweeper) ExpireTrials(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireTrials(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.TrialsExpired.Add(float64(n))
	}
	if s.log != nil {
		s.log.Info("trial sweep finished", zap.Int64("expired", n))
	}
	return n, nil
}

func (s *Sweeper) warn(what, tenantID string, err error) {
	if s.log == nil {
		return
	}
	s.log.Warn(what+" failed", zap.String("tenant_id", tenantID), zap.Error(err))
}
