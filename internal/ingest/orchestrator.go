// Package ingest drives incremental ingestion runs: it resolves tenant
// state and credentials, fetches through a collector, and commits
// records together with the cursor advance in one transaction. The queue
// in this package schedules runs and retries transient failures.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"teamsync/internal/collector"
	"teamsync/internal/config"
	"teamsync/internal/metrics"
	"teamsync/internal/models"
	"teamsync/internal/repository"
	"teamsync/internal/vault"
)

// ActivitySink receives tenant-visible audit entries. Implementations
// must not block the run and swallow their own failures.
type ActivitySink interface {
	Record(ctx context.Context, tenantID, entryType, description string, metadata map[string]any)
}

// Orchestrator executes one run end to end. It holds no per-run state;
// everything a run needs travels in the RunContext handed to the
// collector, so concurrent runs for different tenants cannot bleed into
// each other.
type Orchestrator struct {
	repo       repository.IngestRepository
	vault      *vault.Vault
	collectors map[collector.Source]collector.Collector
	activity   ActivitySink
	log        *zap.Logger

	defaultWindow time.Duration
	threadReplies bool
	now           func() time.Time
}

func NewOrchestrator(repo repository.IngestRepository, v *vault.Vault, activity ActivitySink, cfg config.SyncConfig, log *zap.Logger, collectors ...collector.Collector) *Orchestrator {
	bySource := make(map[collector.Source]collector.Collector, len(collectors))
	for _, c := range collectors {
		if c != nil {
			bySource[c.Source()] = c
		}
	}
	window := cfg.DefaultWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Orchestrator{
		repo:          repo,
		vault:         v,
		collectors:    bySource,
		activity:      activity,
		log:           log,
		defaultWindow: window,
		threadReplies: cfg.ThreadReplies,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run drives one tenant+source ingestion: resolve credential, fetch,
// upsert, advance cursors, log. Records and the cursor advance commit in
// the same transaction; a failure anywhere leaves stored watermarks
// untouched so the next run re-covers the same range.
func (o *Orchestrator) Run(ctx context.Context, tenantID, source string, opts ...RunOption) RunResult {
	start := time.Now()
	ro := resolveRunOptions(opts)
	res := RunResult{TenantID: tenantID, Source: source, Status: StatusSuccess}

	coll, ok := o.collectors[collector.Source(source)]
	if !ok {
		return o.finish(res.skipped(fmt.Sprintf("unknown source %q", source)), start)
	}

	now := o.now()

	tenant, err := o.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return o.failRun(ctx, res, start, ReasonStorageError, err)
	}
	if tenant == nil {
		return o.finish(res.skipped("tenant not found"), start)
	}
	if !tenant.SubscriptionActiveAt(now) {
		return o.finish(res.skipped("subscription inactive"), start)
	}

	cfg, err := o.repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return o.failRun(ctx, res, start, ReasonStorageError, err)
	}
	if !cfg.AutoSyncEnabled() {
		return o.finish(res.skipped(ReasonAutoSyncDisabled), start)
	}
	if collector.Source(source) == collector.SourceGitHub && !githubTierAllowed(tenant) {
		return o.finish(res.skipped(ReasonTierRequired), start)
	}

	cred, err := o.repo.GetCredential(ctx, tenantID, source)
	if err != nil {
		return o.failRun(ctx, res, start, ReasonStorageError, err)
	}
	if cred == nil {
		return o.finish(res.skipped(notConnectedReason(source)), start)
	}

	token, err := o.vault.Decrypt(cred.AccessToken)
	if err != nil {
		// An undecryptable credential reads as not connected rather than
		// failed; the tenant has to reconnect the source.
		if o.log != nil {
			o.log.Warn("credential decrypt failed",
				zap.String("tenant_id", tenantID),
				zap.String("source", source),
				zap.Error(err))
		}
		return o.finish(res.skipped(notConnectedReason(source)), start)
	}

	// A pinned window re-covers the trailing range regardless of stored
	// cursors; incremental runs resume from the per-scope watermarks.
	window := o.defaultWindow
	cursors := map[string]time.Time{}
	if ro.Window > 0 {
		window = ro.Window
	} else {
		states, err := o.repo.ListSyncStates(ctx, tenantID, source)
		if err != nil {
			return o.failRun(ctx, res, start, ReasonStorageError, err)
		}
		for _, st := range states {
			if st.ScopeKey != "" && st.WatermarkTS != nil {
				cursors[st.ScopeKey] = *st.WatermarkTS
			}
		}
	}

	rc := collector.RunContext{
		TenantID:      tenantID,
		Token:         token,
		Scopes:        cfg.SourceScopes(source),
		Cursors:       cursors,
		DefaultWindow: window,
		ThreadReplies: o.threadReplies && cfg.ThreadRepliesEnabled(),
		Now:           now,
	}
	if cred.BotUserID != nil {
		rc.SelfUserID = *cred.BotUserID
	}

	batch, err := coll.Fetch(ctx, rc)
	if err != nil {
		reason := ReasonFetchFailed
		if errors.Is(err, collector.ErrAuthExpired) {
			reason = ReasonAuthExpired
		}
		return o.failRun(ctx, res, start, reason, err)
	}
	res.FetchedCount = batch.Size()
	res.Errors = append(res.Errors, batch.Warnings...)

	var stored storedCounts
	txErr := o.repo.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		if stored.messages, err = o.repo.UpsertMessagesTx(ctx, tx, batch.Messages); err != nil {
			return err
		}
		if stored.issues, err = o.repo.UpsertIssuesTx(ctx, tx, batch.Issues); err != nil {
			return err
		}
		if stored.pullRequests, err = o.repo.UpsertPullRequestsTx(ctx, tx, batch.PullRequests); err != nil {
			return err
		}
		if stored.codeIssues, err = o.repo.UpsertCodeIssuesTx(ctx, tx, batch.CodeIssues); err != nil {
			return err
		}

		stats := runStats(res.FetchedCount, stored.total())
		attempt := now
		for _, scope := range sortedScopes(batch.Watermarks) {
			mark := batch.Watermarks[scope]
			state := &models.SyncState{
				TenantID:      tenantID,
				Source:        source,
				ScopeKey:      scope,
				WatermarkTS:   &mark,
				LastSuccessAt: &attempt,
				LastAttemptAt: &attempt,
				StatsJSON:     stats,
			}
			if err := o.repo.AdvanceSyncStateTx(ctx, tx, state); err != nil {
				return err
			}
		}
		// The empty scope key is the per-source summary row. It marks the
		// run successful even when no scope produced records.
		summary := &models.SyncState{
			TenantID:      tenantID,
			Source:        source,
			ScopeKey:      "",
			LastSuccessAt: &attempt,
			LastAttemptAt: &attempt,
			StatsJSON:     stats,
		}
		return o.repo.AdvanceSyncStateTx(ctx, tx, summary)
	})
	if txErr != nil {
		return o.failRun(ctx, res, start, ReasonStorageError, txErr)
	}
	res.StoredCount = int(stored.total())

	if stored.total() > 0 && o.activity != nil {
		desc, meta := activityEntry(source, stored)
		if desc != "" {
			o.activity.Record(ctx, tenantID, "sync", desc, meta)
		}
	}

	metrics.ObserveRecords(source, res.FetchedCount, res.StoredCount)
	return o.finish(res, start)
}

func (o *Orchestrator) failRun(ctx context.Context, res RunResult, start time.Time, reason string, err error) RunResult {
	res = res.failed(reason, err)
	msg := reason
	if err != nil {
		msg = err.Error()
	}
	if saveErr := o.repo.SaveSyncError(ctx, res.TenantID, res.Source, "", msg); saveErr != nil && o.log != nil {
		o.log.Warn("record sync error",
			zap.String("tenant_id", res.TenantID),
			zap.String("source", res.Source),
			zap.Error(saveErr))
	}
	return o.finish(res, start)
}

func (o *Orchestrator) finish(res RunResult, start time.Time) RunResult {
	elapsed := time.Since(start)
	res.StartedAt = start.UTC()
	res.FinishedAt = start.Add(elapsed).UTC()
	metrics.ObserveRun(res.Source, res.Status, elapsed)
	if o.log == nil {
		return res
	}
	fields := []zap.Field{
		zap.String("tenant_id", res.TenantID),
		zap.String("source", res.Source),
		zap.Duration("elapsed", elapsed),
	}
	switch res.Status {
	case StatusFailed:
		fields = append(fields, zap.String("reason", res.Reason), zap.Strings("errors", res.Errors))
		o.log.Warn("ingestion run failed", fields...)
	case StatusSkipped:
		fields = append(fields, zap.String("reason", res.Reason))
		o.log.Info("ingestion run skipped", fields...)
	default:
		fields = append(fields, zap.Int("fetched", res.FetchedCount), zap.Int("stored", res.StoredCount))
		if len(res.Errors) > 0 {
			fields = append(fields, zap.Strings("warnings", res.Errors))
		}
		o.log.Info("ingestion run finished", fields...)
	}
	return res
}

type storedCounts struct {
	messages     int64
	issues       int64
	pullRequests int64
	codeIssues   int64
}

func (s storedCounts) total() int64 {
	return s.messages + s.issues + s.pullRequests + s.codeIssues
}

func activityEntry(source string, stored storedCounts) (string, map[string]any) {
	switch collector.Source(source) {
	case collector.SourceSlack:
		return fmt.Sprintf("Synced %d new Slack messages", stored.messages),
			map[string]any{"source": "slack", "count": stored.messages}
	case collector.SourceLinear:
		return fmt.Sprintf("Synced %d Linear tickets", stored.issues),
			map[string]any{"source": "linear", "count": stored.issues}
	case collector.SourceGitHub:
		return fmt.Sprintf("Synced %d PRs and %d issues from GitHub", stored.pullRequests, stored.codeIssues),
			map[string]any{"source": "github", "prs": stored.pullRequests, "issues": stored.codeIssues}
	}
	return "", nil
}

func notConnectedReason(source string) string {
	switch collector.Source(source) {
	case collector.SourceSlack:
		return "Slack not connected"
	case collector.SourceLinear:
		return "Linear not connected"
	case collector.SourceGitHub:
		return "GitHub not connected"
	}
	return source + " not connected"
}

func githubTierAllowed(t *models.Tenant) bool {
	return t.SubscriptionTier == models.TierScale || t.SubscriptionTier == models.TierEnterprise
}

func runStats(fetched int, stored int64) datatypes.JSON {
	b, err := json.Marshal(map[string]int64{"fetched": int64(fetched), "stored": stored})
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func sortedScopes(marks map[string]time.Time) []string {
	scopes := make([]string, 0, len(marks))
	for scope := range marks {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}
