package ingest

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"teamsync/internal/collector"
	"teamsync/internal/models"
	"teamsync/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface; orchestrator and sweeper tests use the
// subset they need and inject failures through the err fields.
type stubRepo struct {
	mu sync.Mutex

	tenants   map[string]*models.Tenant
	configs   map[string]*models.TenantConfig
	creds     map[string]*models.Credential
	states    map[string]models.SyncState
	connected map[string][]string
	active    []models.Tenant

	messages   []models.Message
	issues     []models.Issue
	prs        []models.PullRequest
	codeIssues []models.CodeIssue
	activity   []models.ActivityLog
	syncErrors []string

	expired int64

	upsertErr  error
	advanceErr error
	activeErr  error
	sourcesErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		tenants:   map[string]*models.Tenant{},
		configs:   map[string]*models.TenantConfig{},
		creds:     map[string]*models.Credential{},
		states:    map[string]models.SyncState{},
		connected: map[string][]string{},
	}
}

func credKey(tenantID, source string) string { return tenantID + "/" + source }

func stateKey(tenantID, source, scope string) string {
	return tenantID + "/" + source + "/" + scope
}

func (r *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (r *stubRepo) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tenants[tenantID], nil
}

func (r *stubRepo) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.configs[tenantID]; ok {
		return cfg, nil
	}
	return models.DefaultTenantConfig(tenantID), nil
}

func (r *stubRepo) GetCredential(ctx context.Context, tenantID, source string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[credKey(tenantID, source)]
	if !ok || !cred.IsActive {
		return nil, nil
	}
	return cred, nil
}

func (r *stubRepo) UpsertMessagesTx(ctx context.Context, tx *gorm.DB, items []models.Message) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.messages = append(r.messages, items...)
	return int64(len(items)), nil
}

func (r *stubRepo) UpsertIssuesTx(ctx context.Context, tx *gorm.DB, items []models.Issue) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.issues = append(r.issues, items...)
	return int64(len(items)), nil
}

func (r *stubRepo) UpsertPullRequestsTx(ctx context.Context, tx *gorm.DB, items []models.PullRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.prs = append(r.prs, items...)
	return int64(len(items)), nil
}

func (r *stubRepo) UpsertCodeIssuesTx(ctx context.Context, tx *gorm.DB, items []models.CodeIssue) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	r.codeIssues = append(r.codeIssues, items...)
	return int64(len(items)), nil
}

func (r *stubRepo) GetSyncState(ctx context.Context, tenantID, source, scopeKey string) (*models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[stateKey(tenantID, source, scopeKey)]; ok {
		copied := state
		return &copied, nil
	}
	return nil, nil
}

func (r *stubRepo) ListSyncStates(ctx context.Context, tenantID, source string) ([]models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SyncState
	for _, state := range r.states {
		if state.TenantID != tenantID {
			continue
		}
		if source != "" && state.Source != source {
			continue
		}
		out = append(out, state)
	}
	return out, nil
}

func (r *stubRepo) AdvanceSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.advanceErr != nil {
		return r.advanceErr
	}
	r.states[stateKey(state.TenantID, state.Source, state.ScopeKey)] = *state
	return nil
}

func (r *stubRepo) SaveSyncError(ctx context.Context, tenantID, source, scopeKey, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncErrors = append(r.syncErrors, credKey(tenantID, source)+": "+message)
	return nil
}

func (r *stubRepo) InsertActivity(ctx context.Context, entry *models.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = append(r.activity, *entry)
	return nil
}

func (r *stubRepo) CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenant.ID] = tenant
	return nil
}

func (r *stubRepo) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	return r.active, nil
}

func (r *stubRepo) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	return r.expired, nil
}

func (r *stubRepo) SaveCredential(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred.IsActive = true
	r.creds[credKey(cred.TenantID, cred.Source)] = cred
	return nil
}

func (r *stubRepo) DeactivateCredential(ctx context.Context, tenantID, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[credKey(tenantID, source)]; ok {
		cred.IsActive = false
	}
	return nil
}

func (r *stubRepo) ListConnectedSources(ctx context.Context, tenantID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sourcesErr != nil {
		return nil, r.sourcesErr
	}
	return r.connected[tenantID], nil
}

func (r *stubRepo) SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.TenantID] = cfg
	return nil
}

func (r *stubRepo) ListActivity(ctx context.Context, tenantID string, params repository.ListActivityParams) ([]models.ActivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ActivityLog
	for _, entry := range r.activity {
		if entry.TenantID == tenantID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *stubRepo) CountActivity(ctx context.Context, tenantID string, params repository.ListActivityParams) (int64, error) {
	items, _ := r.ListActivity(ctx, tenantID, params)
	return int64(len(items)), nil
}

func (r *stubRepo) CountRecords(ctx context.Context, tenantID string) (repository.RecordCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts repository.RecordCounts
	for _, m := range r.messages {
		if m.TenantID == tenantID {
			counts.Messages++
		}
	}
	for _, i := range r.issues {
		if i.TenantID == tenantID {
			counts.Issues++
		}
	}
	for _, p := range r.prs {
		if p.TenantID == tenantID {
			counts.PullRequests++
		}
	}
	for _, c := range r.codeIssues {
		if c.TenantID == tenantID {
			counts.CodeIssues++
		}
	}
	return counts, nil
}

var _ repository.Repository = (*stubRepo)(nil)

// stubCollector returns a scripted batch or error and records the
// RunContext it was handed.
type stubCollector struct {
	source collector.Source
	batch  *collector.Batch
	err    error

	mu     sync.Mutex
	calls  int
	lastRC collector.RunContext
}

func (c *stubCollector) Source() collector.Source { return c.source }

func (c *stubCollector) Fetch(ctx context.Context, rc collector.RunContext) (*collector.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastRC = rc
	if c.err != nil {
		return nil, c.err
	}
	if c.batch == nil {
		return collector.NewBatch(), nil
	}
	return c.batch, nil
}

func (c *stubCollector) runContext() collector.RunContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRC
}

type sinkEntry struct {
	tenantID    string
	entryType   string
	description string
	metadata    map[string]any
}

type stubSink struct {
	mu      sync.Mutex
	entries []sinkEntry
}

func (s *stubSink) Record(ctx context.Context, tenantID, entryType, description string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, sinkEntry{tenantID: tenantID, entryType: entryType, description: description, metadata: metadata})
}

func (s *stubSink) all() []sinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEntry(nil), s.entries...)
}
