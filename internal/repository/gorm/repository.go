package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teamsync/internal/models"
	"teamsync/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Tenants ---------------------------------------------------------------

func (s *Store) CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error {
	if s == nil || s.db == nil || tenant == nil || owner == nil {
		return nil
	}
	// Tenant row, owner row, and the owner back-reference commit together
	// or not at all.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		owner.TenantID = tenant.ID
		if err := tx.Create(owner).Error; err != nil {
			return err
		}
		tenant.OwnerUserID = &owner.ID
		return tx.Model(&models.Tenant{}).
			Where("id = ?", tenant.ID).
			Update("owner_user_id", owner.ID).Error
	})
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var tenant models.Tenant
	err := s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *Store) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	var tenants []models.Tenant
	err := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("subscription_status = ? OR (subscription_status = ? AND (trial_ends_at IS NULL OR trial_ends_at > ?))",
			models.SubscriptionActive, models.SubscriptionTrial, now).
		Order("created_at asc").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Store) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("subscription_status = ?", models.SubscriptionTrial).
		Where("trial_ends_at IS NOT NULL").
		Where("trial_ends_at < ?", now).
		Update("subscription_status", models.SubscriptionExpired)
	return res.RowsAffected, res.Error
}

// --- Credentials -----------------------------------------------------------

func (s *Store) GetCredential(ctx context.Context, tenantID, source string) (*models.Credential, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND source = ? AND is_active = ?", tenantID, source, true).
		Order("updated_at desc").
		First(&cred).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if s == nil || s.db == nil || cred == nil {
		return nil
	}
	cred.IsActive = true
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token",
			"refresh_token",
			"expires_at",
			"scopes",
			"bot_user_id",
			"is_active",
			"updated_at",
		}),
	}).Create(cred).Error
}

func (s *Store) DeactivateCredential(ctx context.Context, tenantID, source string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("tenant_id = ? AND source = ?", tenantID, source).
		Update("is_active", false).Error
}

func (s *Store) ListConnectedSources(ctx context.Context, tenantID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var sources []string
	err := s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Distinct("source").
		Order("source asc").
		Pluck("source", &sources).Error
	if err != nil {
		return nil, err
	}
	return sources, nil
}

// --- Tenant config ---------------------------------------------------------

func (s *Store) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	if s == nil || s.db == nil {
		return models.DefaultTenantConfig(tenantID), nil
	}
	var cfg models.TenantConfig
	err := s.db.WithContext(ctx).First(&cfg, "tenant_id = ?", tenantID).Error
	if err == gorm.ErrRecordNotFound {
		return models.DefaultTenantConfig(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error {
	if s == nil || s.db == nil || cfg == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"slack_channel_ids",
			"linear_team_id",
			"github_orgs",
			"workflow_settings",
			"notification_settings",
			"updated_at",
		}),
	}).Create(cfg).Error
}

// --- Ingested records ------------------------------------------------------

// Messages are immutable at the provider, so a key collision is a no-op
// and RowsAffected counts newly stored rows only.
func (s *Store) UpsertMessagesTx(ctx context.Context, tx *gorm.DB, items []models.Message) (int64, error) {
	items = dedupeMessages(items)
	if len(items) == 0 {
		return 0, nil
	}
	return createCountedInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "channel_id"}, {Name: "ts"}},
		DoNothing: true,
	}), items, 200)
}

func (s *Store) UpsertIssuesTx(ctx context.Context, tx *gorm.DB, items []models.Issue) (int64, error) {
	items = dedupeIssues(items)
	if len(items) == 0 {
		return 0, nil
	}
	return createCountedInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"identifier",
			"title",
			"description",
			"state_name",
			"state_type",
			"url",
			"assignee_name",
			"team_id",
			"parent_id",
			"parent_title",
			"source_created_at",
			"source_updated_at",
			"stored_at",
		}),
	}), items, 200)
}

func (s *Store) UpsertPullRequestsTx(ctx context.Context, tx *gorm.DB, items []models.PullRequest) (int64, error) {
	items = dedupePullRequests(items)
	if len(items) == 0 {
		return 0, nil
	}
	return createCountedInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"number",
			"title",
			"body",
			"state",
			"is_merged",
			"is_draft",
			"url",
			"repo_full_name",
			"author",
			"source_created_at",
			"source_updated_at",
			"source_closed_at",
			"source_merged_at",
			"base_branch",
			"head_branch",
			"merge_commit_sha",
			"merge_method",
			"merged_by",
			"additions",
			"deletions",
			"changed_files",
			"files_changed",
			"reviewers",
			"approved_by",
			"review_comments_count",
			"comments_count",
			"commits_count",
			"stored_at",
		}),
	}), items, 100)
}

func (s *Store) UpsertCodeIssuesTx(ctx context.Context, tx *gorm.DB, items []models.CodeIssue) (int64, error) {
	items = dedupeCodeIssues(items)
	if len(items) == 0 {
		return 0, nil
	}
	return createCountedInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"number",
			"title",
			"body",
			"state",
			"url",
			"repo_full_name",
			"author",
			"assignees",
			"labels",
			"source_created_at",
			"source_updated_at",
			"source_closed_at",
			"stored_at",
		}),
	}), items, 200)
}

func (s *Store) CountRecords(ctx context.Context, tenantID string) (repository.RecordCounts, error) {
	var counts repository.RecordCounts
	if s == nil || s.db == nil {
		return counts, nil
	}
	type target struct {
		model any
		dst   *int64
	}
	targets := []target{
		{&models.Message{}, &counts.Messages},
		{&models.Issue{}, &counts.Issues},
		{&models.PullRequest{}, &counts.PullRequests},
		{&models.CodeIssue{}, &counts.CodeIssues},
	}
	for _, t := range targets {
		if err := s.db.WithContext(ctx).
			Model(t.model).
			Where("tenant_id = ?", tenantID).
			Count(t.dst).Error; err != nil {
			return repository.RecordCounts{}, err
		}
	}
	return counts, nil
}

// --- Sync state ------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, tenantID, source, scopeKey string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).
		First(&state, "tenant_id = ? AND source = ? AND scope_key = ?", tenantID, source, scopeKey).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) ListSyncStates(ctx context.Context, tenantID, source string) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var states []models.SyncState
	if err := q.Order("source asc, scope_key asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// AdvanceSyncStateTx upserts sync state without ever regressing the
// watermark: an incoming watermark at or below the stored one keeps the
// stored watermark and cursor, while success/attempt/stats fields still
// refresh.
func (s *Store) AdvanceSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	var current models.SyncState
	err := tx.WithContext(ctx).
		First(&current, "tenant_id = ? AND source = ? AND scope_key = ?",
			state.TenantID, state.Source, state.ScopeKey).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	if err == nil && current.WatermarkTS != nil {
		if state.WatermarkTS == nil || !state.WatermarkTS.After(*current.WatermarkTS) {
			state.WatermarkTS = current.WatermarkTS
			state.Cursor = current.Cursor
		}
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "scope_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cursor",
			"watermark_ts",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

// SaveSyncError records a failure against the scope without touching the
// watermark or cursor.
func (s *Store) SaveSyncError(ctx context.Context, tenantID, source, scopeKey, message string) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UTC()
	msg := truncateString(strings.TrimSpace(message), 2000)
	state := &models.SyncState{
		TenantID:      tenantID,
		Source:        source,
		ScopeKey:      scopeKey,
		LastAttemptAt: &now,
		LastError:     &msg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "scope_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_attempt_at",
			"last_error",
		}),
	}).Create(state).Error
}

// --- Activity --------------------------------------------------------------

func (s *Store) InsertActivity(ctx context.Context, entry *models.ActivityLog) error {
	if s == nil || s.db == nil || entry == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListActivity(ctx context.Context, tenantID string, params repository.ListActivityParams) ([]models.ActivityLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.activityQuery(ctx, tenantID, params)
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.ActivityLog
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountActivity(ctx context.Context, tenantID string, params repository.ListActivityParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.activityQuery(ctx, tenantID, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) activityQuery(ctx context.Context, tenantID string, params repository.ListActivityParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.ActivityLog{}).
		Where("tenant_id = ?", tenantID)
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// --- helpers ---------------------------------------------------------------

// createCountedInBatches mirrors gorm's CreateInBatches but accumulates
// RowsAffected so upserts can report how many rows were written.
func createCountedInBatches[T any](db *gorm.DB, items []T, batchSize int) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	var written int64
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		res := db.Create(items[i:end])
		if res.Error != nil {
			return written, res.Error
		}
		written += res.RowsAffected
	}
	return written, nil
}

// Multi-row inserts cannot touch the same natural key twice, so batches
// collapse duplicates before writing. First occurrence wins.
func dedupeMessages(items []models.Message) []models.Message {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.TenantID + "\x00" + item.ChannelID + "\x00" + item.TS
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func dedupeIssues(items []models.Issue) []models.Issue {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.TenantID + "\x00" + item.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func dedupePullRequests(items []models.PullRequest) []models.PullRequest {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.TenantID + "\x00" + item.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func dedupeCodeIssues(items []models.CodeIssue) []models.CodeIssue {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.TenantID + "\x00" + item.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func truncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

var _ repository.Repository = (*Store)(nil)
