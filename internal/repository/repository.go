package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"teamsync/internal/models"
)

// IngestRepository is the storage surface one ingestion run needs:
// resolve credentials and config, upsert fetched records, and move sync
// state forward. Upsert*Tx methods run inside a caller-owned transaction
// so records and cursor advance commit or roll back together.
type IngestRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)
	GetCredential(ctx context.Context, tenantID, source string) (*models.Credential, error)

	UpsertMessagesTx(ctx context.Context, tx *gorm.DB, items []models.Message) (int64, error)
	UpsertIssuesTx(ctx context.Context, tx *gorm.DB, items []models.Issue) (int64, error)
	UpsertPullRequestsTx(ctx context.Context, tx *gorm.DB, items []models.PullRequest) (int64, error)
	UpsertCodeIssuesTx(ctx context.Context, tx *gorm.DB, items []models.CodeIssue) (int64, error)

	GetSyncState(ctx context.Context, tenantID, source, scopeKey string) (*models.SyncState, error)
	ListSyncStates(ctx context.Context, tenantID, source string) ([]models.SyncState, error)
	AdvanceSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error
	SaveSyncError(ctx context.Context, tenantID, source, scopeKey, message string) error

	InsertActivity(ctx context.Context, entry *models.ActivityLog) error
}

// Repository is the full surface, adding the account, credential
// management, and feed operations the HTTP layer and the cron sweeps use.
type Repository interface {
	IngestRepository

	// Tenants and signup.
	CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error
	ListActiveTenants(ctx context.Context) ([]models.Tenant, error)
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)

	// Credential management.
	SaveCredential(ctx context.Context, cred *models.Credential) error
	DeactivateCredential(ctx context.Context, tenantID, source string) error
	ListConnectedSources(ctx context.Context, tenantID string) ([]string, error)

	// Config management.
	SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error

	// Activity feed and per-tenant stats.
	ListActivity(ctx context.Context, tenantID string, params ListActivityParams) ([]models.ActivityLog, error)
	CountActivity(ctx context.Context, tenantID string, params ListActivityParams) (int64, error)
	CountRecords(ctx context.Context, tenantID string) (RecordCounts, error)
}

type ListActivityParams struct {
	Limit  int
	Offset int
	Type   *string
	Since  *time.Time
}

// RecordCounts is the per-kind ingested-record tally for one tenant.
type RecordCounts struct {
	Messages     int64 `json:"messages"`
	Issues       int64 `json:"issues"`
	PullRequests int64 `json:"pull_requests"`
	CodeIssues   int64 `json:"code_issues"`
}
