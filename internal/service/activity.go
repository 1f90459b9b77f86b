package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"teamsync/internal/models"
	"teamsync/internal/repository"
)

// ActivityService writes and reads the tenant-visible feed. Recording
// is fire-and-forget: a storage failure is logged and never propagated,
// so a completed sync cannot fail on its own audit trail.
type ActivityService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *ActivityService) Record(ctx context.Context, tenantID, entryType, description string, metadata map[string]any) {
	if s == nil || s.Repo == nil || tenantID == "" {
		return
	}
	entry := &models.ActivityLog{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Type:        entryType,
		Description: description,
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	if err := s.Repo.InsertActivity(ctx, entry); err != nil && s.Logger != nil {
		s.Logger.Warn("activity write failed",
			zap.String("tenant_id", tenantID),
			zap.String("type", entryType),
			zap.Error(err))
	}
}

func (s *ActivityService) List(ctx context.Context, tenantID string, params repository.ListActivityParams) ([]models.ActivityLog, int64, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, nil
	}
	items, err := s.Repo.ListActivity(ctx, tenantID, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountActivity(ctx, tenantID, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
