package db

import (
	"teamsync/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.Credential{},
		&models.TenantConfig{},
		&models.SyncState{},
		&models.Message{},
		&models.Issue{},
		&models.PullRequest{},
		&models.CodeIssue{},
		&models.ActivityLog{},
	)
}
