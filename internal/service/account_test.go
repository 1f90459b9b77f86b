package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"teamsync/internal/config"
	"teamsync/internal/db"
	"teamsync/internal/models"
	"teamsync/internal/repository"
	gormrepository "teamsync/internal/repository/gorm"
)

func newServiceStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	conn, err := db.Open(config.DBConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormrepository.New(conn.Gorm)
}

func TestSignup_StartsTrialWithDefaults(t *testing.T) {
	store := newServiceStore(t)
	svc := &AccountService{Repo: store}
	before := time.Now().UTC()

	tenant, owner, err := svc.Signup(context.Background(), "  Ada@Acme.dev ", "  Ada  ", "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tenant.Email != "ada@acme.dev" {
		t.Fatalf("email=%q want normalized", tenant.Email)
	}
	if tenant.SubscriptionTier != models.TierFree || tenant.SubscriptionStatus != models.SubscriptionTrial {
		t.Fatalf("tenant=%+v want free trial", tenant)
	}
	if tenant.TrialEndsAt == nil {
		t.Fatalf("trial end missing")
	}
	if tenant.TrialEndsAt.Before(before.AddDate(0, 0, 13)) || tenant.TrialEndsAt.After(before.AddDate(0, 0, 15)) {
		t.Fatalf("trial end=%v want about 14 days out", tenant.TrialEndsAt)
	}
	if owner.Name != "Ada" || owner.TenantID != tenant.ID {
		t.Fatalf("owner=%+v", owner)
	}
	if tenant.OwnerUserID == nil || *tenant.OwnerUserID != owner.ID {
		t.Fatalf("owner back-reference=%v", tenant.OwnerUserID)
	}
}

func TestSignup_CustomTrialLength(t *testing.T) {
	store := newServiceStore(t)
	svc := &AccountService{Repo: store, TrialDays: 30}
	before := time.Now().UTC()

	tenant, _, err := svc.Signup(context.Background(), "month@acme.dev", "", "pro")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tenant.TrialEndsAt.Before(before.AddDate(0, 0, 29)) {
		t.Fatalf("trial end=%v want about 30 days out", tenant.TrialEndsAt)
	}
}

func TestSignup_TierValidation(t *testing.T) {
	store := newServiceStore(t)
	svc := &AccountService{Repo: store}

	tenant, _, err := svc.Signup(context.Background(), "scale@acme.dev", "", "SCALE")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if tenant.SubscriptionTier != models.TierScale {
		t.Fatalf("tier=%q want scale", tenant.SubscriptionTier)
	}

	if _, _, err := svc.Signup(context.Background(), "plat@acme.dev", "", "platinum"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("err=%v want ErrUnknownTier", err)
	}
	if _, _, err := svc.Signup(context.Background(), "   ", "", ""); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("err=%v want ErrEmailRequired", err)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	store := newServiceStore(t)
	svc := &AccountService{Repo: store}

	if _, _, err := svc.Signup(context.Background(), "dup@acme.dev", "", ""); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, _, err := svc.Signup(context.Background(), "DUP@acme.dev", "", "")
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("err=%v want duplicated key", err)
	}
}

func TestActivityRecord_WritesEntryWithMetadata(t *testing.T) {
	store := newServiceStore(t)
	svc := &ActivityService{Repo: store}
	ctx := context.Background()

	svc.Record(ctx, "t1", "sync", "Synced 3 new Slack messages", map[string]any{"source": "slack", "count": 3})

	items, total, err := svc.List(ctx, "t1", repository.ListActivityParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total=%d items=%d want 1", total, len(items))
	}
	entry := items[0]
	if entry.Type != "sync" || entry.Description != "Synced 3 new Slack messages" {
		t.Fatalf("entry=%+v", entry)
	}
	var meta map[string]any
	if err := json.Unmarshal(entry.Metadata, &meta); err != nil {
		t.Fatalf("metadata=%s: %v", entry.Metadata, err)
	}
	if meta["source"] != "slack" || meta["count"] != float64(3) {
		t.Fatalf("meta=%v", meta)
	}
}

func TestActivityRecord_IgnoresBlankTenant(t *testing.T) {
	store := newServiceStore(t)
	svc := &ActivityService{Repo: store}
	ctx := context.Background()

	svc.Record(ctx, "", "sync", "orphan entry", nil)

	_, total, err := svc.List(ctx, "", repository.ListActivityParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("total=%d want 0", total)
	}
}
