package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamsync/internal/models"
	"teamsync/internal/repository"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrUnknownTier   = errors.New("unknown subscription tier")
)

// AccountService provisions tenants. Every signup starts a trial; the
// cron sweep expires trials that lapse without a subscription.
type AccountService struct {
	Repo      repository.Repository
	TrialDays int
}

func (s *AccountService) Signup(ctx context.Context, email, name, tier string) (*models.Tenant, *models.User, error) {
	if s == nil || s.Repo == nil {
		return nil, nil, errors.New("account service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil, ErrEmailRequired
	}
	tier, err := normalizeTier(tier)
	if err != nil {
		return nil, nil, err
	}

	days := s.TrialDays
	if days <= 0 {
		days = 14
	}
	trialEnd := time.Now().UTC().AddDate(0, 0, days)

	tenant := &models.Tenant{
		ID:                 uuid.NewString(),
		Email:              email,
		SubscriptionTier:   tier,
		SubscriptionStatus: models.SubscriptionTrial,
		TrialEndsAt:        &trialEnd,
	}
	owner := &models.User{
		ID:       uuid.NewString(),
		TenantID: tenant.ID,
		Email:    email,
		Name:     strings.TrimSpace(name),
	}
	if err := s.Repo.CreateTenantWithOwner(ctx, tenant, owner); err != nil {
		return nil, nil, err
	}
	return tenant, owner, nil
}

func normalizeTier(tier string) (string, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	switch tier {
	case "":
		return models.TierFree, nil
	case models.TierFree, models.TierPro, models.TierScale, models.TierEnterprise:
		return tier, nil
	}
	return "", ErrUnknownTier
}
