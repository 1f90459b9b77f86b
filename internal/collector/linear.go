package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"teamsync/internal/cache"
	"teamsync/internal/client/linear"
	"teamsync/internal/models"
)

// LinearCollector fetches issues per team with sub-issue fan-out. Teams
// come from the scope allow-list; with none configured it enumerates
// every accessible team and de-duplicates across them.
type LinearCollector struct {
	Client *linear.Client

	// Cache holds the team roster per tenant so key resolution does not
	// hit the API on every run. Nil disables caching.
	Cache    cache.Store
	CacheTTL time.Duration
}

func (l *LinearCollector) Source() Source { return SourceLinear }

func (l *LinearCollector) Fetch(ctx context.Context, rc RunContext) (*Batch, error) {
	teams, err := l.resolveTeams(ctx, rc)
	if err != nil {
		return nil, mapLinearErr(err)
	}

	batch := NewBatch()
	seen := map[string]struct{}{}

	for _, teamID := range teams {
		since := rc.SinceFor(teamID)
		issues, err := l.Client.Issues(ctx, rc.Token, teamID, since)
		if err != nil {
			return nil, mapLinearErr(err)
		}
		for _, issue := range issues {
			if issue.UpdatedAt.Before(since) {
				continue
			}
			addLinearIssue(batch, seen, rc.TenantID, teamID, issue)

			// Children ride along with their parent even when they have
			// not changed themselves.
			subs, err := l.Client.SubIssues(ctx, rc.Token, issue.ID)
			if err != nil {
				if errors.Is(err, linear.ErrUnauthorized) {
					return nil, mapLinearErr(err)
				}
				batch.Warn(fmt.Sprintf("linear: sub-issues of %s: %v", issue.Identifier, err))
				continue
			}
			for _, sub := range subs {
				addLinearIssue(batch, seen, rc.TenantID, teamID, sub)
			}
		}
	}
	return batch, nil
}

// resolveTeams turns configured team references into team ids. A
// reference already shaped like an id passes through; anything else is
// matched against team keys, falling back to the raw value.
func (l *LinearCollector) resolveTeams(ctx context.Context, rc RunContext) ([]string, error) {
	refs := make([]string, 0, len(rc.Scopes))
	for _, ref := range rc.Scopes {
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.EqualFold(ref, "none") || strings.EqualFold(ref, "null") {
			continue
		}
		refs = append(refs, ref)
	}

	if len(refs) == 0 {
		teams, err := l.teams(ctx, rc)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(teams))
		for _, team := range teams {
			if team.ID != "" {
				ids = append(ids, team.ID)
			}
		}
		return ids, nil
	}

	var teams []linear.Team
	resolved := make([]string, 0, len(refs))
	for _, ref := range refs {
		if looksLikeTeamID(ref) {
			resolved = append(resolved, ref)
			continue
		}
		if teams == nil {
			var err error
			teams, err = l.teams(ctx, rc)
			if err != nil {
				return nil, err
			}
		}
		id := ref
		for _, team := range teams {
			if team.Key == ref {
				id = team.ID
				break
			}
		}
		resolved = append(resolved, id)
	}
	return resolved, nil
}

// teams lists the tenant's teams through the cache. Cache misses and
// write failures fall back to the API silently; the roster changes
// rarely enough that a short TTL is safe.
func (l *LinearCollector) teams(ctx context.Context, rc RunContext) ([]linear.Team, error) {
	key := "linear:teams:" + rc.TenantID
	if l.Cache != nil {
		if raw, ok, err := l.Cache.Get(ctx, key); err == nil && ok {
			var cached []linear.Team
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}
	teams, err := l.Client.Teams(ctx, rc.Token)
	if err != nil {
		return nil, err
	}
	if l.Cache != nil && len(teams) > 0 {
		if raw, err := json.Marshal(teams); err == nil {
			_ = l.Cache.Set(ctx, key, raw, l.cacheTTL())
		}
	}
	return teams, nil
}

func (l *LinearCollector) cacheTTL() time.Duration {
	if l.CacheTTL > 0 {
		return l.CacheTTL
	}
	return 10 * time.Minute
}

func looksLikeTeamID(s string) bool {
	return len(s) > 30 && strings.Contains(s, "-")
}

func addLinearIssue(batch *Batch, seen map[string]struct{}, tenantID, scope string, in linear.Issue) {
	if in.ID == "" {
		return
	}
	if _, ok := seen[in.ID]; ok {
		return
	}
	seen[in.ID] = struct{}{}
	batch.Issues = append(batch.Issues, buildLinearIssue(tenantID, in))
	batch.Observe(scope, in.UpdatedAt)
}

func buildLinearIssue(tenantID string, in linear.Issue) models.Issue {
	out := models.Issue{
		TenantID:    tenantID,
		ID:          in.ID,
		Identifier:  in.Identifier,
		Title:       in.Title,
		Description: in.Description,
		StateName:   in.State.Name,
		StateType:   in.State.Type,
		URL:         in.URL,
	}
	if out.StateName == "" {
		out.StateName = "Unknown"
	}
	if out.StateType == "" {
		out.StateType = "unknown"
	}
	if in.Assignee != nil && in.Assignee.Name != "" {
		out.AssigneeName = &in.Assignee.Name
	}
	if in.Team != nil && in.Team.ID != "" {
		out.TeamID = &in.Team.ID
	}
	if in.Parent != nil && in.Parent.ID != "" {
		out.ParentID = &in.Parent.ID
		if in.Parent.Title != "" {
			out.ParentTitle = &in.Parent.Title
		}
	}
	if !in.CreatedAt.IsZero() {
		t := in.CreatedAt
		out.SourceCreatedAt = &t
	}
	if !in.UpdatedAt.IsZero() {
		t := in.UpdatedAt
		out.SourceUpdatedAt = &t
	}
	return out
}

func mapLinearErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, linear.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
