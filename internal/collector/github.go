package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"teamsync/internal/cache"
	"teamsync/internal/client/github"
	"teamsync/internal/models"
)

const maxTrackedFiles = 50

// GitHubCollector aggregates pull requests and issues per repository.
// Scope entries containing a slash are repo full names; entries without
// one are owners whose repositories get enumerated. PR enrichment is
// best-effort: a failed lookup degrades that PR to base fields.
type GitHubCollector struct {
	Client *github.Client

	// Cache holds repository listings per tenant and owner so the sweep
	// does not re-enumerate orgs on every run. Nil disables caching.
	Cache    cache.Store
	CacheTTL time.Duration
}

func (g *GitHubCollector) Source() Source { return SourceGitHub }

func (g *GitHubCollector) Fetch(ctx context.Context, rc RunContext) (*Batch, error) {
	batch := NewBatch()
	repos, err := g.selectRepos(ctx, rc, batch)
	if err != nil {
		return nil, mapGitHubErr(err)
	}

	for _, repo := range repos {
		since := rc.SinceFor(repo)

		prs, err := g.Client.PullRequests(ctx, rc.Token, repo, since)
		if err != nil {
			if errors.Is(err, github.ErrNotFound) {
				batch.Warn(fmt.Sprintf("github: pulls of %s: %v", repo, err))
				continue
			}
			return nil, mapGitHubErr(err)
		}
		for _, pr := range prs {
			rec := buildPullRequestBase(rc.TenantID, repo, pr)
			if err := g.enrichPullRequest(ctx, rc.Token, repo, pr, &rec, batch); err != nil {
				return nil, mapGitHubErr(err)
			}
			batch.PullRequests = append(batch.PullRequests, rec)
			batch.Observe(repo, pr.UpdatedAt)
		}

		issues, err := g.Client.Issues(ctx, rc.Token, repo, since)
		if err != nil {
			if errors.Is(err, github.ErrNotFound) {
				batch.Warn(fmt.Sprintf("github: issues of %s: %v", repo, err))
				continue
			}
			return nil, mapGitHubErr(err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			if issue.UpdatedAt.Before(since) {
				continue
			}
			batch.CodeIssues = append(batch.CodeIssues, buildCodeIssue(rc.TenantID, repo, issue))
			batch.Observe(repo, issue.UpdatedAt)
		}
	}
	return batch, nil
}

func (g *GitHubCollector) selectRepos(ctx context.Context, rc RunContext, batch *Batch) ([]string, error) {
	var explicit, owners []string
	for _, scope := range rc.Scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if strings.Contains(scope, "/") {
			explicit = append(explicit, scope)
		} else {
			owners = append(owners, scope)
		}
	}

	if len(explicit) == 0 && len(owners) == 0 {
		repos, err := g.listRepos(ctx, rc, "viewer", func() ([]github.Repo, error) {
			return g.Client.ViewerRepos(ctx, rc.Token)
		})
		if err != nil {
			return nil, err
		}
		return repoNames(repos), nil
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(fullName string) {
		if fullName == "" {
			return
		}
		if _, ok := seen[fullName]; ok {
			return
		}
		seen[fullName] = struct{}{}
		out = append(out, fullName)
	}

	for _, full := range explicit {
		repo, err := g.Client.Repo(ctx, rc.Token, full)
		if err != nil {
			if errors.Is(err, github.ErrUnauthorized) {
				return nil, err
			}
			batch.Warn(fmt.Sprintf("github: repo %s: %v", full, err))
			continue
		}
		add(repo.FullName)
	}
	for _, owner := range owners {
		repos, err := g.listRepos(ctx, rc, owner, func() ([]github.Repo, error) {
			return g.Client.OrgRepos(ctx, rc.Token, owner)
		})
		if err != nil {
			if errors.Is(err, github.ErrUnauthorized) {
				return nil, err
			}
			batch.Warn(fmt.Sprintf("github: repos of %s: %v", owner, err))
			continue
		}
		for _, repo := range repos {
			add(repo.FullName)
		}
	}
	return out, nil
}

// listRepos wraps a repo enumeration with the cache. Fetch errors are
// never cached; an unreadable cached value just refetches.
func (g *GitHubCollector) listRepos(ctx context.Context, rc RunContext, owner string, fetch func() ([]github.Repo, error)) ([]github.Repo, error) {
	key := "github:repos:" + rc.TenantID + ":" + owner
	if g.Cache != nil {
		if raw, ok, err := g.Cache.Get(ctx, key); err == nil && ok {
			var cached []github.Repo
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}
	repos, err := fetch()
	if err != nil {
		return nil, err
	}
	if g.Cache != nil && len(repos) > 0 {
		if raw, err := json.Marshal(repos); err == nil {
			_ = g.Cache.Set(ctx, key, raw, g.cacheTTL())
		}
	}
	return repos, nil
}

func (g *GitHubCollector) cacheTTL() time.Duration {
	if g.CacheTTL > 0 {
		return g.CacheTTL
	}
	return 10 * time.Minute
}

// enrichPullRequest layers detail stats, folded comments, the file list,
// reviews, commit count, and merge metadata onto a base record. Only an
// auth rejection propagates; everything else degrades with a warning.
func (g *GitHubCollector) enrichPullRequest(ctx context.Context, token, repo string, in github.PullRequest, rec *models.PullRequest, batch *Batch) error {
	warn := func(stage string, err error) error {
		if errors.Is(err, github.ErrUnauthorized) {
			return err
		}
		batch.Warn(fmt.Sprintf("github: %s of %s#%d: %v", stage, repo, in.Number, err))
		return nil
	}

	detail, err := g.Client.PullRequestDetail(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("detail", err); err != nil {
			return err
		}
	} else {
		rec.IsMerged = detail.Merged || detail.MergedAt != nil
		rec.Additions = detail.Additions
		rec.Deletions = detail.Deletions
		rec.ChangedFiles = detail.ChangedFiles
		rec.ReviewCommentsCount = detail.ReviewComments
		rec.CommentsCount = detail.Comments
		rec.CommitsCount = detail.Commits
		if rec.IsMerged {
			if detail.MergeCommitSHA != "" {
				sha := detail.MergeCommitSHA
				rec.MergeCommitSHA = &sha
			}
			if by := detail.MergedByUser(); by != "" {
				rec.MergedBy = &by
			}
		}
	}

	var folded []string
	comments, err := g.Client.IssueComments(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("comments", err); err != nil {
			return err
		}
	} else {
		for _, c := range comments {
			folded = append(folded, fmt.Sprintf("\n\n---\nComment by %s on %s:\n%s",
				commentAuthor(c), commentDate(c), c.Body))
		}
	}
	reviewComments, err := g.Client.ReviewComments(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("review comments", err); err != nil {
			return err
		}
	} else {
		for _, c := range reviewComments {
			location := ""
			if c.Path != "" {
				location = fmt.Sprintf(" (file: %s, line: %d)", c.Path, c.Line)
			}
			folded = append(folded, fmt.Sprintf("\n\n---\nReview comment by %s on %s%s:\n%s",
				commentAuthor(c), commentDate(c), location, c.Body))
		}
	}
	if len(folded) > 0 {
		rec.Body = in.Body + strings.Join(folded, "")
	}

	files, err := g.Client.Files(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("files", err); err != nil {
			return err
		}
	} else if len(files) > 0 {
		names := make([]string, 0, len(files))
		for _, f := range files {
			if len(names) >= maxTrackedFiles {
				break
			}
			names = append(names, f.Filename)
		}
		rec.FilesChanged = jsonList(names)
		if len(files) > rec.ChangedFiles {
			rec.ChangedFiles = len(files)
		}
	}

	reviews, err := g.Client.Reviews(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("reviews", err); err != nil {
			return err
		}
	} else if len(reviews) > 0 {
		var reviewers, approvers []string
		seen := map[string]struct{}{}
		for _, review := range reviews {
			login := ""
			if review.User != nil {
				login = review.User.Login
			}
			if login == "" {
				continue
			}
			if _, ok := seen[login]; ok {
				continue
			}
			seen[login] = struct{}{}
			reviewers = append(reviewers, login)
			if review.State == "APPROVED" {
				approvers = append(approvers, login)
			}
		}
		rec.Reviewers = jsonList(reviewers)
		rec.ApprovedBy = jsonList(approvers)
	}

	commits, err := g.Client.Commits(ctx, token, repo, in.Number)
	if err != nil {
		if err := warn("commits", err); err != nil {
			return err
		}
	} else if len(commits) > 0 {
		rec.CommitsCount = len(commits)
	}

	if rec.IsMerged && rec.MergeCommitSHA != nil && rec.MergeMethod == nil {
		commit, err := g.Client.Commit(ctx, token, repo, *rec.MergeCommitSHA)
		if err != nil {
			if err := warn("merge commit", err); err != nil {
				return err
			}
		} else {
			// Two parents means a merge commit; one parent could be either
			// a squash or a rebase, which the API cannot distinguish.
			method := "squash_or_rebase"
			if len(commit.Parents) > 1 {
				method = "merge"
			}
			rec.MergeMethod = &method
		}
	}
	return nil
}

func buildPullRequestBase(tenantID, repo string, in github.PullRequest) models.PullRequest {
	out := models.PullRequest{
		TenantID:            tenantID,
		ID:                  strconv.FormatInt(in.ID, 10),
		Number:              in.Number,
		Title:               in.Title,
		Body:                in.Body,
		State:               in.State,
		IsMerged:            in.MergedAt != nil,
		IsDraft:             in.Draft,
		URL:                 in.HTMLURL,
		RepoFullName:        repo,
		Author:              in.Author(),
		Additions:           in.Additions,
		Deletions:           in.Deletions,
		ChangedFiles:        in.ChangedFiles,
		ReviewCommentsCount: in.ReviewComments,
		CommentsCount:       in.Comments,
		CommitsCount:        in.Commits,
	}
	if in.Base != nil {
		out.BaseBranch = in.Base.Ref
		if in.Base.Repo != nil && in.Base.Repo.FullName != "" {
			out.RepoFullName = in.Base.Repo.FullName
		}
	}
	if in.Head != nil {
		out.HeadBranch = in.Head.Ref
	}
	if !in.CreatedAt.IsZero() {
		t := in.CreatedAt
		out.SourceCreatedAt = &t
	}
	if !in.UpdatedAt.IsZero() {
		t := in.UpdatedAt
		out.SourceUpdatedAt = &t
	}
	out.SourceClosedAt = in.ClosedAt
	out.SourceMergedAt = in.MergedAt
	return out
}

func buildCodeIssue(tenantID, repo string, in github.Issue) models.CodeIssue {
	assignees := make([]string, 0, len(in.Assignees))
	for _, a := range in.Assignees {
		if a.Login != "" {
			assignees = append(assignees, a.Login)
		}
	}
	labels := make([]string, 0, len(in.Labels))
	for _, l := range in.Labels {
		if l.Name != "" {
			labels = append(labels, l.Name)
		}
	}
	out := models.CodeIssue{
		TenantID:     tenantID,
		ID:           strconv.FormatInt(in.ID, 10),
		Number:       in.Number,
		Title:        in.Title,
		Body:         in.Body,
		State:        in.State,
		URL:          in.HTMLURL,
		RepoFullName: repo,
		Author:       in.Author(),
		Assignees:    strings.Join(assignees, ","),
		Labels:       strings.Join(labels, ","),
	}
	if !in.CreatedAt.IsZero() {
		t := in.CreatedAt
		out.SourceCreatedAt = &t
	}
	if !in.UpdatedAt.IsZero() {
		t := in.UpdatedAt
		out.SourceUpdatedAt = &t
	}
	out.SourceClosedAt = in.ClosedAt
	return out
}

func repoNames(repos []github.Repo) []string {
	out := make([]string, 0, len(repos))
	for _, repo := range repos {
		if repo.FullName != "" {
			out = append(out, repo.FullName)
		}
	}
	return out
}

func commentAuthor(c github.Comment) string {
	if c.User != nil && c.User.Login != "" {
		return c.User.Login
	}
	return "Unknown"
}

func commentDate(c github.Comment) string {
	if c.CreatedAt.IsZero() {
		return ""
	}
	return c.CreatedAt.UTC().Format(time.RFC3339)
}

func jsonList(items []string) datatypes.JSON {
	if len(items) == 0 {
		return nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func mapGitHubErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, github.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
