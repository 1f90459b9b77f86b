// Package github is a minimal REST client for the GitHub API covering
// repository discovery, pull request listing with enrichment lookups,
// and issue listing.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnauthorized means the token was rejected.
	ErrUnauthorized = errors.New("github: unauthorized")
	// ErrNotFound covers missing repos and orgs. Callers usually skip and
	// continue.
	ErrNotFound = errors.New("github: not found")
)

const defaultBaseURL = "https://api.github.com"

type Client struct {
	BaseURL  string
	HTTP     *http.Client
	MaxRetry int
	Backoff  time.Duration
	PageSize int
}

type actor struct {
	Login string `json:"login"`
}

type Repo struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type PullRequest struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	Draft   bool   `json:"draft"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	User    *actor `json:"user"`
	Base    *struct {
		Ref  string `json:"ref"`
		Repo *Repo  `json:"repo"`
	} `json:"base"`
	Head *struct {
		Ref string `json:"ref"`
	} `json:"head"`
	MergedBy       *actor     `json:"merged_by"`
	MergeCommitSHA string     `json:"merge_commit_sha"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at"`
	MergedAt       *time.Time `json:"merged_at"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	ChangedFiles   int        `json:"changed_files"`
	ReviewComments int        `json:"review_comments"`
	Comments       int        `json:"comments"`
	Commits        int        `json:"commits"`
}

type Issue struct {
	ID        int64  `json:"id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	User      *actor `json:"user"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`

	// Present when the issue is actually a pull request.
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

type Review struct {
	User  *actor `json:"user"`
	State string `json:"state"`
}

type PRFile struct {
	Filename string `json:"filename"`
}

type Comment struct {
	User      *actor    `json:"user"`
	Body      string    `json:"body"`
	Path      string    `json:"path"`
	Line      int       `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

type Commit struct {
	SHA     string `json:"sha"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

func (i Issue) IsPullRequest() bool {
	return len(i.PullRequest) > 0
}

func (a *actor) login() string {
	if a == nil {
		return ""
	}
	return a.Login
}

func (p *PullRequest) Author() string { return p.User.login() }

func (p *PullRequest) MergedByUser() string { return p.MergedBy.login() }

func (i Issue) Author() string { return i.User.login() }

func (c *Client) Repo(ctx context.Context, token, fullName string) (*Repo, error) {
	var repo Repo
	if err := c.getWithRetry(ctx, token, repoPath(fullName), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// OrgRepos lists an organization's repositories, falling back to the
// user repo listing when the owner is not an organization.
func (c *Client) OrgRepos(ctx context.Context, token, owner string) ([]Repo, error) {
	repos, err := c.pagedRepos(ctx, token, "/orgs/"+url.PathEscape(owner)+"/repos")
	if errors.Is(err, ErrNotFound) {
		return c.pagedRepos(ctx, token, "/users/"+url.PathEscape(owner)+"/repos")
	}
	return repos, err
}

// ViewerRepos lists repositories the token can see.
func (c *Client) ViewerRepos(ctx context.Context, token string) ([]Repo, error) {
	return c.pagedRepos(ctx, token, "/user/repos")
}

// PullRequests lists PRs updated at or after since, newest first. Listing
// stops at the first page whose tail is older than since.
func (c *Client) PullRequests(ctx context.Context, token, fullName string, since time.Time) ([]PullRequest, error) {
	var all []PullRequest
	for page := 1; ; page++ {
		query := url.Values{
			"state":     {"all"},
			"sort":      {"updated"},
			"direction": {"desc"},
			"per_page":  {strconv.Itoa(c.pageSize())},
			"page":      {strconv.Itoa(page)},
		}
		var batch []PullRequest
		if err := c.getWithRetry(ctx, token, repoPath(fullName)+"/pulls", query, &batch); err != nil {
			return nil, err
		}
		exhausted := false
		for _, pr := range batch {
			if !since.IsZero() && pr.UpdatedAt.Before(since) {
				exhausted = true
				continue
			}
			all = append(all, pr)
		}
		if exhausted || len(batch) < c.pageSize() {
			break
		}
	}
	return all, nil
}

// PullRequestDetail fetches the single-PR view, which carries change
// stats and counts absent from the list response.
func (c *Client) PullRequestDetail(ctx context.Context, token, fullName string, number int) (*PullRequest, error) {
	var pr PullRequest
	path := repoPath(fullName) + "/pulls/" + strconv.Itoa(number)
	if err := c.getWithRetry(ctx, token, path, nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// Issues lists issues updated at or after since. Pull requests show up in
// this listing too; callers filter them with IsPullRequest.
func (c *Client) Issues(ctx context.Context, token, fullName string, since time.Time) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		query := url.Values{
			"state":     {"all"},
			"sort":      {"updated"},
			"direction": {"desc"},
			"per_page":  {strconv.Itoa(c.pageSize())},
			"page":      {strconv.Itoa(page)},
		}
		if !since.IsZero() {
			query.Set("since", since.UTC().Format(time.RFC3339))
		}
		var batch []Issue
		if err := c.getWithRetry(ctx, token, repoPath(fullName)+"/issues", query, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize() {
			break
		}
	}
	return all, nil
}

func (c *Client) Reviews(ctx context.Context, token, fullName string, number int) ([]Review, error) {
	var reviews []Review
	path := repoPath(fullName) + "/pulls/" + strconv.Itoa(number) + "/reviews"
	if err := c.getWithRetry(ctx, token, path, pageQuery(), &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (c *Client) Files(ctx context.Context, token, fullName string, number int) ([]PRFile, error) {
	var files []PRFile
	path := repoPath(fullName) + "/pulls/" + strconv.Itoa(number) + "/files"
	if err := c.getWithRetry(ctx, token, path, pageQuery(), &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) IssueComments(ctx context.Context, token, fullName string, number int) ([]Comment, error) {
	var comments []Comment
	path := repoPath(fullName) + "/issues/" + strconv.Itoa(number) + "/comments"
	if err := c.getWithRetry(ctx, token, path, pageQuery(), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) ReviewComments(ctx context.Context, token, fullName string, number int) ([]Comment, error) {
	var comments []Comment
	path := repoPath(fullName) + "/pulls/" + strconv.Itoa(number) + "/comments"
	if err := c.getWithRetry(ctx, token, path, pageQuery(), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) Commits(ctx context.Context, token, fullName string, number int) ([]Commit, error) {
	var commits []Commit
	path := repoPath(fullName) + "/pulls/" + strconv.Itoa(number) + "/commits"
	if err := c.getWithRetry(ctx, token, path, pageQuery(), &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *Client) Commit(ctx context.Context, token, fullName, sha string) (*Commit, error) {
	var commit Commit
	path := repoPath(fullName) + "/commits/" + url.PathEscape(sha)
	if err := c.getWithRetry(ctx, token, path, nil, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (c *Client) pagedRepos(ctx context.Context, token, path string) ([]Repo, error) {
	var all []Repo
	for page := 1; ; page++ {
		query := url.Values{
			"per_page": {strconv.Itoa(c.pageSize())},
			"page":     {strconv.Itoa(page)},
		}
		var batch []Repo
		if err := c.getWithRetry(ctx, token, path, query, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize() {
			break
		}
	}
	return all, nil
}

func (c *Client) getWithRetry(ctx context.Context, token, path string, query url.Values, out any) error {
	maxRetry := c.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		err := c.get(ctx, token, path, query, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return err
		}
		backoff := c.backoffBase() + time.Duration(attempt)*c.backoffBase()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	u := c.base() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		// Secondary rate limits come back as 403. Retryable.
		return fmt.Errorf("github rate limited (http %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("github http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) base() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return 100
}

func (c *Client) backoffBase() time.Duration {
	if c.Backoff > 0 {
		return c.Backoff
	}
	return 400 * time.Millisecond
}

func pageQuery() url.Values {
	return url.Values{"per_page": {"100"}}
}

func repoPath(fullName string) string {
	parts := strings.SplitN(strings.TrimSpace(fullName), "/", 2)
	if len(parts) != 2 {
		return "/repos/" + url.PathEscape(fullName)
	}
	return "/repos/" + url.PathEscape(parts[0]) + "/" + url.PathEscape(parts[1])
}
