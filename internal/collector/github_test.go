package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"teamsync/internal/cache"
	"teamsync/internal/client/github"
)

var ghTestNow = time.Date(2023, 11, 15, 12, 0, 0, 0, time.UTC)

func newGitHubCollector(url string) *GitHubCollector {
	return &GitHubCollector{Client: &github.Client{
		BaseURL: url,
		Backoff: time.Millisecond,
	}}
}

func ghRC(scopes ...string) RunContext {
	return RunContext{
		TenantID: "t1",
		Token:    "ghp_test",
		Scopes:   scopes,
		Now:      ghTestNow,
	}
}

func TestGitHubFetchEnrichesPullRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/api":
			_, _ = w.Write([]byte(`{"full_name":"acme/api","name":"api"}`))
		case "/repos/acme/api/pulls":
			_, _ = w.Write([]byte(`[
				{"id":7001,"number":7,"title":"Add pagination","body":"Adds pagination.","state":"closed",
				 "html_url":"https://github.com/acme/api/pull/7","user":{"login":"rae"},
				 "base":{"ref":"main","repo":{"full_name":"acme/api"}},"head":{"ref":"feature/pagination"},
				 "merged_at":"2023-11-15T10:00:00Z",
				 "created_at":"2023-11-14T16:00:00Z","updated_at":"2023-11-15T10:00:00Z"},
				{"id":3001,"number":3,"title":"Old","state":"closed",
				 "created_at":"2023-11-01T00:00:00Z","updated_at":"2023-11-10T00:00:00Z"}
			]`))
		case "/repos/acme/api/pulls/7":
			_, _ = w.Write([]byte(`{"id":7001,"number":7,"merged":true,
				"merge_commit_sha":"abc123","merged_by":{"login":"maya"},
				"additions":10,"deletions":2,"changed_files":3,
				"review_comments":1,"comments":1,"commits":2}`))
		case "/repos/acme/api/issues/7/comments":
			_, _ = w.Write([]byte(`[{"user":{"login":"sam"},"body":"looks good","created_at":"2023-11-15T09:00:00Z"}]`))
		case "/repos/acme/api/pulls/7/comments":
			_, _ = w.Write([]byte(`[{"user":{"login":"maya"},"body":"rename this","path":"main.go","line":12,"created_at":"2023-11-15T09:30:00Z"}]`))
		case "/repos/acme/api/pulls/7/files":
			_, _ = w.Write([]byte(`[{"filename":"main.go"},{"filename":"go.mod"}]`))
		case "/repos/acme/api/pulls/7/reviews":
			_, _ = w.Write([]byte(`[
				{"user":{"login":"maya"},"state":"APPROVED"},
				{"user":{"login":"sam"},"state":"COMMENTED"},
				{"user":{"login":"maya"},"state":"APPROVED"}
			]`))
		case "/repos/acme/api/pulls/7/commits":
			_, _ = w.Write([]byte(`[{"sha":"c1"},{"sha":"c2"}]`))
		case "/repos/acme/api/commits/abc123":
			_, _ = w.Write([]byte(`{"sha":"abc123","parents":[{"sha":"p1"},{"sha":"p2"}]}`))
		case "/repos/acme/api/issues":
			if got := r.URL.Query().Get("since"); got != "2023-11-14T12:00:00Z" {
				t.Errorf("expected since for the default window, got %q", got)
			}
			_, _ = w.Write([]byte(`[
				{"id":9001,"number":42,"title":"Crash on empty input","body":"Stack trace attached.","state":"open",
				 "html_url":"https://github.com/acme/api/issues/42","user":{"login":"lee"},
				 "assignees":[{"login":"lee"},{"login":"kim"}],"labels":[{"name":"bug"}],
				 "created_at":"2023-11-15T08:00:00Z","updated_at":"2023-11-15T11:00:00Z"},
				{"id":9002,"number":43,"title":"PR shadow","state":"open",
				 "pull_request":{"url":"https://api.github.com/repos/acme/api/pulls/43"},
				 "created_at":"2023-11-15T08:00:00Z","updated_at":"2023-11-15T11:30:00Z"},
				{"id":9003,"number":40,"title":"Stale","state":"open",
				 "created_at":"2023-11-01T00:00:00Z","updated_at":"2023-11-13T00:00:00Z"}
			]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	batch, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC("acme/api"))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if got := len(batch.PullRequests); got != 1 {
		t.Fatalf("expected 1 pull request, got %d", got)
	}
	pr := batch.PullRequests[0]
	if pr.ID != "7001" || pr.Number != 7 || pr.RepoFullName != "acme/api" || pr.Author != "rae" {
		t.Fatalf("base fields mapped wrong: %+v", pr)
	}
	if pr.BaseBranch != "main" || pr.HeadBranch != "feature/pagination" {
		t.Fatalf("branches mapped wrong: %s <- %s", pr.BaseBranch, pr.HeadBranch)
	}
	if !pr.IsMerged || pr.Additions != 10 || pr.Deletions != 2 || pr.ChangedFiles != 3 {
		t.Fatalf("detail stats lost: %+v", pr)
	}
	if pr.ReviewCommentsCount != 1 || pr.CommentsCount != 1 || pr.CommitsCount != 2 {
		t.Fatalf("count fields lost: %+v", pr)
	}
	if pr.MergeCommitSHA == nil || *pr.MergeCommitSHA != "abc123" {
		t.Fatalf("merge commit sha lost: %+v", pr.MergeCommitSHA)
	}
	if pr.MergedBy == nil || *pr.MergedBy != "maya" {
		t.Fatalf("merged_by lost: %+v", pr.MergedBy)
	}
	if pr.MergeMethod == nil || *pr.MergeMethod != "merge" {
		t.Fatalf("two-parent merge commit should classify as merge, got %+v", pr.MergeMethod)
	}

	if !strings.Contains(pr.Body, "Adds pagination.") {
		t.Fatalf("original body lost: %q", pr.Body)
	}
	if !strings.Contains(pr.Body, "Comment by sam on 2023-11-15T09:00:00Z:\nlooks good") {
		t.Fatalf("issue comment not folded into body: %q", pr.Body)
	}
	if !strings.Contains(pr.Body, "Review comment by maya on 2023-11-15T09:30:00Z (file: main.go, line: 12):\nrename this") {
		t.Fatalf("review comment not folded into body: %q", pr.Body)
	}

	var files []string
	if err := json.Unmarshal(pr.FilesChanged, &files); err != nil || len(files) != 2 || files[0] != "main.go" {
		t.Fatalf("files list mapped wrong: %s (%v)", pr.FilesChanged, err)
	}
	var reviewers, approvers []string
	if err := json.Unmarshal(pr.Reviewers, &reviewers); err != nil {
		t.Fatalf("reviewers decode: %v", err)
	}
	if len(reviewers) != 2 || reviewers[0] != "maya" || reviewers[1] != "sam" {
		t.Fatalf("expected deduped reviewers [maya sam], got %v", reviewers)
	}
	if err := json.Unmarshal(pr.ApprovedBy, &approvers); err != nil || len(approvers) != 1 || approvers[0] != "maya" {
		t.Fatalf("expected approvers [maya], got %v (%v)", approvers, err)
	}

	if got := len(batch.CodeIssues); got != 1 {
		t.Fatalf("expected the PR shadow and the stale issue filtered out, got %d issues", got)
	}
	issue := batch.CodeIssues[0]
	if issue.ID != "9001" || issue.Number != 42 {
		t.Fatalf("issue mapped wrong: %+v", issue)
	}
	if issue.Assignees != "lee,kim" || issue.Labels != "bug" {
		t.Fatalf("assignees/labels mapped wrong: %q %q", issue.Assignees, issue.Labels)
	}

	wantMark := time.Date(2023, 11, 15, 11, 0, 0, 0, time.UTC)
	if mark := batch.Watermarks["acme/api"]; !mark.Equal(wantMark) {
		t.Fatalf("expected repo watermark %v, got %v", wantMark, mark)
	}
}

func TestGitHubEnrichmentFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/api":
			_, _ = w.Write([]byte(`{"full_name":"acme/api","name":"api"}`))
		case "/repos/acme/api/pulls":
			_, _ = w.Write([]byte(`[
				{"id":7001,"number":7,"title":"Add pagination","body":"Adds pagination.","state":"open",
				 "user":{"login":"rae"},
				 "created_at":"2023-11-14T16:00:00Z","updated_at":"2023-11-15T10:00:00Z"}
			]`))
		case "/repos/acme/api/issues":
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	batch, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC("acme/api"))
	if err != nil {
		t.Fatalf("enrichment failures must not fail the run, got %v", err)
	}
	if got := len(batch.PullRequests); got != 1 {
		t.Fatalf("expected the base record to survive, got %d", got)
	}
	pr := batch.PullRequests[0]
	if pr.Body != "Adds pagination." || pr.Additions != 0 || len(pr.Reviewers) != 0 {
		t.Fatalf("degraded record should keep base fields only: %+v", pr)
	}
	// detail, comments, review comments, files, reviews, commits.
	if got := len(batch.Warnings); got != 6 {
		t.Fatalf("expected one warning per degraded stage, got %d: %v", got, batch.Warnings)
	}
}

func TestGitHubOwnerScopeExpandsRepos(t *testing.T) {
	var mu sync.Mutex
	pulled := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/orgs/acme/repos":
			_, _ = w.Write([]byte(`[{"full_name":"acme/api","name":"api"},{"full_name":"acme/web","name":"web"}]`))
		case strings.HasSuffix(r.URL.Path, "/pulls"):
			mu.Lock()
			pulled[r.URL.Path] = true
			mu.Unlock()
			_, _ = w.Write([]byte(`[]`))
		case strings.HasSuffix(r.URL.Path, "/issues"):
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	if _, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC("acme")); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !pulled["/repos/acme/api/pulls"] || !pulled["/repos/acme/web/pulls"] {
		t.Fatalf("expected every org repo fetched, got %v", pulled)
	}
}

func TestGitHubOwnerFallsBackToUserRepos(t *testing.T) {
	var mu sync.Mutex
	pulled := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/orgs/solo/repos":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/users/solo/repos":
			_, _ = w.Write([]byte(`[{"full_name":"solo/dotfiles","name":"dotfiles"}]`))
		case strings.HasSuffix(r.URL.Path, "/pulls"):
			mu.Lock()
			pulled[r.URL.Path] = true
			mu.Unlock()
			_, _ = w.Write([]byte(`[]`))
		case strings.HasSuffix(r.URL.Path, "/issues"):
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	if _, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC("solo")); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !pulled["/repos/solo/dotfiles/pulls"] {
		t.Fatalf("expected user repos fallback, got %v", pulled)
	}
}

func TestGitHubViewerReposWhenUnscoped(t *testing.T) {
	var mu sync.Mutex
	pulled := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/user/repos":
			_, _ = w.Write([]byte(`[{"full_name":"rae/sandbox","name":"sandbox"}]`))
		case strings.HasSuffix(r.URL.Path, "/pulls"):
			mu.Lock()
			pulled[r.URL.Path] = true
			mu.Unlock()
			_, _ = w.Write([]byte(`[]`))
		case strings.HasSuffix(r.URL.Path, "/issues"):
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	if _, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !pulled["/repos/rae/sandbox/pulls"] {
		t.Fatalf("expected viewer repos fetched, got %v", pulled)
	}
}

func TestGitHubMissingRepoSkipsWithWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/repos/acme/api":
			_, _ = w.Write([]byte(`{"full_name":"acme/api","name":"api"}`))
		case "/repos/acme/api/pulls", "/repos/acme/api/issues":
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	batch, err := newGitHubCollector(server.URL).Fetch(context.Background(), ghRC("acme/gone", "acme/api"))
	if err != nil {
		t.Fatalf("a missing repo must not fail the run, got %v", err)
	}
	if len(batch.Warnings) != 1 || !strings.Contains(batch.Warnings[0], "acme/gone") {
		t.Fatalf("expected a warning naming the missing repo, got %v", batch.Warnings)
	}
}

func TestGitHubAuthErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	collector := newGitHubCollector(server.URL)
	collector.Client.MaxRetry = 3

	_, err := collector.Fetch(context.Background(), ghRC("acme/api"))
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestGitHubOrgRepoListServedFromCache(t *testing.T) {
	var listCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/orgs/acme/repos":
			listCalls++
			_, _ = w.Write([]byte(`[{"full_name":"acme/api","name":"api"}]`))
		case "/repos/acme/api/pulls", "/repos/acme/api/issues":
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected github call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	collector := newGitHubCollector(server.URL)
	collector.Cache = cache.NewMemoryStore()

	for i := 0; i < 2; i++ {
		if _, err := collector.Fetch(context.Background(), ghRC("acme")); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if listCalls != 1 {
		t.Fatalf("second run should list repos from cache, got %d listings", listCalls)
	}
}
