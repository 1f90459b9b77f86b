// Package collector translates provider APIs into one fetch contract.
// Each collector hides pagination, auth headers, and provider filtering;
// callers see records, per-scope watermarks, and non-fatal warnings.
package collector

import (
	"context"
	"errors"
	"time"

	"teamsync/internal/models"
)

type Source string

const (
	SourceSlack  Source = "slack"
	SourceLinear Source = "linear"
	SourceGitHub Source = "github"
)

func KnownSource(s string) bool {
	switch Source(s) {
	case SourceSlack, SourceLinear, SourceGitHub:
		return true
	}
	return false
}

var (
	// ErrAuthExpired means the provider rejected the token. Callers should
	// prompt re-authorization instead of retrying.
	ErrAuthExpired = errors.New("provider rejected credentials")
	// ErrFetchFailed means a page request kept failing after bounded
	// retries. The run aborts without touching stored watermarks.
	ErrFetchFailed = errors.New("fetch failed after retries")
)

// RunContext carries everything one run needs: identity, the decrypted
// token, scope allow-list, and per-scope cursors. It is passed explicitly
// so nothing about a run lives in process-wide state.
type RunContext struct {
	TenantID      string
	Token         string
	SelfUserID    string
	Scopes        []string
	Cursors       map[string]time.Time
	DefaultWindow time.Duration
	ThreadReplies bool

	// Now pins the clock for tests. Zero means wall clock.
	Now time.Time
}

func (rc RunContext) clock() time.Time {
	if !rc.Now.IsZero() {
		return rc.Now
	}
	return time.Now().UTC()
}

// SinceFor returns the lower bound for a scope: the stored cursor when
// one exists, otherwise now minus the default window so a first sync
// never walks unbounded history.
func (rc RunContext) SinceFor(scope string) time.Time {
	if ts, ok := rc.Cursors[scope]; ok && !ts.IsZero() {
		return ts
	}
	window := rc.DefaultWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return rc.clock().Add(-window)
}

// InScope reports whether the allow-list admits the id. An empty list
// admits everything.
func (rc RunContext) InScope(id string) bool {
	if len(rc.Scopes) == 0 {
		return true
	}
	for _, s := range rc.Scopes {
		if s == id {
			return true
		}
	}
	return false
}

// Batch is one fully fetched result set. Watermarks carry the newest
// record timestamp seen per scope; they advance stored cursors only
// after the whole batch commits.
type Batch struct {
	Messages     []models.Message
	Issues       []models.Issue
	PullRequests []models.PullRequest
	CodeIssues   []models.CodeIssue

	Watermarks map[string]time.Time
	Warnings   []string
}

func NewBatch() *Batch {
	return &Batch{Watermarks: map[string]time.Time{}}
}

// Observe lifts the scope watermark to ts if ts is newer.
func (b *Batch) Observe(scope string, ts time.Time) {
	if scope == "" || ts.IsZero() {
		return
	}
	if b.Watermarks == nil {
		b.Watermarks = map[string]time.Time{}
	}
	if current, ok := b.Watermarks[scope]; !ok || ts.After(current) {
		b.Watermarks[scope] = ts
	}
}

func (b *Batch) Warn(msg string) {
	if msg == "" {
		return
	}
	b.Warnings = append(b.Warnings, msg)
}

func (b *Batch) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Messages) + len(b.Issues) + len(b.PullRequests) + len(b.CodeIssues)
}

type Collector interface {
	Source() Source
	Fetch(ctx context.Context, rc RunContext) (*Batch, error)
}
