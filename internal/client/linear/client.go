// Package linear is a minimal GraphQL client for the Linear API covering
// team discovery and incremental issue listing.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized means the API key was rejected.
var ErrUnauthorized = errors.New("linear: unauthorized")

const defaultBaseURL = "https://api.linear.app/graphql"

type Client struct {
	BaseURL  string
	HTTP     *http.Client
	MaxRetry int
	Backoff  time.Duration
	PageSize int
}

type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Issue struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	URL      string `json:"url"`
	Assignee *struct {
		Name string `json:"name"`
	} `json:"assignee"`
	Team *struct {
		ID string `json:"id"`
	} `json:"team"`
	Parent *struct {
		ID         string `json:"id"`
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
	} `json:"parent"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const issueFields = `
      id
      identifier
      title
      description
      state { name type }
      url
      assignee { name }
      team { id }
      parent { id identifier title }
      createdAt
      updatedAt`

const issuesQuery = `query Issues($filter: IssueFilter, $first: Int, $after: String) {
  issues(filter: $filter, first: $first, after: $after) {
    nodes {` + issueFields + `
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const teamsQuery = `query Teams {
  teams {
    nodes { id key name }
  }
}`

type issuesPayload struct {
	Issues struct {
		Nodes    []Issue `json:"nodes"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"issues"`
}

type teamsPayload struct {
	Teams struct {
		Nodes []Team `json:"nodes"`
	} `json:"teams"`
}

func (c *Client) Teams(ctx context.Context, token string) ([]Team, error) {
	var payload teamsPayload
	if err := c.postWithRetry(ctx, token, teamsQuery, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Teams.Nodes, nil
}

// Issues lists issues updated at or after since, newest filter applied
// server-side, following connection pages until exhausted. An empty
// teamID lists across the whole workspace.
func (c *Client) Issues(ctx context.Context, token, teamID string, since time.Time) ([]Issue, error) {
	filter := map[string]any{}
	if !since.IsZero() {
		filter["updatedAt"] = map[string]any{"gte": since.UTC().Format(time.RFC3339)}
	}
	if teamID != "" {
		filter["team"] = map[string]any{"id": map[string]any{"eq": teamID}}
	}
	return c.pagedIssues(ctx, token, filter, c.pageSize())
}

// SubIssues lists the direct children of a parent issue.
func (c *Client) SubIssues(ctx context.Context, token, parentID string) ([]Issue, error) {
	filter := map[string]any{
		"parent": map[string]any{"id": map[string]any{"eq": parentID}},
	}
	return c.pagedIssues(ctx, token, filter, 50)
}

func (c *Client) pagedIssues(ctx context.Context, token string, filter map[string]any, pageSize int) ([]Issue, error) {
	var all []Issue
	after := ""
	for {
		vars := map[string]any{"filter": filter, "first": pageSize}
		if after != "" {
			vars["after"] = after
		}
		var payload issuesPayload
		if err := c.postWithRetry(ctx, token, issuesQuery, vars, &payload); err != nil {
			return nil, err
		}
		all = append(all, payload.Issues.Nodes...)
		page := payload.Issues.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		after = page.EndCursor
	}
	return all, nil
}

func (c *Client) postWithRetry(ctx context.Context, token, query string, variables map[string]any, out any) error {
	maxRetry := c.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		err := c.post(ctx, token, query, variables, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
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

func (c *Client) post(ctx context.Context, token, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("linear http %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("linear decode: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
			lower := strings.ToLower(e.Message)
			if strings.Contains(lower, "authentication") || strings.Contains(lower, "not authorized") {
				return ErrUnauthorized
			}
		}
		return fmt.Errorf("linear graphql: %s", strings.Join(msgs, "; "))
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Client) endpoint() string {
	base := strings.TrimSpace(c.BaseURL)
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

func (c *Client) backoffBase() time.Duration {
	if c.Backoff > 0 {
		return c.Backoff
	}
	return 400 * time.Millisecond
}

func (c *Client) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return 100
}
