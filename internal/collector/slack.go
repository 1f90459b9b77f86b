package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"teamsync/internal/models"
)

const slackPageLimit = 1000

// SlackCollector walks channels, DMs, and group DMs, keeping messages
// that involve the connected identity or a tracked channel, with
// optional thread-reply fan-out.
type SlackCollector struct {
	// APIURL overrides the Slack endpoint. Tests point it at a local
	// server; empty means production.
	APIURL       string
	HTTP         *http.Client
	MaxRetry     int
	Backoff      time.Duration
	ReplyWorkers int
}

func (s *SlackCollector) Source() Source { return SourceSlack }

func (s *SlackCollector) Fetch(ctx context.Context, rc RunContext) (*Batch, error) {
	api := s.client(rc.Token)

	selfID := rc.SelfUserID
	if selfID == "" {
		auth, err := s.authTest(ctx, api)
		if err != nil {
			return nil, mapSlackErr(err)
		}
		selfID = auth.UserID
	}

	channels, err := s.listConversations(ctx, api)
	if err != nil {
		return nil, mapSlackErr(err)
	}

	// Allow-list keeps the named channels; DMs and group DMs always
	// involve the connected identity, so they stay in scope.
	selected := make([]slack.Channel, 0, len(channels))
	for _, ch := range channels {
		if len(rc.Scopes) == 0 || rc.InScope(ch.ID) || ch.IsIM || ch.IsMpIM {
			selected = append(selected, ch)
		}
	}

	batch := NewBatch()
	mention := "<@" + selfID + ">"

	type threadJob struct {
		channelID   string
		channelName string
		isDM        bool
		scoped      bool
		rootTS      string
		oldest      time.Time
	}
	var jobs []threadJob

	for _, ch := range selected {
		isDM := ch.IsIM || ch.IsMpIM
		scoped := len(rc.Scopes) > 0 && rc.InScope(ch.ID)
		oldest := rc.SinceFor(ch.ID)
		name := channelName(ch)

		history, err := s.channelHistory(ctx, api, ch.ID, oldest)
		if err != nil {
			return nil, mapSlackErr(err)
		}
		for _, msg := range history {
			eventAt, ok := tsTime(msg.Timestamp)
			if !ok || eventAt.Before(oldest) {
				continue
			}
			rootTS := msg.ThreadTimestamp
			isReply := rootTS != "" && rootTS != msg.Timestamp
			if includeSlackMessage(isDM, scoped, selfID, mention, msgAuthor(msg), msg.Text) {
				stored := rootTS
				if stored == "" && msg.ReplyCount > 0 {
					stored = msg.Timestamp
				}
				batch.Messages = append(batch.Messages, buildSlackMessage(rc.TenantID, ch.ID, name, msg, eventAt, stored, isDM, isReply))
				batch.Observe(ch.ID, eventAt)
			}
			if rc.ThreadReplies && (msg.ReplyCount > 0 || (rootTS != "" && rootTS == msg.Timestamp)) {
				root := rootTS
				if root == "" {
					root = msg.Timestamp
				}
				jobs = append(jobs, threadJob{
					channelID:   ch.ID,
					channelName: name,
					isDM:        isDM,
					scoped:      scoped,
					rootTS:      root,
					oldest:      oldest,
				})
			}
		}
	}

	// Replies are independent fetches, so they fan out across a small
	// worker pool. Any fetch failure fails the run.
	if len(jobs) > 0 {
		workers := s.ReplyWorkers
		if workers <= 0 {
			workers = 4
		}
		if workers > len(jobs) {
			workers = len(jobs)
		}

		fanCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		jobCh := make(chan threadJob)
		var mu sync.Mutex
		var firstErr error
		var wg sync.WaitGroup

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for job := range jobCh {
					if fanCtx.Err() != nil {
						continue
					}
					replies, err := s.threadReplies(fanCtx, api, job.channelID, job.rootTS)
					if err != nil {
						mu.Lock()
						if firstErr == nil {
							firstErr = err
						}
						mu.Unlock()
						cancel()
						continue
					}
					for _, reply := range replies {
						if reply.Timestamp == job.rootTS {
							continue
						}
						eventAt, ok := tsTime(reply.Timestamp)
						if !ok || eventAt.Before(job.oldest) {
							continue
						}
						if !includeSlackMessage(job.isDM, job.scoped, selfID, mention, msgAuthor(reply), reply.Text) {
							continue
						}
						mu.Lock()
						batch.Messages = append(batch.Messages, buildSlackMessage(rc.TenantID, job.channelID, job.channelName, reply, eventAt, job.rootTS, job.isDM, true))
						batch.Observe(job.channelID, eventAt)
						mu.Unlock()
					}
				}
			}()
		}

	send:
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-fanCtx.Done():
				break send
			}
		}
		close(jobCh)
		wg.Wait()
		if firstErr != nil {
			return nil, mapSlackErr(firstErr)
		}
	}

	sort.Slice(batch.Messages, func(i, j int) bool {
		a, b := batch.Messages[i], batch.Messages[j]
		if !a.EventAt.Equal(b.EventAt) {
			return a.EventAt.Before(b.EventAt)
		}
		return a.TS < b.TS
	})
	return batch, nil
}

func (s *SlackCollector) client(token string) *slack.Client {
	opts := []slack.Option{}
	if s.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(s.APIURL))
	}
	if s.HTTP != nil {
		opts = append(opts, slack.OptionHTTPClient(s.HTTP))
	}
	return slack.New(token, opts...)
}

func (s *SlackCollector) authTest(ctx context.Context, api *slack.Client) (*slack.AuthTestResponse, error) {
	var auth *slack.AuthTestResponse
	err := s.withRetry(ctx, func() error {
		var callErr error
		auth, callErr = api.AuthTestContext(ctx)
		return callErr
	})
	return auth, err
}

func (s *SlackCollector) listConversations(ctx context.Context, api *slack.Client) ([]slack.Channel, error) {
	var all []slack.Channel
	cursor := ""
	for {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel", "im", "mpim"},
			Limit:           slackPageLimit,
			Cursor:          cursor,
			ExcludeArchived: true,
		}
		var channels []slack.Channel
		var next string
		err := s.withRetry(ctx, func() error {
			var callErr error
			channels, next, callErr = api.GetConversationsContext(ctx, params)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		all = append(all, channels...)
		if next == "" {
			break
		}
		cursor = next
	}
	return all, nil
}

func (s *SlackCollector) channelHistory(ctx context.Context, api *slack.Client, channelID string, oldest time.Time) ([]slack.Message, error) {
	var all []slack.Message
	cursor := ""
	for {
		params := &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     slackPageLimit,
			Oldest:    slackTS(oldest),
			Cursor:    cursor,
		}
		var resp *slack.GetConversationHistoryResponse
		err := s.withRetry(ctx, func() error {
			var callErr error
			resp, callErr = api.GetConversationHistoryContext(ctx, params)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Messages...)
		cursor = resp.ResponseMetaData.NextCursor
		if cursor == "" {
			break
		}
	}
	return all, nil
}

func (s *SlackCollector) threadReplies(ctx context.Context, api *slack.Client, channelID, rootTS string) ([]slack.Message, error) {
	var all []slack.Message
	cursor := ""
	for {
		params := &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: rootTS,
			Limit:     slackPageLimit,
			Cursor:    cursor,
		}
		var msgs []slack.Message
		var next string
		err := s.withRetry(ctx, func() error {
			var callErr error
			msgs, _, next, callErr = api.GetConversationRepliesContext(ctx, params)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
		if next == "" {
			break
		}
		cursor = next
	}
	return all, nil
}

func (s *SlackCollector) withRetry(ctx context.Context, call func() error) error {
	maxRetry := s.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetry; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if isSlackAuthErr(err) || ctx.Err() != nil {
			return err
		}
		wait := s.backoffBase() + time.Duration(attempt)*s.backoffBase()
		var rle *slack.RateLimitedError
		if errors.As(err, &rle) && rle.RetryAfter > 0 {
			// The provider told us exactly how long to wait.
			wait = rle.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (s *SlackCollector) backoffBase() time.Duration {
	if s.Backoff > 0 {
		return s.Backoff
	}
	return 400 * time.Millisecond
}

// Inclusion rules: DMs always; tracked channels wholly; elsewhere only
// messages the connected identity wrote or is mentioned in.
func includeSlackMessage(isDM, scoped bool, selfID, mention, author, text string) bool {
	if isDM {
		return true
	}
	if scoped {
		return true
	}
	return (author != "" && author == selfID) || strings.Contains(text, mention)
}

func buildSlackMessage(tenantID, channelID, channelName string, msg slack.Message, eventAt time.Time, threadTS string, isDM, isReply bool) models.Message {
	out := models.Message{
		TenantID:      tenantID,
		ChannelID:     channelID,
		TS:            msg.Timestamp,
		ChannelName:   channelName,
		UserID:        msgAuthor(msg),
		Text:          msg.Text,
		IsDM:          isDM,
		IsThreadReply: isReply,
		EventAt:       eventAt,
	}
	if threadTS != "" {
		out.ThreadTS = &threadTS
	}
	return out
}

func msgAuthor(msg slack.Message) string {
	if msg.User != "" {
		return msg.User
	}
	return msg.BotID
}

func channelName(ch slack.Channel) string {
	if ch.Name != "" {
		return ch.Name
	}
	if ch.User != "" {
		return ch.User
	}
	return ch.ID
}

func tsTime(ts string) (time.Time, bool) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

func slackTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func mapSlackErr(err error) error {
	if err == nil {
		return nil
	}
	if isSlackAuthErr(err) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}

func isSlackAuthErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
