package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"teamsync/internal/models"
)

func takeQueued(q *Queue) []task {
	var out []task
	for {
		select {
		case tk := <-q.tasks:
			out = append(out, tk)
		default:
			return out
		}
	}
}

func TestSweeper_QueuesConnectedAutoSyncSources(t *testing.T) {
	repo := newStubRepo()
	repo.active = []models.Tenant{
		*activeTenant("t-ok", models.TierScale),
		*activeTenant("t-pro", models.TierPro),
		*activeTenant("t-off", models.TierScale),
		*activeTenant("t-bare", models.TierPro),
	}
	repo.connected["t-ok"] = []string{"github", "slack"}
	repo.connected["t-pro"] = []string{"github", "linear"}
	repo.connected["t-off"] = []string{"slack"}
	repo.configs["t-off"] = &models.TenantConfig{
		TenantID:         "t-off",
		WorkflowSettings: datatypes.JSONMap{"auto_sync": false},
	}

	q := NewQueue(&scriptedRunner{}, queueConfig(16, 0), zap.NewNop())
	sweeper := NewSweeper(repo, q, zap.NewNop())

	queued, err := sweeper.EnqueueDueRuns(context.Background(), []string{"slack", "github"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if queued != 2 {
		t.Fatalf("queued=%d want 2", queued)
	}

	tasks := takeQueued(q)
	if len(tasks) != 2 {
		t.Fatalf("tasks=%d want 2", len(tasks))
	}
	// t-pro has github connected but sits below the Scale tier; t-off
	// turned auto sync off; t-bare has nothing connected.
	if tasks[0].tenantID != "t-ok" || tasks[0].source != "slack" {
		t.Fatalf("first task=%+v", tasks[0])
	}
	if tasks[1].tenantID != "t-ok" || tasks[1].source != "github" {
		t.Fatalf("second task=%+v", tasks[1])
	}
}

func TestSweeper_SweepOnlyTouchesListedSources(t *testing.T) {
	repo := newStubRepo()
	repo.active = []models.Tenant{*activeTenant("t1", models.TierPro)}
	repo.connected["t1"] = []string{"linear", "slack"}

	q := NewQueue(&scriptedRunner{}, queueConfig(16, 0), zap.NewNop())
	sweeper := NewSweeper(repo, q, zap.NewNop())

	queued, err := sweeper.EnqueueDueRuns(context.Background(), []string{"linear"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if queued != 1 {
		t.Fatalf("queued=%d want 1", queued)
	}
	tasks := takeQueued(q)
	if len(tasks) != 1 || tasks[0].source != "linear" {
		t.Fatalf("tasks=%+v", tasks)
	}
}

func TestSweeper_CountsOnlyRunsThatFit(t *testing.T) {
	repo := newStubRepo()
	repo.active = []models.Tenant{*activeTenant("t1", models.TierScale)}
	repo.connected["t1"] = []string{"github", "slack"}

	q := NewQueue(&scriptedRunner{}, queueConfig(1, 0), zap.NewNop())
	sweeper := NewSweeper(repo, q, zap.NewNop())

	queued, err := sweeper.EnqueueDueRuns(context.Background(), []string{"slack", "github"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if queued != 1 {
		t.Fatalf("queued=%d want 1 when the queue is full", queued)
	}
}

func TestSweeper_ActiveTenantLookupFailurePropagates(t *testing.T) {
	repo := newStubRepo()
	repo.activeErr = errors.New("db closed")

	q := NewQueue(&scriptedRunner{}, queueConfig(4, 0), zap.NewNop())
	sweeper := NewSweeper(repo, q, zap.NewNop())

	if _, err := sweeper.EnqueueDueRuns(context.Background(), []string{"slack"}); err == nil {
		t.Fatalf("expected listing failure to propagate")
	}
}

func TestSweeper_SkipsTenantWhoseSourcesFailToLoad(t *testing.T) {
	repo := newStubRepo()
	repo.active = []models.Tenant{*activeTenant("t1", models.TierPro)}
	repo.sourcesErr = errors.New("db closed")

	q := NewQueue(&scriptedRunner{}, queueConfig(4, 0), zap.NewNop())
	sweeper := NewSweeper(repo, q, zap.NewNop())

	queued, err := sweeper.EnqueueDueRuns(context.Background(), []string{"slack"})
	if err != nil {
		t.Fatalf("per-tenant failures must not abort the sweep: %v", err)
	}
	if queued != 0 {
		t.Fatalf("queued=%d want 0", queued)
	}
}

func TestSweeper_ExpireTrialsReportsCount(t *testing.T) {
	repo := newStubRepo()
	repo.expired = 3

	sweeper := NewSweeper(repo, NewQueue(&scriptedRunner{}, queueConfig(4, 0), zap.NewNop()), zap.NewNop())
	n, err := sweeper.ExpireTrials(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n != 3 {
		t.Fatalf("expired=%d want 3", n)
	}
}
