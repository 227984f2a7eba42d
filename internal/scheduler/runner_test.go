package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abandoned-cart-engine/internal/service"
)

type taskRepoStub struct {
	claimable map[string]bool
	claims    []string
	finished  map[string]time.Time
}

func newTaskRepoStub() *taskRepoStub {
	return &taskRepoStub{
		claimable: make(map[string]bool),
		finished:  make(map[string]time.Time),
	}
}

func (s *taskRepoStub) ClaimDue(ctx context.Context, name string, now time.Time) (bool, error) {
	s.claims = append(s.claims, name)
	return s.claimable[name], nil
}

func (s *taskRepoStub) Finish(ctx context.Context, name string, next time.Time) error {
	s.finished[name] = next
	return nil
}

func (s *taskRepoStub) RelaunchStuck(ctx context.Context, now time.Time, threshold time.Duration) (int64, error) {
	return 0, nil
}

func TestRunDueTasks_ExecutesOnlyClaimedTasks(t *testing.T) {
	repo := newTaskRepoStub()
	repo.claimable["task-a"] = true

	ranA, ranB := 0, 0
	r := NewRunner(repo, time.Minute, []Task{
		{Name: "task-a", Interval: 10 * time.Minute, Run: func(ctx context.Context) (*service.Result, error) {
			ranA++
			return &service.Result{Count: 1, Summary: "ok"}, nil
		}},
		{Name: "task-b", Interval: 10 * time.Minute, Run: func(ctx context.Context) (*service.Result, error) {
			ranB++
			return &service.Result{}, nil
		}},
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.runDueTasks()

	assert.Equal(t, 1, ranA)
	assert.Equal(t, 0, ranB)
	assert.Equal(t, []string{"task-a", "task-b"}, repo.claims)
}

func TestRunDueTasks_ReschedulesAfterRun(t *testing.T) {
	repo := newTaskRepoStub()
	repo.claimable["task-a"] = true

	r := NewRunner(repo, time.Minute, []Task{
		{Name: "task-a", Interval: 10 * time.Minute, Run: func(ctx context.Context) (*service.Result, error) {
			return &service.Result{}, nil
		}},
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.runDueTasks()

	next, ok := repo.finished["task-a"]
	require.True(t, ok)
	assert.True(t, next.Equal(now.Add(10*time.Minute)))
}

func TestRunDueTasks_FailedRunStillReschedules(t *testing.T) {
	repo := newTaskRepoStub()
	repo.claimable["task-a"] = true

	r := NewRunner(repo, time.Minute, []Task{
		{Name: "task-a", Interval: time.Minute, Run: func(ctx context.Context) (*service.Result, error) {
			return nil, errors.New("host database unavailable")
		}},
	})

	r.runDueTasks()

	_, ok := repo.finished["task-a"]
	assert.True(t, ok, "a failed run must not leave the task in the running state")
}
