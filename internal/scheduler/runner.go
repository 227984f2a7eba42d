// Package scheduler drives the engine's periodic reconciliation tasks.
// Task state lives in the scheduled_task table so several engine
// instances can share one schedule; the runner only executes tasks it
// managed to claim.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"abandoned-cart-engine/internal/repository"
	"abandoned-cart-engine/internal/service"
)

// Operation is one reconciliation entry point on the manager.
type Operation func(ctx context.Context) (*service.Result, error)

// Task binds a scheduled_task record to a manager operation.
type Task struct {
	Name string
	// Interval is how long after a completed run the task becomes due
	// again.
	Interval time.Duration
	Run      Operation
}

// Runner polls the task table and executes due tasks. One poll tick
// checks every registered task; claiming is atomic, so concurrent
// runners never execute the same task twice.
type Runner struct {
	tasks    repository.ScheduledTaskRepository
	registry []Task
	interval time.Duration

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	now func() time.Time
}

// NewRunner creates a task runner polling at the given interval.
func NewRunner(tasks repository.ScheduledTaskRepository, pollInterval time.Duration, registry []Task) *Runner {
	if pollInterval == 0 {
		pollInterval = time.Minute
	}

	return &Runner{
		tasks:    tasks,
		registry: registry,
		interval: pollInterval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the polling loop.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.ticker = time.NewTicker(r.interval)
	r.mu.Unlock()

	log.Printf("[TaskRunner] Started - Interval: %v, Tasks: %d", r.interval, len(r.registry))

	go r.run()
}

func (r *Runner) run() {
	for {
		select {
		case <-r.ticker.C:
			r.runDueTasks()
		case <-r.stopCh:
			log.Printf("[TaskRunner] Stopped")
			return
		}
	}
}

// runDueTasks claims and executes every registered task that is due.
func (r *Runner) runDueTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, task := range r.registry {
		claimed, err := r.tasks.ClaimDue(ctx, task.Name, r.now())
		if err != nil {
			log.Printf("[TaskRunner] Error claiming task %s: %v", task.Name, err)
			continue
		}
		if !claimed {
			continue
		}

		result, err := task.Run(ctx)
		if err != nil {
			log.Printf("[TaskRunner] Task %s failed: %v", task.Name, err)
		} else {
			log.Printf("[TaskRunner] Task %s: %s", task.Name, result.Summary)
		}

		// A failed run still reschedules. The task record must not stay
		// in the running state or the watchdog would flag it as stuck.
		if err := r.tasks.Finish(ctx, task.Name, r.now().Add(task.Interval)); err != nil {
			log.Printf("[TaskRunner] Error rescheduling task %s: %v", task.Name, err)
		}
	}
}

// Stop stops the polling loop.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.ticker != nil {
			r.ticker.Stop()
		}
		close(r.stopCh)
		r.isRunning = false
	})
}
