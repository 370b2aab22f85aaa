package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"

	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/logger"
)

// Handler processes one delivered scheduled event.
type Handler func(ctx context.Context, event *schedule.Event) error

// Runner is the best-effort task runner: it polls the schedule store and
// delivers due events to registered handlers. Delivery is at-least-once (an
// event is only removed after its handler returns) and not guaranteed
// on-time; downstream idempotency guards are expected to absorb duplicates.
// Each invocation self-limits to a bounded batch and relies on being
// re-invoked rather than draining the store in one pass.
type Runner struct {
	repo        schedule.Repository
	log         *logger.Logger
	interval    time.Duration
	batchSize   int
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler

	stop chan struct{}
	done chan struct{}
}

type RunnerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

func NewRunner(cfg RunnerConfig, repo schedule.Repository, log *logger.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runner{
		repo:        repo,
		log:         log,
		interval:    cfg.PollInterval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		handlers:    make(map[string]Handler),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Register attaches the handler for a hook, replacing any previous one.
func (r *Runner) Register(hook string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[hook] = handler
}

// Start begins polling until Stop is called or the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if err := r.RunOnce(ctx, time.Now().UTC()); err != nil {
					r.log.Errorw("scheduler pass failed", "error", err)
				}
			}
		}
	}()
}

// Stop terminates polling and waits for the current pass to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce delivers one bounded batch of due events.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) error {
	var due []*schedule.Event
	operation := func() error {
		var err error
		due, err = r.repo.ListDue(ctx, now, r.batchSize)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	p := pool.New().WithMaxGoroutines(r.concurrency)
	for _, event := range due {
		p.Go(func() {
			r.deliver(ctx, event)
		})
	}
	p.Wait()
	return nil
}

func (r *Runner) deliver(ctx context.Context, event *schedule.Event) {
	r.mu.RLock()
	handler, ok := r.handlers[event.Hook]
	r.mu.RUnlock()

	if !ok {
		r.log.Warnw("no handler registered for hook, dropping event",
			"hook", event.Hook,
			"subscription", event.Key.String(),
		)
		_ = r.repo.Delete(ctx, event.Hook, event.OwnerID, event.Key)
		return
	}

	if err := handler(ctx, event); err != nil {
		// Keep the event stored so a later pass redelivers it.
		r.log.Errorw("scheduled event handler failed",
			"hook", event.Hook,
			"subscription", event.Key.String(),
			"error", err,
		)
		return
	}

	// Only remove the event if the schedule was not replaced mid-handling
	// (handlers may re-schedule the same hook for a future date).
	current, err := r.repo.Get(ctx, event.Hook, event.OwnerID, event.Key)
	if err == nil && current != nil && current.FireAt.Equal(event.FireAt) {
		_ = r.repo.Delete(ctx, event.Hook, event.OwnerID, event.Key)
	}
}
