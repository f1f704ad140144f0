package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tangled.sh/tangled.sh/elevator/elevator/queue"
)

// Runner polls the scheduler and hands due demotions to a worker queue.
type Runner struct {
	s        *SqliteScheduler
	q        *queue.Queue
	exec     Executor
	interval time.Duration
	batch    int
	l        *slog.Logger
}

func NewRunner(s *SqliteScheduler, q *queue.Queue, exec Executor, interval time.Duration, l *slog.Logger) *Runner {
	return &Runner{
		s:        s,
		q:        q,
		exec:     exec,
		interval: interval,
		batch:    50,
		l:        l,
	}
}

// Start runs the runner in the background. The returned func cancels it and
// waits for Run to return, after which nothing is enqueued anymore.
func (r *Runner) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Run blocks until ctx is done. Jobs a crashed process left running are
// handed back to pending first.
func (r *Runner) Run(ctx context.Context) {
	n, err := r.s.ResetRunning(context.WithoutCancel(ctx))
	if err != nil {
		r.l.Error("resetting stale demotions", "error", err)
	} else if n > 0 {
		r.l.Warn("reset stale running demotions", "count", n)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.l.Error("polling scheduled demotions", "error", err)
			}
		}
	}
}

// Poll enqueues every due job it manages to claim and returns how many
// were handed off.
func (r *Runner) Poll(ctx context.Context) (int, error) {
	jobs, err := r.s.Due(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	handed := 0
	for _, job := range jobs {
		ok, err := r.s.Claim(ctx, job.ID)
		if err != nil {
			return handed, err
		}
		if !ok {
			continue
		}

		l := r.l.With("job", job.ID, "user", job.Demotion.User, "org", job.Demotion.Organization)
		enqueued := r.q.Enqueue(queue.Job{
			Run: func() error {
				bg := context.WithoutCancel(ctx)
				if ctx.Err() != nil {
					// shutting down before the job started; leave it for the next process
					r.release(bg, l, job.ID)
					return nil
				}

				runErr := r.exec(bg, job.Demotion)
				if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
					l.Warn("demotion interrupted, releasing", "error", runErr)
					r.release(bg, l, job.ID)
					return nil
				}
				if err := r.s.Finish(bg, job.ID, runErr); err != nil {
					l.Error("recording demotion outcome", "error", err)
				}
				return runErr
			},
			OnFail: func(err error) {
				l.Error("demotion failed", "error", err)
			},
		})
		if !enqueued {
			// hand the claim back so the next poll picks it up again
			l.Error("failed to enqueue demotion: queue is full")
			r.release(context.WithoutCancel(ctx), l, job.ID)
			continue
		}
		l.Info("demotion enqueued")
		handed++
	}

	return handed, nil
}

func (r *Runner) release(ctx context.Context, l *slog.Logger, id string) {
	if err := r.s.Release(ctx, id); err != nil {
		l.Error("releasing demotion", "error", err)
	}
}
