package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/queue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// database/sql keeps an opener goroutine alive until the db is closed in cleanup
var ignoreSQL = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

func newTestScheduler(t *testing.T) (*SqliteScheduler, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewSqliteScheduler(":memory:", WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, clock
}

func demotion(user string, wait int64) models.Demotion {
	return models.Demotion{
		User:           user,
		InstallationID: 11,
		Organization:   "acme",
		Repository:     "acme/access",
		IssueNumber:    5,
		WaitSeconds:    wait,
	}
}

func TestScheduleValidates(t *testing.T) {
	s, _ := newTestScheduler(t)

	err := s.Schedule(context.Background(), models.Demotion{User: "alice"})
	assert.ErrorIs(t, err, ErrInvalidDemotion)
}

func TestDueRespectsWait(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestScheduler(t)

	require.NoError(t, s.Schedule(ctx, demotion("alice", 3600)))
	require.NoError(t, s.Schedule(ctx, demotion("bob", 60)))

	due, err := s.Due(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(2 * time.Minute)
	due, err = s.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "bob", due[0].Demotion.User)
	assert.Equal(t, int64(11), due[0].Demotion.InstallationID)

	clock.Advance(time.Hour)
	due, err = s.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "bob", due[0].Demotion.User)
}

func TestClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(ctx, demotion("alice", 0)))

	due, err := s.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err := s.Claim(ctx, due[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, due[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, due[0].ID))
	ok, err = s.Claim(ctx, due[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Finish(ctx, due[0].ID, errors.New("boom")))
	assert.ErrorIs(t, s.Finish(ctx, due[0].ID, nil), ErrJobNotFound)

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StateFailed, jobs[0].State)
	assert.Equal(t, "boom", jobs[0].LastError)
}

func TestRunnerPoll(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	ctx := context.Background()
	s, clock := newTestScheduler(t)
	q := queue.NewQueue(10, 2)
	q.Start()

	var mu sync.Mutex
	var executed []string
	exec := func(ctx context.Context, d models.Demotion) error {
		mu.Lock()
		defer mu.Unlock()
		executed = append(executed, d.User)
		if d.User == "bob" {
			return errors.New("github unavailable")
		}
		return nil
	}

	r := NewRunner(s, q, exec, time.Second, slog.Default())

	require.NoError(t, s.Schedule(ctx, demotion("alice", 10)))
	require.NoError(t, s.Schedule(ctx, demotion("bob", 10)))
	require.NoError(t, s.Schedule(ctx, demotion("carol", 7200)))

	n, err := r.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(time.Minute)
	n, err = r.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// a second poll must not pick the same jobs up again
	n, err = r.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	q.Stop()

	assert.ElementsMatch(t, []string{"alice", "bob"}, executed)

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	states := map[string]State{}
	for _, j := range jobs {
		states[j.Demotion.User] = j.State
	}
	assert.Equal(t, StateDone, states["alice"])
	assert.Equal(t, StateFailed, states["bob"])
	assert.Equal(t, StatePending, states["carol"])
}

func TestRunnerStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	s, _ := newTestScheduler(t)
	q := queue.NewQueue(1, 1)
	q.Start()
	defer q.Stop()

	r := NewRunner(s, q, func(context.Context, models.Demotion) error { return nil }, 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func jobStates(t *testing.T, s *SqliteScheduler) map[string]State {
	t.Helper()
	jobs, err := s.Jobs(context.Background())
	require.NoError(t, err)
	states := map[string]State{}
	for _, j := range jobs {
		states[j.Demotion.User] = j.State
	}
	return states
}

func TestRunnerReleasesJobsQueuedAtShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(context.Background(), demotion("alice", 0)))

	// workers are started only after cancel, so the job is still queued
	q := queue.NewQueue(1, 1)
	var calls atomic.Int32
	r := NewRunner(s, q, func(context.Context, models.Demotion) error {
		calls.Add(1)
		return nil
	}, time.Second, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	n, err := r.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancel()
	q.Start()
	q.Stop()

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StatePending, jobStates(t, s)["alice"])

	due, err := s.Due(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestRunnerFinishesInFlightJobAfterCancel(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(context.Background(), demotion("alice", 0)))

	q := queue.NewQueue(1, 1)
	q.Start()

	started := make(chan struct{})
	unblock := make(chan struct{})
	var execErr error
	r := NewRunner(s, q, func(ctx context.Context, d models.Demotion) error {
		close(started)
		<-unblock
		execErr = ctx.Err()
		return ctx.Err()
	}, time.Second, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Poll(ctx)
	require.NoError(t, err)

	<-started
	cancel()
	close(unblock)
	q.Stop()

	assert.NoError(t, execErr)
	assert.Equal(t, StateDone, jobStates(t, s)["alice"])
}

func TestRunnerReleasesInterruptedJob(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	ctx := context.Background()
	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(ctx, demotion("alice", 0)))

	q := queue.NewQueue(1, 1)
	q.Start()

	r := NewRunner(s, q, func(context.Context, models.Demotion) error {
		return fmt.Errorf("removing owner: %w", context.DeadlineExceeded)
	}, time.Second, slog.Default())

	_, err := r.Poll(ctx)
	require.NoError(t, err)
	q.Stop()

	assert.Equal(t, StatePending, jobStates(t, s)["alice"])
}

func TestResetRunning(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(ctx, demotion("alice", 0)))
	require.NoError(t, s.Schedule(ctx, demotion("bob", 0)))
	require.NoError(t, s.Schedule(ctx, demotion("carol", 0)))

	due, err := s.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	for _, j := range due[:2] {
		ok, err := s.Claim(ctx, j.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, s.Finish(ctx, due[1].ID, nil))

	n, err := s.ResetRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	states := jobStates(t, s)
	assert.Equal(t, StatePending, states[due[0].Demotion.User])
	assert.Equal(t, StateDone, states[due[1].Demotion.User])
	assert.Equal(t, StatePending, states[due[2].Demotion.User])
}

func TestRunnerResetsStaleJobsOnStart(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(context.Background(), demotion("alice", 0)))

	due, err := s.Due(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	ok, err := s.Claim(context.Background(), due[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	q := queue.NewQueue(1, 1)
	r := NewRunner(s, q, func(context.Context, models.Demotion) error { return nil }, time.Hour, slog.Default())

	// an already canceled ctx still resets before returning
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Equal(t, StatePending, jobStates(t, s)["alice"])
}

func TestRunnerStartStopWaits(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSQL)

	s, _ := newTestScheduler(t)
	require.NoError(t, s.Schedule(context.Background(), demotion("alice", 0)))

	q := queue.NewQueue(10, 1)
	q.Start()

	var calls atomic.Int32
	r := NewRunner(s, q, func(context.Context, models.Demotion) error {
		calls.Add(1)
		return nil
	}, 5*time.Millisecond, slog.Default())

	stop := r.Start(context.Background())
	assert.Eventually(t, func() bool {
		return jobStates(t, s)["alice"] == StateDone
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}

	// the runner has returned, so closing the queue cannot race an Enqueue
	q.Stop()
	assert.Equal(t, int32(1), calls.Load())
}
