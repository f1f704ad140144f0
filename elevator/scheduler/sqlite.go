package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"tangled.sh/tangled.sh/elevator/elevator/models"
)

// SqliteScheduler persists demotions so they survive restarts; a Runner
// picks them up once due.
type SqliteScheduler struct {
	db  *sql.DB
	now func() time.Time
}

type SqliteSchedulerOpt func(*SqliteScheduler)

func WithClock(now func() time.Time) SqliteSchedulerOpt {
	return func(s *SqliteScheduler) {
		s.now = now
	}
}

func NewSqliteScheduler(dbPath string, opts ...SqliteSchedulerOpt) (*SqliteScheduler, error) {
	params := []string{
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_busy_timeout=5000",
	}

	db, err := sql.Open("sqlite3", dbPath+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SqliteScheduler{
		db:  db,
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	_, err = s.db.Exec(`
		create table if not exists scheduled_demotions (
			id text primary key,
			payload text not null, -- json
			due_at integer not null, -- unix nanos
			state text not null default 'pending',
			last_error text not null default '',
			created_at integer not null
		);

		create index if not exists scheduled_demotions_due
			on scheduled_demotions (state, due_at);
	`)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SqliteScheduler) Stop() {
	s.db.Close()
}

func (s *SqliteScheduler) Schedule(ctx context.Context, d models.Demotion) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDemotion, err)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	now := s.now()
	due := now.Add(time.Duration(d.WaitSeconds) * time.Second)

	_, err = s.db.ExecContext(ctx,
		`insert into scheduled_demotions (id, payload, due_at, created_at) values (?, ?, ?, ?)`,
		uuid.New().String(),
		string(payload),
		due.UnixNano(),
		now.UnixNano(),
	)
	return err
}

// Due lists pending jobs whose time has come, oldest first.
func (s *SqliteScheduler) Due(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, payload, due_at, state, last_error, created_at
		from scheduled_demotions
		where state = ? and due_at <= ?
		order by due_at asc
		limit ?
	`, StatePending, s.now().UnixNano(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim moves a job from pending to running. Only one caller can win.
func (s *SqliteScheduler) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update scheduled_demotions set state = ? where id = ? and state = ?`,
		StateRunning, id, StatePending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release returns a claimed job that could not be started to pending.
func (s *SqliteScheduler) Release(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update scheduled_demotions set state = ? where id = ? and state = ?`,
		StatePending, id, StateRunning,
	)
	return err
}

// ResetRunning returns every job left running by a previous process to
// pending. Only call it before any runner of this database is started.
func (s *SqliteScheduler) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update scheduled_demotions set state = ? where state = ?`,
		StatePending, StateRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Finish records the outcome of a running job. Failed jobs are not retried.
func (s *SqliteScheduler) Finish(ctx context.Context, id string, runErr error) error {
	state, msg := StateDone, ""
	if runErr != nil {
		state, msg = StateFailed, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`update scheduled_demotions set state = ?, last_error = ? where id = ? and state = ?`,
		state, msg, id, StateRunning,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SqliteScheduler) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, payload, due_at, state, last_error, created_at
		from scheduled_demotions
		order by created_at asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(rows *sql.Rows) (*Job, error) {
	var (
		job            Job
		payload        string
		due, createdAt int64
	)
	if err := rows.Scan(&job.ID, &payload, &due, &job.State, &job.LastError, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &job.Demotion); err != nil {
		return nil, errors.Join(ErrInvalidDemotion, err)
	}
	job.DueAt = time.Unix(0, due)
	job.CreatedAt = time.Unix(0, createdAt)
	return &job, nil
}
