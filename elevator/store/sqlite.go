// an sqlite3 backed elevation request store
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"tangled.sh/tangled.sh/elevator/elevator/models"
)

type SqliteStore struct {
	db        *sql.DB
	tableName string
}

type SqliteStoreOpt func(*SqliteStore)

func WithTableName(name string) SqliteStoreOpt {
	return func(s *SqliteStore) {
		s.tableName = name
	}
}

func NewSqliteStore(dbPath string, opts ...SqliteStoreOpt) (*SqliteStore, error) {
	// https://github.com/mattn/go-sqlite3#connection-string
	params := []string{
		"_foreign_keys=1",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_busy_timeout=5000",
	}

	db, err := sql.Open("sqlite3", dbPath+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	s := &SqliteStore{
		db:        db,
		tableName: "elevation_requests",
	}

	for _, o := range opts {
		o(s)
	}

	if err := s.init(); err != nil {
		return nil, err
	}

	return s, nil
}

// timestamps are unix nanos so that requested_at sorts numerically
func (s *SqliteStore) init() error {
	_, err := s.db.Exec(`
		create table if not exists ` + s.tableName + ` (
			user text not null,
			requested_at integer not null,
			issue_number integer not null,
			repo text not null,
			status text not null check (status in ('pending', 'elevated', 'demoted')),
			elevated_at integer,
			demoted_at integer,

			primary key (user, requested_at)
		);
	`)
	return err
}

func (s *SqliteStore) Stop() {
	s.db.Close()
}

func (s *SqliteStore) Create(ctx context.Context, req models.ElevationRequest) error {
	if !req.Status.Valid() {
		return ErrInvalidStatus
	}

	query := fmt.Sprintf(`
		insert or ignore into %s (user, requested_at, issue_number, repo, status, elevated_at, demoted_at)
		values (?, ?, ?, ?, ?, ?, ?);
	`, s.tableName)

	res, err := s.db.ExecContext(ctx, query,
		req.User,
		req.RequestedAt.UnixNano(),
		req.IssueNumber,
		req.Repo,
		req.Status,
		nanos(req.ElevatedAt),
		nanos(req.DemotedAt),
	)
	if err != nil {
		return err
	}

	num, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if num == 0 {
		return ErrAlreadyExists
	}

	return nil
}

func (s *SqliteStore) Latest(ctx context.Context, user string) (*models.ElevationRequest, error) {
	query := fmt.Sprintf(`
		select user, requested_at, issue_number, repo, status, elevated_at, demoted_at
		from %s
		where user = ?
		order by requested_at desc
		limit 1;
	`, s.tableName)

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, user))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (s *SqliteStore) History(ctx context.Context, user string) ([]models.ElevationRequest, error) {
	query := fmt.Sprintf(`
		select user, requested_at, issue_number, repo, status, elevated_at, demoted_at
		from %s
		where user = ?
		order by requested_at desc;
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.ElevationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reqs, nil
}

func (s *SqliteStore) Transition(ctx context.Context, key models.RequestKey, from, to models.Status, at time.Time) error {
	if err := validateTransition(from, to); err != nil {
		return err
	}

	var set string
	switch to {
	case models.StatusElevated:
		set = "status = ?, elevated_at = ?"
	case models.StatusDemoted:
		set = "status = ?, demoted_at = ?"
	case models.StatusPending:
		// only used to hand back a claim whose role change failed
		set = "status = ?, elevated_at = null"
	}

	args := []any{to}
	if to != models.StatusPending {
		args = append(args, at.UnixNano())
	}
	args = append(args, key.User, key.RequestedAt.UnixNano(), from)

	query := fmt.Sprintf(`
		update %s set %s
		where user = ? and requested_at = ? and status = ?;
	`, s.tableName, set)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	num, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if num == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select count(1) from %s where user = ? and requested_at = ?;`, s.tableName),
		key.User, key.RequestedAt.UnixNano(),
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.ElevationRequest, error) {
	var (
		req                  models.ElevationRequest
		requestedAt          int64
		elevatedAt, demoteAt sql.NullInt64
	)
	err := row.Scan(&req.User, &requestedAt, &req.IssueNumber, &req.Repo, &req.Status, &elevatedAt, &demoteAt)
	if err != nil {
		return nil, err
	}

	req.RequestedAt = time.Unix(0, requestedAt).UTC()
	req.ElevatedAt = fromNanos(elevatedAt)
	req.DemotedAt = fromNanos(demoteAt)
	return &req, nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
