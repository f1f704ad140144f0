package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"tangled.sh/tangled.sh/elevator/elevator/models"
)

// RedisStore keeps one hash per request and a sorted set per user whose
// score is the request time in microseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
}

const (
	requestKey = "%s:request:%s:%d"
	historyKey = "%s:history:%s"
)

type RedisStoreOpt func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOpt {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisStoreOpt) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "elevation",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) Stop() {
	s.client.Close()
}

func (s *RedisStore) requestKey(user string, requestedAt time.Time) string {
	return fmt.Sprintf(requestKey, s.prefix, user, requestedAt.UnixNano())
}

func (s *RedisStore) historyKey(user string) string {
	return fmt.Sprintf(historyKey, s.prefix, user)
}

func (s *RedisStore) Create(ctx context.Context, req models.ElevationRequest) error {
	if !req.Status.Valid() {
		return ErrInvalidStatus
	}

	key := s.requestKey(req.User, req.RequestedAt)
	fields := map[string]any{
		"user":         req.User,
		"requested_at": req.RequestedAt.UnixNano(),
		"issue_number": req.IssueNumber,
		"repo":         req.Repo,
		"status":       string(req.Status),
	}
	if req.ElevatedAt != nil {
		fields["elevated_at"] = req.ElevatedAt.UnixNano()
	}
	if req.DemotedAt != nil {
		fields["demoted_at"] = req.DemotedAt.UnixNano()
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.ZAdd(ctx, s.historyKey(req.User), redis.Z{
				Score:  float64(req.RequestedAt.UnixMicro()),
				Member: strconv.FormatInt(req.RequestedAt.UnixNano(), 10),
			})
			return nil
		})
		return err
	}, key)

	// another writer created the same record between WATCH and EXEC
	if errors.Is(err, redis.TxFailedErr) {
		return ErrAlreadyExists
	}
	return err
}

func (s *RedisStore) Latest(ctx context.Context, user string) (*models.ElevationRequest, error) {
	members, err := s.client.ZRevRange(ctx, s.historyKey(user), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	return s.get(ctx, user, members[0])
}

func (s *RedisStore) History(ctx context.Context, user string) ([]models.ElevationRequest, error) {
	members, err := s.client.ZRevRange(ctx, s.historyKey(user), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var reqs []models.ElevationRequest
	for _, m := range members {
		req, err := s.get(ctx, user, m)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, nil
}

func (s *RedisStore) get(ctx context.Context, user, member string) (*models.ElevationRequest, error) {
	ns, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt history entry %q: %w", member, err)
	}

	fields, err := s.client.HGetAll(ctx, s.requestKey(user, time.Unix(0, ns))).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return decodeRequest(fields)
}

func (s *RedisStore) Transition(ctx context.Context, key models.RequestKey, from, to models.Status, at time.Time) error {
	if err := validateTransition(from, to); err != nil {
		return err
	}

	rk := s.requestKey(key.User, key.RequestedAt)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rk, "status").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.Status(current) != from {
			return ErrStatusConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch to {
			case models.StatusElevated:
				pipe.HSet(ctx, rk, "status", string(to), "elevated_at", at.UnixNano())
			case models.StatusDemoted:
				pipe.HSet(ctx, rk, "status", string(to), "demoted_at", at.UnixNano())
			case models.StatusPending:
				pipe.HSet(ctx, rk, "status", string(to))
				pipe.HDel(ctx, rk, "elevated_at")
			}
			return nil
		})
		return err
	}, rk)

	// the key changed between WATCH and EXEC
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStatusConflict
	}
	return err
}

func decodeRequest(fields map[string]string) (*models.ElevationRequest, error) {
	var req models.ElevationRequest
	req.User = fields["user"]
	req.Repo = fields["repo"]
	req.Status = models.Status(fields["status"])

	requestedAt, err := strconv.ParseInt(fields["requested_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad requested_at: %w", err)
	}
	req.RequestedAt = time.Unix(0, requestedAt).UTC()

	req.IssueNumber, err = strconv.ParseInt(fields["issue_number"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad issue_number: %w", err)
	}

	for name, dst := range map[string]**time.Time{
		"elevated_at": &req.ElevatedAt,
		"demoted_at":  &req.DemotedAt,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", name, err)
		}
		t := time.Unix(0, n).UTC()
		*dst = &t
	}

	return &req, nil
}
