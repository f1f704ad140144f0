package store

import (
	"context"
	"errors"
	"time"

	"tangled.sh/tangled.sh/elevator/elevator/models"
)

// Store holds the append-only history of elevation requests per user.
//
// Transition is a conditional write: it only applies when the record is
// still in the expected prior state, so two concurrent approvals (or a
// redelivered webhook) can never both promote the same request.
type Store interface {
	Create(ctx context.Context, req models.ElevationRequest) error
	Latest(ctx context.Context, user string) (*models.ElevationRequest, error)
	History(ctx context.Context, user string) ([]models.ElevationRequest, error)
	Transition(ctx context.Context, key models.RequestKey, from, to models.Status, at time.Time) error
}

// stopper interface for stores holding connections
type Stopper interface {
	Stop()
}

var (
	ErrNotFound       = errors.New("elevation request not found")
	ErrAlreadyExists  = errors.New("elevation request already exists")
	ErrStatusConflict = errors.New("elevation request is not in the expected status")
	ErrInvalidStatus  = errors.New("invalid elevation status")
)

// ensure that we are satisfying the interface
var (
	_ = []Store{
		&SqliteStore{},
		&RedisStore{},
	}
)

func validateTransition(from, to models.Status) error {
	if !from.Valid() || !to.Valid() || from == to {
		return ErrInvalidStatus
	}
	return nil
}
