package scheduler

import (
	"context"
	"errors"
	"time"

	"tangled.sh/tangled.sh/elevator/elevator/models"
)

// Scheduler accepts a demotion to be executed after its wait has elapsed.
// A nil error only means the demotion was accepted, not that it ran.
type Scheduler interface {
	Schedule(ctx context.Context, d models.Demotion) error
}

// Executor reverses one elevation. It runs with no state shared with the
// code that scheduled it.
type Executor func(ctx context.Context, d models.Demotion) error

type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

type Job struct {
	ID        string
	Demotion  models.Demotion
	DueAt     time.Time
	State     State
	LastError string
	CreatedAt time.Time
}

var (
	ErrInvalidDemotion = errors.New("invalid demotion")
	ErrJobNotFound     = errors.New("scheduled demotion not found")
)

var _ Scheduler = &SqliteScheduler{}
