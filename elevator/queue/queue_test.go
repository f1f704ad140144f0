package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestQueueRunsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue(10, 3)
	q.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		assert.True(t, q.Enqueue(Job{Run: func() error {
			ran.Add(1)
			return nil
		}}))
	}

	q.Stop()
	assert.Equal(t, int32(10), ran.Load())
}

func TestQueueOnFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue(1, 1)
	q.Start()

	var mu sync.Mutex
	var got error
	boom := errors.New("boom")
	q.Enqueue(Job{
		Run: func() error { return boom },
		OnFail: func(err error) {
			mu.Lock()
			got = err
			mu.Unlock()
		},
	})

	q.Stop()
	assert.ErrorIs(t, got, boom)
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(1, 1)
	// not started, so nothing drains the buffer
	assert.True(t, q.Enqueue(Job{Run: func() error { return nil }}))
	assert.False(t, q.Enqueue(Job{Run: func() error { return nil }}))
	q.Start()
	q.Stop()
}
