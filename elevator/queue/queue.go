package queue

import (
	"sync"
)

type Job struct {
	Run    func() error
	OnFail func(error)
}

// Queue is a bounded job buffer drained by a fixed set of workers.
type Queue struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

func NewQueue(size, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
	}
}

// Enqueue never blocks; it reports false when the buffer is full.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		if err := job.Run(); err != nil && job.OnFail != nil {
			job.OnFail(err)
		}
	}
}

// Stop closes the queue and waits for in-flight jobs. Enqueue must not be
// called afterwards.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
}
