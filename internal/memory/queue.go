package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// DefaultPollWait bounds how long Dequeue waits for a task.
const DefaultPollWait = time.Second

// Queue is a FIFO core.TaskQueue. Delivered tasks stay in flight until
// acknowledged.
type Queue struct {
	mu       sync.Mutex
	seq      int
	items    []core.Task
	inFlight map[string]core.Task
	notify   chan struct{}
	pollWait time.Duration
}

var _ core.TaskQueue = (*Queue)(nil)

// NewQueue creates an empty queue. A non-positive pollWait selects
// DefaultPollWait.
func NewQueue(pollWait time.Duration) *Queue {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	return &Queue{
		inFlight: make(map[string]core.Task),
		notify:   make(chan struct{}, 1),
		pollWait: pollWait,
	}
}

func (q *Queue) Enqueue(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	q.seq++
	q.items = append(q.items, core.Task{JobID: jobID, Receipt: strconv.Itoa(q.seq)})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (core.Task, error) {
	timer := time.NewTimer(q.pollWait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items = q.items[1:]
			q.inFlight[t.Receipt] = t
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return core.Task{}, ctx.Err()
		case <-timer.C:
			return core.Task{}, core.ErrQueueEmpty
		case <-q.notify:
		}
	}
}

func (q *Queue) Ack(_ context.Context, t core.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, t.Receipt)
	return nil
}

// Len returns the number of tasks waiting for delivery.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight returns the number of delivered, unacknowledged tasks.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
