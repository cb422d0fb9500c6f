// Package asyncqueue provides the in-process async queue abstraction the
// outbox publisher and the long-process/workflow runners schedule
// continuations on. Its contract is "at-least-once dispatch of a named job
// with a payload, optionally delayed", per the specification's external
// interfaces section. The implementation here is a bounded, channel-backed
// worker pool in the spirit of fxsml-gopipe's channel/pipe packages,
// generalized to this narrower enqueue/schedule contract rather than
// adopting gopipe's generic pipeline stages wholesale.
package asyncqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Job is one unit of work: a name consumers dispatch on, and an opaque
// payload.
type Job struct {
	Name    string
	Payload any
	Group   string
}

// Handler processes one Job. Returning an error does not retry within the
// queue itself — the outbox's own retry/backoff or the long-process
// runner's reschedule path is responsible for that; the queue's job is
// only at-least-once delivery to a handler.
type Handler func(ctx context.Context, job Job) error

// Queue is the abstract async-queue collaborator (§6).
type Queue interface {
	// EnqueueAsync dispatches job for immediate processing, grouped by
	// job.Group (falling back to a default group if empty).
	EnqueueAsync(ctx context.Context, job Job) error
	// ScheduleSingle dispatches job no earlier than at.
	ScheduleSingle(ctx context.Context, at time.Time, job Job) error
}

// InProcessQueue is a bounded worker-pool Queue living entirely in this
// process's memory. It is not durable across restarts — that's acceptable
// for jobs the outbox and runners re-derive from persisted state (a
// crashed worker's lock simply expires and the row/process becomes
// eligible again).
type InProcessQueue struct {
	mu       sync.Mutex
	handlers map[string]Handler
	jobs     chan scheduledJob
	delayed  delayedHeap
	wake     chan struct{}
	wg       sync.WaitGroup
	closed   chan struct{}
}

type scheduledJob struct {
	job Job
	at  time.Time
}

// NewInProcessQueue starts workerCount goroutines draining the queue.
func NewInProcessQueue(ctx context.Context, workerCount int) *InProcessQueue {
	q := &InProcessQueue{
		handlers: make(map[string]Handler),
		jobs:     make(chan scheduledJob, 1024),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	go q.scheduler(ctx)
	return q
}

// RegisterHandler binds name to fn; EnqueueAsync/ScheduleSingle jobs with
// an unregistered name are dropped with no error, matching an at-least-once
// "fire and let the consumer decide" contract — callers register every job
// name they dispatch before starting the queue.
func (q *InProcessQueue) RegisterHandler(name string, fn Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = fn
}

// EnqueueAsync implements Queue.
func (q *InProcessQueue) EnqueueAsync(ctx context.Context, job Job) error {
	select {
	case q.jobs <- scheduledJob{job: job, at: time.Time{}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleSingle implements Queue.
func (q *InProcessQueue) ScheduleSingle(ctx context.Context, at time.Time, job Job) error {
	if !at.After(time.Now()) {
		return q.EnqueueAsync(ctx, job)
	}
	q.mu.Lock()
	heap.Push(&q.delayed, scheduledJob{job: job, at: at})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *InProcessQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closed:
			return
		case sj := <-q.jobs:
			q.mu.Lock()
			handler := q.handlers[sj.job.Name]
			q.mu.Unlock()
			if handler == nil {
				continue
			}
			_ = handler(ctx, sj.job)
		}
	}
}

func (q *InProcessQueue) scheduler(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		q.mu.Lock()
		var wait time.Duration
		if q.delayed.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(q.delayed[0].at)
			if wait < 0 {
				wait = 0
			}
		}
		q.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-q.closed:
			return
		case <-q.wake:
			continue
		case <-timer.C:
			q.drainDue()
		}
	}
}

func (q *InProcessQueue) drainDue() {
	now := time.Now()
	q.mu.Lock()
	var due []scheduledJob
	for q.delayed.Len() > 0 && !q.delayed[0].at.After(now) {
		due = append(due, heap.Pop(&q.delayed).(scheduledJob))
	}
	q.mu.Unlock()
	for _, sj := range due {
		select {
		case q.jobs <- sj:
		default:
			go func(sj scheduledJob) { q.jobs <- sj }(sj)
		}
	}
}

// Close signals the workers and the scheduler to stop and waits for the
// workers' in-flight handlers to return. EnqueueAsync and ScheduleSingle do
// not check for a closed queue.
func (q *InProcessQueue) Close() {
	close(q.closed)
	q.wg.Wait()
}

type delayedHeap []scheduledJob

func (h delayedHeap) Len() int            { return len(h) }
func (h delayedHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h delayedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any)         { *h = append(*h, x.(scheduledJob)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
