// Package jobqueue implements a typed, in-process multi-producer /
// multi-consumer job queue with bounded concurrency, retry with
// exponential backoff, and delayed (not_before) delivery.
//
// One concrete instantiation exists per payload type (ClaimEnvelope,
// RemittanceMsg) rather than a single queue of `any` — see DESIGN.md.
package jobqueue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is a job's lifecycle state.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
)

const (
	maxCompletedRing = 100
	maxFailedRing    = 50
	defaultRetryBase = time.Second
)

// Job wraps a payload with queue bookkeeping.
type Job[T any] struct {
	ID          string
	Payload     T
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
	AddedAt     time.Time
	State       State
	LastError   string
}

// AddOptions configures a single add() call.
type AddOptions struct {
	Delay       time.Duration
	MaxAttempts int
}

// Handler processes one job's payload. An error (or panic, which the
// queue converts into an error) counts as a failed attempt.
type Handler[T any] func(ctx context.Context, payload T) error

// Stats is a snapshot of queue health.
type Stats struct {
	Name       string
	Pending    int
	Running    int
	Completed  int
	Failed     int
	Paused     bool
}

// Queue is a generic job queue for payload type T.
type Queue[T any] struct {
	name        string
	concurrency int
	retryBase   time.Duration

	mu      sync.Mutex
	delayed delayedHeap[T]  // jobs not yet eligible (not_before in the future)
	ready   []*Job[T]       // FIFO of eligible jobs

	paused  int32 // atomic bool guard on the dispatcher only, per DESIGN.md open-question resolution
	stopped int32

	sem chan struct{} // bounds in-flight handler invocations to concurrency

	completedMu sync.Mutex
	completed   []*Job[T]
	failedMu    sync.Mutex
	failed      []*Job[T]

	running int32 // atomic count of in-flight handlers

	notify chan struct{} // wakes the dispatch loop

	handler Handler[T]
	wg      sync.WaitGroup
}

// New creates a Queue with the given name and worker concurrency.
func New[T any](name string, concurrency int) *Queue[T] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Queue[T]{
		name:      name,
		concurrency: concurrency,
		retryBase: defaultRetryBase,
		sem:       make(chan struct{}, concurrency),
		notify:    make(chan struct{}, 1),
	}
}

// SetRetryBase overrides the default 1s exponential-backoff base.
func (q *Queue[T]) SetRetryBase(d time.Duration) {
	q.retryBase = d
}

// Add appends a job, eligible immediately unless opts.Delay > 0.
func (q *Queue[T]) Add(payload T, opts AddOptions) string {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	job := &Job[T]{
		ID:          uuid.New().String(),
		Payload:     payload,
		MaxAttempts: maxAttempts,
		AddedAt:     time.Now(),
		State:       Pending,
	}

	q.mu.Lock()
	if opts.Delay > 0 {
		job.NotBefore = time.Now().Add(opts.Delay)
		heap.Push(&q.delayed, job)
	} else {
		q.ready = append(q.ready, job)
	}
	q.mu.Unlock()

	q.wake()
	return job.ID
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Process registers the handler and starts the dispatch loop, running
// until ctx is cancelled. Process must be called exactly once.
func (q *Queue[T]) Process(ctx context.Context, handler Handler[T]) {
	q.handler = handler
	q.wg.Add(1)
	go q.dispatchLoop(ctx)
}

func (q *Queue[T]) dispatchLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}

		if atomic.LoadInt32(&q.stopped) == 1 {
			return
		}
		if atomic.LoadInt32(&q.paused) == 1 {
			continue
		}

		q.promoteDue()
		q.dispatchReady(ctx)
	}
}

// promoteDue moves every delayed job whose not_before has elapsed into
// the ready FIFO.
func (q *Queue[T]) promoteDue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for q.delayed.Len() > 0 && !q.delayed.Peek().NotBefore.After(now) {
		job := heap.Pop(&q.delayed).(*Job[T])
		q.ready = append(q.ready, job)
	}
}

func (q *Queue[T]) dispatchReady(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.ready) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.ready[0]
		q.ready = q.ready[1:]
		q.mu.Unlock()

		select {
		case q.sem <- struct{}{}:
		default:
			// at capacity; put the job back at the front and stop for now
			q.mu.Lock()
			q.ready = append([]*Job[T]{job}, q.ready...)
			q.mu.Unlock()
			return
		}

		atomic.AddInt32(&q.running, 1)
		go q.run(ctx, job)
	}
}

func (q *Queue[T]) run(ctx context.Context, job *Job[T]) {
	defer func() { <-q.sem; atomic.AddInt32(&q.running, -1) }()

	job.State = Running
	job.Attempts++

	err := q.invoke(ctx, job)

	if err == nil {
		job.State = Completed
		q.pushCompleted(job)
		return
	}

	job.LastError = err.Error()
	if job.Attempts < job.MaxAttempts {
		backoff := q.retryBase * time.Duration(1<<uint(job.Attempts-1))
		job.State = Pending
		job.NotBefore = time.Now().Add(backoff)
		q.mu.Lock()
		heap.Push(&q.delayed, job)
		q.mu.Unlock()
		q.wake()
		return
	}

	job.State = Failed
	q.pushFailed(job)
}

func (q *Queue[T]) invoke(ctx context.Context, job *Job[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobqueue %s: handler panic: %v", q.name, r)
		}
	}()
	return q.handler(ctx, job.Payload)
}

func (q *Queue[T]) pushCompleted(job *Job[T]) {
	q.completedMu.Lock()
	defer q.completedMu.Unlock()
	q.completed = append(q.completed, job)
	if len(q.completed) > maxCompletedRing {
		q.completed = q.completed[len(q.completed)-maxCompletedRing:]
	}
}

func (q *Queue[T]) pushFailed(job *Job[T]) {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	q.failed = append(q.failed, job)
	if len(q.failed) > maxFailedRing {
		q.failed = q.failed[len(q.failed)-maxFailedRing:]
	}
}

// Pause stops the dispatcher from starting new handler invocations.
// Add() remains callable while paused — per the documented "pause only
// the dispatcher, not add()" behavior.
func (q *Queue[T]) Pause() {
	atomic.StoreInt32(&q.paused, 1)
}

// Resume re-enables dispatch.
func (q *Queue[T]) Resume() {
	atomic.StoreInt32(&q.paused, 0)
	q.wake()
}

// Clear discards all pending and delayed jobs. In-flight jobs finish.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = nil
	q.delayed = delayedHeap[T]{}
}

// Stop halts the dispatch loop. In-flight handlers are not cancelled;
// callers should await their own completion signal (e.g. stats) if a
// drain is required.
func (q *Queue[T]) Stop() {
	atomic.StoreInt32(&q.stopped, 1)
	q.wake()
	q.wg.Wait()
}

// Stats returns a point-in-time snapshot.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	pending := len(q.ready) + q.delayed.Len()
	q.mu.Unlock()

	q.completedMu.Lock()
	completed := len(q.completed)
	q.completedMu.Unlock()

	q.failedMu.Lock()
	failed := len(q.failed)
	q.failedMu.Unlock()

	return Stats{
		Name:      q.name,
		Pending:   pending,
		Running:   int(atomic.LoadInt32(&q.running)),
		Completed: completed,
		Failed:    failed,
		Paused:    atomic.LoadInt32(&q.paused) == 1,
	}
}

// CompletedJobs returns a copy of the bounded completed ring.
func (q *Queue[T]) CompletedJobs() []*Job[T] {
	q.completedMu.Lock()
	defer q.completedMu.Unlock()
	out := make([]*Job[T], len(q.completed))
	copy(out, q.completed)
	return out
}

// FailedJobs returns a copy of the bounded failed ring.
func (q *Queue[T]) FailedJobs() []*Job[T] {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	out := make([]*Job[T], len(q.failed))
	copy(out, q.failed)
	return out
}

// delayedHeap is a container/heap min-heap ordered by NotBefore, adapted
// from pkg/orderbook's price-time heap to order by delivery time instead
// of price.
type delayedHeap[T any] []*Job[T]

func (h delayedHeap[T]) Len() int            { return len(h) }
func (h delayedHeap[T]) Less(i, j int) bool  { return h[i].NotBefore.Before(h[j].NotBefore) }
func (h delayedHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap[T]) Push(x interface{}) { *h = append(*h, x.(*Job[T])) }
func (h *delayedHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
func (h delayedHeap[T]) Peek() *Job[T] { return h[0] }
