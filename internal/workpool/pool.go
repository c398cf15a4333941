// Package workpool provides a fixed-size pool of long-lived worker
// goroutines consuming a blocking FIFO queue.
//
// Dispatch is the parallel-for primitive: it splits a range into one slice
// per worker, runs the leftover tail on the calling goroutine and blocks
// until every slice has finished. Closures handed to Dispatch never outlive
// the call.
package workpool

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned when work is submitted after Close has begun.
var ErrPoolClosed = errors.New("workpool: pool closed")

// Task is an opaque unit of work.
type Task func()

// Handle is returned by Enqueue and completes when its task has run.
type Handle struct {
	done chan struct{}
}

// Wait blocks until the task has run.
func (h *Handle) Wait() { <-h.done }

// Done is closed once the task has run.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Future carries the result of a task submitted with Submit.
type Future[T any] struct {
	h   *Handle
	val T
}

// Get blocks until the task has run and returns its result.
func (f *Future[T]) Get() T {
	f.h.Wait()
	return f.val
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.h.done }

type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Task
	stopping bool
	workers  int
	wg       sync.WaitGroup
}

// New starts a pool of n workers. n <= 0 uses runtime.NumCPU().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{workers: n}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopping {
			p.cond.Wait()
		}
		// Stopping with an empty queue: everything has been drained.
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Closed reports whether Close has begun.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// Enqueue pushes fn onto the queue.
func (p *Pool) Enqueue(fn Task) (*Handle, error) {
	h := &Handle{done: make(chan struct{})}
	err := p.push(func() {
		defer close(h.done)
		fn()
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Submit enqueues fn on p and returns a future for its result.
func Submit[T any](p *Pool, fn func() T) (*Future[T], error) {
	f := &Future[T]{}
	h, err := p.Enqueue(func() { f.val = fn() })
	if err != nil {
		return nil, err
	}
	f.h = h
	return f, nil
}

func (p *Pool) push(tasks ...Task) error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, tasks...)
	p.mu.Unlock()

	if len(tasks) == 1 {
		p.cond.Signal()
	} else {
		p.cond.Broadcast()
	}
	return nil
}

// Dispatch partitions [0, count) into Workers() slices of count/Workers()
// elements, queues one task per slice and processes the remainder on the
// calling goroutine. It returns once every slice has completed. When the
// range is smaller than the worker count nothing is queued and the caller
// runs the whole range.
func (p *Pool) Dispatch(count int, fn func(start, end int)) error {
	if p.Closed() {
		return ErrPoolClosed
	}
	if count <= 0 {
		return nil
	}

	batch := count / p.workers
	var wg sync.WaitGroup
	if batch > 0 {
		tasks := make([]Task, p.workers)
		for i := range tasks {
			start := i * batch
			end := start + batch
			tasks[i] = func() {
				defer wg.Done()
				fn(start, end)
			}
		}
		wg.Add(len(tasks))
		if err := p.push(tasks...); err != nil {
			return err
		}
	}

	if tail := batch * p.workers; tail < count {
		fn(tail, count)
	}

	wg.Wait()
	return nil
}

// Close stops accepting work, lets the workers drain everything already
// queued and waits for them to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}
