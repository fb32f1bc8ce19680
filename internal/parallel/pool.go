// Package parallel provides the worker pool that runs every data-parallel
// stage of the splat pipeline.
//
// Each call is a barrier: it returns only after all of its work items have
// finished, which is what keeps pipeline stages strictly sequential.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// chunksPerWorker oversubscribes ranges so uneven items still balance.
const chunksPerWorker = 4

// Pool is a fixed set of goroutines pulling work from a shared queue.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queue   chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		queue:   make(chan func(), workers*chunksPerWorker),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case work := <-p.queue:
			work()
		}
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// ExecuteAll runs every item and waits for all of them. Items must not
// call back into the pool.
// On a closed pool the items run on the calling goroutine.
func (p *Pool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for _, fn := range work {
		item := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.queue <- item:
		case <-p.done:
			item()
		}
	}
	wg.Wait()
}

// For splits [0, n) into contiguous ranges and calls fn on each in
// parallel. Ranges not yet started when ctx is cancelled are skipped and
// ctx.Err() is returned once the running ones finish.
func (p *Pool) For(ctx context.Context, n int, fn func(lo, hi int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}

	chunks := p.workers * chunksPerWorker
	if chunks > n {
		chunks = n
	}
	size := (n + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		work = append(work, func() {
			if ctx.Err() != nil {
				return
			}
			fn(lo, hi)
		})
	}
	p.ExecuteAll(work)
	return ctx.Err()
}

// ForEach calls fn for every index in [0, n) in parallel.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(i int)) error {
	return p.For(ctx, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}

// Close stops the workers. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
