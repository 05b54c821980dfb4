package search

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the thread pool's default size (§5: "Search uses a
// thread pool (default 4)").
const DefaultWorkers = 4

// Task is one (interval, operation) entry on the pool's shared queue: an
// index directory (one interval's FIDX files) and the descriptor to run
// against it.
type Task struct {
	IndexDir   string
	Descriptor *Descriptor
}

// Result pairs a Task with Coordinator.Run's outcome.
type Result struct {
	Task      Task
	FlowsPath string
	Err       error
}

// Pool bounds how many Tasks run concurrently, the way a fixed-size
// thread pool pulling off a shared work queue would, without needing a
// separate queue data structure: every Task is already known up front,
// so a semaphore alone is enough to cap concurrency across the slice.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool that runs at most workers Tasks at once,
// falling back to DefaultWorkers for a non-positive count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Run drains tasks across the pool and returns one Result per task, in
// task order (not completion order) so callers can line results back up
// against whatever per-interval options (e.g. an --fcap path) they
// passed in alongside the original task list. If ctx is cancelled while
// a task is still queued for a worker slot, that task's Result carries
// ctx.Err() instead of running.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task

		if err := p.sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Task: task, Err: err}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.sem.Release(1)
			flowsPath, err := Coordinator{}.Run(task.IndexDir, task.Descriptor)
			results[i] = Result{Task: task, FlowsPath: flowsPath, Err: err}
		}()
	}
	wg.Wait()

	return results
}
