package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/debug"
)

// StatusPeriod matches STATUS_PERIOD: the status file is rewritten this
// often while a process is running.
const StatusPeriod = 5 * time.Second

// ThreadState is one of the three states a tracked thread reports.
type ThreadState string

const (
	ThreadIdle     ThreadState = "idle"
	ThreadWorking  ThreadState = "working"
	ThreadShutdown ThreadState = "shutdown"
)

// ThreadTracker holds one thread's current reportable state behind a
// mutex — the role original_source indexer/event.c's struct event plays
// for its single boolean shutdown flag, generalized to pcapdb's three
// status values.
type ThreadTracker struct {
	mu    sync.Mutex
	state ThreadState
}

func newThreadTracker() *ThreadTracker {
	return &ThreadTracker{state: ThreadIdle}
}

// Set updates the tracked state.
func (t *ThreadTracker) Set(s ThreadState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Get returns the current tracked state.
func (t *ThreadTracker) Get() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ThreadStatus is one thread's reported status within a Snapshot.
type ThreadStatus struct {
	Name  string      `json:"name"`
	State ThreadState `json:"state"`
}

// Snapshot is the full status file payload (§6.6: "per-thread state and
// queue depths").
type Snapshot struct {
	Timestamp   time.Time      `json:"timestamp"`
	Threads     []ThreadStatus `json:"threads"`
	QueueDepths map[string]int `json:"queue_depths"`
}

// Registry tracks every named worker thread in one process, plus the
// shared bucket pool whose queue depths are reported alongside them.
type Registry struct {
	mu      sync.Mutex
	threads map[string]*ThreadTracker
	order   []string
	pool    *bucket.Pool
}

// NewRegistry returns a registry that reports pool's three queue depths
// (ready/filled/indexed) in every snapshot. pool may be nil in tests that
// only care about thread state.
func NewRegistry(pool *bucket.Pool) *Registry {
	return &Registry{threads: make(map[string]*ThreadTracker), pool: pool}
}

// Track registers name on first call and returns its tracker (starting
// idle); later calls with the same name return the same tracker.
func (r *Registry) Track(name string) *ThreadTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.threads[name]; ok {
		return t
	}
	t := newThreadTracker()
	r.threads[name] = t
	r.order = append(r.order, name)
	return t
}

// Snapshot builds a point-in-time status snapshot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	threads := make([]ThreadStatus, 0, len(order))
	for _, name := range order {
		threads = append(threads, ThreadStatus{Name: name, State: r.threads[name].Get()})
	}
	r.mu.Unlock()

	depths := map[string]int{}
	if r.pool != nil {
		depths["ready"] = r.pool.Ready.Len()
		depths["filled"] = r.pool.Filled.Len()
		depths["indexed"] = r.pool.Indexed.Len()
	}

	return Snapshot{Timestamp: time.Now(), Threads: threads, QueueDepths: depths}
}

// StatusWriter periodically renders a Registry's snapshot to disk
// (§6.6's 5-second STATUS_PERIOD), writing to a dotfile sibling first and
// renaming over the final path so a reader never observes a partial
// write — STATUS_TMP_PATH/STATUS_PATH's ".status" next to "status", the
// same hidden-tmp-then-rename idiom as the rest of pcapdb's result files,
// just with a leading dot instead of a trailing ".tmp".
type StatusWriter struct {
	registry *Registry
	path     string
	tmpPath  string
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewStatusWriter builds a writer for dir/status (staged through
// dir/.status), rendering registry's snapshot every period.
func NewStatusWriter(registry *Registry, dir string, period time.Duration) *StatusWriter {
	return &StatusWriter{
		registry: registry,
		path:     filepath.Join(dir, "status"),
		tmpPath:  filepath.Join(dir, ".status"),
		interval: period,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run writes one snapshot immediately and then one every interval until
// Stop is called. It blocks, and is meant to be run in its own goroutine.
func (w *StatusWriter) Run() {
	defer close(w.done)

	if err := w.writeOnce(); err != nil {
		debug.Log("STATUS", "%v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.writeOnce(); err != nil {
				debug.Log("STATUS", "%v", err)
			}
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (w *StatusWriter) Stop() {
	close(w.stop)
	<-w.done
}

func (w *StatusWriter) writeOnce() error {
	data, err := json.MarshalIndent(w.registry.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("statefile: marshal status: %w", err)
	}
	if err := os.WriteFile(w.tmpPath, data, 0644); err != nil {
		return fmt.Errorf("statefile: write %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("statefile: rename to %s: %w", w.path, err)
	}
	return nil
}
