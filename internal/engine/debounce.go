package engine

import (
	"sync"
	"time"
)

// Batch is a settled burst of files for one (environment, hot folder) key,
// in arrival order.
type Batch struct {
	Env       *Environment
	HotFolder string
	Files     []string
}

type batchKey struct {
	env       string
	hotFolder string
}

type pendingBatch struct {
	env   *Environment
	files []string
	seen  map[string]bool
	timer *time.Timer
	gen   uint64 // bumped on every arrival; a firing timer with a stale gen aborts
}

// Debouncer converts bursts of file arrivals into settled batches: every
// arrival for a key appends to that key's pending batch and restarts its
// settle timer; the batch is emitted only once the quiet period elapses with
// no further arrivals.
//
// The mutex guards only map bookkeeping, never the flush callback, so work
// for unrelated keys does not serialize. The append-then-reset sequence is
// atomic with respect to a concurrent flush: a timer that fires but finds
// its generation superseded gives up without emitting, so no arrival is
// ever lost to a racing flush.
type Debouncer struct {
	delay time.Duration
	flush func(Batch)

	mu      sync.Mutex
	pending map[batchKey]*pendingBatch
	stopped bool
}

// NewDebouncer creates a debouncer firing flush after delay of quiet per key.
// The flush callback runs on the timer goroutine; it must not call back into
// the debouncer for the same key synchronously.
func NewDebouncer(delay time.Duration, flush func(Batch)) *Debouncer {
	return &Debouncer{
		delay:   delay,
		flush:   flush,
		pending: make(map[batchKey]*pendingBatch),
	}
}

// Add records the arrival of path for the (env, hotFolder) key and restarts
// the key's settle timer. Duplicate arrivals of the same path are ignored so
// an oversending event source cannot double-render a file.
func (d *Debouncer) Add(env *Environment, hotFolder, path string) {
	k := batchKey{env: env.Name(), hotFolder: hotFolder}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	pb, ok := d.pending[k]
	if !ok {
		pb = &pendingBatch{env: env, seen: make(map[string]bool)}
		d.pending[k] = pb
	}
	if pb.seen[path] {
		// Duplicate event; still counts as activity, so the timer resets.
	} else {
		pb.seen[path] = true
		pb.files = append(pb.files, path)
	}

	pb.gen++
	gen := pb.gen
	if pb.timer != nil {
		pb.timer.Stop()
	}
	pb.timer = time.AfterFunc(d.delay, func() {
		d.fire(env, k, gen)
	})
}

// fire removes and emits the pending batch for k, unless a newer arrival
// superseded the timer that scheduled this call.
func (d *Debouncer) fire(env *Environment, k batchKey, gen uint64) {
	d.mu.Lock()
	pb, ok := d.pending[k]
	if !ok || pb.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, k)
	files := pb.files
	d.mu.Unlock()

	d.flush(Batch{Env: env, HotFolder: k.hotFolder, Files: files})
}

// PendingCount returns the number of keys with an unflushed batch.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Drain cancels every settle timer and removes and returns all pending
// batches without invoking the flush callback, in no particular key order.
// Callers that need shutdown-time flushing use Drain so they can run the
// batches under their own lifecycle instead of the timer path's.
func (d *Debouncer) Drain() []Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Batch
	for k, pb := range d.pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		out = append(out, Batch{Env: pb.env, HotFolder: k.hotFolder, Files: pb.files})
		delete(d.pending, k)
	}
	return out
}

// Flush drains all pending batches and emits them through the flush
// callback immediately.
func (d *Debouncer) Flush() {
	for _, b := range d.Drain() {
		d.flush(b)
	}
}

// Stop cancels all settle timers and drops pending batches. Dropped files
// stay in their hot folders and are rediscovered by the next run's initial
// sweep.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, pb := range d.pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		delete(d.pending, k)
	}
}
