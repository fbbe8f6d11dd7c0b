// Package watcher provides hot-folder file watching with write-settle
// detection using fsnotify. It delivers "file considered complete" events:
// directories, hidden files, and partial-write artifacts never reach the
// handler, and a growing file is held back until its size stops changing.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultSettleInterval is the poll step used to decide that a file's
	// modification has finished (its size is stable across two polls).
	DefaultSettleInterval = 200 * time.Millisecond

	// DefaultSettleTimeout bounds how long a single file may keep growing
	// before the watcher gives up waiting and delivers it anyway.
	DefaultSettleTimeout = 30 * time.Second
)

// Event reports one newly complete file under a watched hot-folder tree.
// HotFolder is the top-level directory (directly under the watch root) the
// file belongs to; for files directly in the root it equals the root.
type Event struct {
	Path      string
	HotFolder string
}

// Handler receives batches of complete-file events. Events for the same
// hot folder arrive in order.
type Handler func([]Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithRecursive makes the watcher follow newly created subdirectories.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithSettleInterval sets the write-settle poll step.
func WithSettleInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settleInterval = d
		}
	}
}

// WithSettleTimeout bounds the write-settle wait per file.
func WithSettleTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settleTimeout = d
		}
	}
}

// WithIgnorePaths sets directory base names skipped during recursive walks.
func WithIgnorePaths(names []string) Option {
	return func(w *Watcher) {
		w.ignoreDirs = make(map[string]bool, len(names))
		for _, n := range names {
			w.ignoreDirs[n] = true
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// Watcher watches one or more hot-folder roots and invokes its handler for
// every file that appears and settles.
type Watcher struct {
	fsw     *fsnotify.Watcher
	handler Handler
	log     *slog.Logger

	recursive      bool
	settleInterval time.Duration
	settleTimeout  time.Duration
	ignoreDirs     map[string]bool

	mu        sync.Mutex
	roots     []string
	folders   map[string]chan string
	delivered map[string]fileStamp
	maxStamps int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher and starts its event loop. Callers register roots
// with Add and shut the watcher down with Close.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher handler must not be nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:            fsw,
		handler:        handler,
		log:            slog.Default(),
		settleInterval: DefaultSettleInterval,
		settleTimeout:  DefaultSettleTimeout,
		folders:        make(map[string]chan string),
		delivered:      make(map[string]fileStamp),
		maxStamps:      4096,
	}
	for _, opt := range opts {
		opt(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
	return w, nil
}

// Add registers a hot-folder root. In recursive mode existing
// subdirectories are watched as well.
func (w *Watcher) Add(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	if !w.recursive {
		return w.fsw.Add(abs)
	}
	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != abs && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Sweep delivers events for files already present under the registered
// roots, in lexical order. Files directly in a root are skipped: only files
// inside a hot-folder subdirectory are candidates for routing. Used at
// startup so files dropped while the process was down are rediscovered.
func (w *Watcher) Sweep() error {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()

	var evs []Event
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && w.skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Dir(path) == root {
				return nil
			}
			if isTransient(d.Name()) {
				return nil
			}
			evs = append(evs, Event{Path: path, HotFolder: w.hotFolderFor(root, path)})
			return nil
		})
		if err != nil {
			return err
		}
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].Path < evs[j].Path })
	fresh := evs[:0]
	for _, ev := range evs {
		if w.markDelivered(ev.Path) {
			fresh = append(fresh, ev)
		}
	}
	if len(fresh) > 0 {
		w.handler(fresh)
	}
	return nil
}

// Close stops the event loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// run is the fsnotify event loop. It only classifies events; settle waits
// happen on one goroutine per hot folder, so a slow-growing file in one
// folder never delays deliveries for the others while events inside a single
// folder still settle and deliver in arrival order.
func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		// Gone already (renamed away or deleted); nothing to deliver.
		return
	}
	if info.IsDir() {
		if w.recursive && ev.Has(fsnotify.Create) && !w.skipDir(filepath.Base(ev.Name)) {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.Error("watching new directory", "path", ev.Name, "error", err)
			}
		}
		return
	}
	if isTransient(filepath.Base(ev.Name)) {
		return
	}

	root := w.rootFor(ev.Name)
	if root == "" {
		return
	}
	if filepath.Dir(ev.Name) == root {
		// Files dropped in the root itself belong to no environment folder.
		return
	}
	w.enqueue(ctx, w.hotFolderFor(root, ev.Name), ev.Name)
}

// enqueue hands the path to its hot folder's settle goroutine, starting one
// on first use. A full queue drops the event; the file stays on disk and the
// next run's sweep rediscovers it.
func (w *Watcher) enqueue(ctx context.Context, hotFolder, path string) {
	w.mu.Lock()
	ch, ok := w.folders[hotFolder]
	if !ok {
		ch = make(chan string, 1024)
		w.folders[hotFolder] = ch
		w.wg.Add(1)
		go w.settleLoop(ctx, hotFolder, ch)
	}
	w.mu.Unlock()

	select {
	case ch <- path:
	default:
		w.log.Warn("settle queue full, dropping event", "hot_folder", hotFolder, "path", path)
	}
}

// settleLoop settles and delivers files of one hot folder sequentially.
func (w *Watcher) settleLoop(ctx context.Context, hotFolder string, ch <-chan string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-ch:
			if !w.waitSettled(ctx, path) {
				continue
			}
			if !w.markDelivered(path) {
				continue
			}
			w.log.Debug("file complete", "path", path)
			w.handler([]Event{{Path: path, HotFolder: hotFolder}})
		}
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
	seen    time.Time
}

// markDelivered records the file's settled size and mtime and reports whether
// this is a new delivery. A write burst raises one Create plus several Write
// events for the same path; without the stamp each of them would re-trigger
// the environment after the file settles.
func (w *Watcher) markDelivered(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.delivered[path]; ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		prev.seen = now
		w.delivered[path] = prev
		return false
	}
	if len(w.delivered) >= w.maxStamps {
		w.evictStaleStamps()
	}
	w.delivered[path] = fileStamp{size: info.Size(), modTime: info.ModTime(), seen: now}
	return true
}

// evictStaleStamps drops the least recently seen half of the stamp map, so
// recent deliveries keep their dedup protection across the eviction.
// Called with w.mu held.
func (w *Watcher) evictStaleStamps() {
	seen := make([]time.Time, 0, len(w.delivered))
	for _, st := range w.delivered {
		seen = append(seen, st.seen)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i].Before(seen[j]) })
	cutoff := seen[len(seen)/2]
	for p, st := range w.delivered {
		if st.seen.Before(cutoff) {
			delete(w.delivered, p)
		}
	}
}

// waitSettled polls the file size until it is stable across two polls,
// mirroring spoolers that write large files incrementally. Returns false if
// the file disappeared or the context was cancelled.
func (w *Watcher) waitSettled(ctx context.Context, path string) bool {
	deadline := time.Now().Add(w.settleTimeout)
	var lastSize int64 = -1
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize {
			return true
		}
		lastSize = info.Size()
		if time.Now().After(deadline) {
			w.log.Warn("file still growing after settle timeout, delivering anyway", "path", path)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.settleInterval):
		}
	}
}

// rootFor returns the registered root containing path, or "".
func (w *Watcher) rootFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// hotFolderFor returns the top-level directory under root that owns path.
func (w *Watcher) hotFolderFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return root
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return root
	}
	return filepath.Join(root, parts[0])
}

func (w *Watcher) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignoreDirs[name]
}

// isTransient reports whether a base name looks like a hidden file or a
// partial-write artifact that must never trigger an environment.
func isTransient(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return true
	}
	if strings.HasSuffix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".temp", ".part", ".partial", ".crdownload", ".swp":
		return true
	}
	return false
}
