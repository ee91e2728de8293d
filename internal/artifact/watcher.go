package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	// DefaultDebounce is how long changes accumulate before being reported.
	DefaultDebounce = 250 * time.Millisecond
	eventBuffer     = 64
)

// Op describes what happened to a document.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event reports a settled change to a collaboration document.
type Event struct {
	Kind Kind
	Op   Op
	Path string
}

// Watcher emits debounced change events for the plan and comments documents.
type Watcher struct {
	store    *Store
	debounce time.Duration
	logger   zerolog.Logger
	fsw      *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[Kind]fsnotify.Op

	hashMu sync.Mutex
	hashes map[Kind]string

	events  chan Event
	dropped atomic.Int64
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger routes watcher diagnostics to logger.
func WithLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher prepares a watcher for the store's documents.
func NewWatcher(store *Store, opts ...WatcherOption) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact: store is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("artifact: create watcher: %w", err)
	}
	w := &Watcher{
		store:    store,
		debounce: DefaultDebounce,
		logger:   zerolog.Nop(),
		fsw:      fsw,
		pending:  make(map[Kind]fsnotify.Op),
		hashes:   make(map[Kind]string),
		events:   make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Events returns the change channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Dropped reports how many events were discarded because nobody was reading.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Start watches the directories holding the documents until ctx is done. A
// watcher that fails to start is released and its events channel closed.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watchDirs(); err != nil {
		_ = w.fsw.Close()
		close(w.events)
		return err
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) watchDirs() error {
	dirs := map[string]struct{}{}
	for _, kind := range Kinds() {
		path := w.store.Path(kind)
		dirs[filepath.Dir(path)] = struct{}{}
		if data, err := os.ReadFile(path); err == nil {
			w.hashes[kind] = contentHash(data)
		}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("artifact: ensure %s: %w", dir, err)
		}
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("artifact: watch %s: %w", dir, err)
		}
		w.logger.Debug().Str("dir", dir).Msg("watching artifacts")
	}
	return nil
}

// Stop releases the underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("artifact watcher error")
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	kind, ok := w.store.KindOf(event.Name)
	if !ok {
		return
	}
	w.pendingMu.Lock()
	w.pending[kind] |= event.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[Kind]fsnotify.Op)
	w.pendingMu.Unlock()

	for _, kind := range Kinds() {
		if _, changed := batch[kind]; !changed {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if event, ok := w.settle(kind); ok {
			w.send(event)
		}
	}
}

// settle compares the document with the last seen content so editors that
// rewrite identical bytes do not produce events.
func (w *Watcher) settle(kind Kind) (Event, bool) {
	path := w.store.Path(kind)
	event := Event{Kind: kind, Path: path}
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	previous, seen := w.hashes[kind]
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("path", path).Msg("read changed artifact")
			return Event{}, false
		}
		if !seen {
			return Event{}, false
		}
		delete(w.hashes, kind)
		event.Op = OpDelete
		return event, true
	}
	hash := contentHash(data)
	if seen && hash == previous {
		return Event{}, false
	}
	w.hashes[kind] = hash
	event.Op = OpModify
	if !seen {
		event.Op = OpCreate
	}
	return event, true
}

func (w *Watcher) send(event Event) {
	select {
	case w.events <- event:
	default:
		w.dropped.Add(1)
		w.logger.Warn().Str("kind", string(event.Kind)).Msg("artifact event dropped")
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
