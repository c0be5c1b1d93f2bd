// SPDX-License-Identifier: MPL-2.0

package dev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lance/api"
	"lance/util/pathutil"

	"github.com/syncthing/notify"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	requestTimeout  = 30 * time.Second
)

// Remote is the bundle filesystem the watcher mirrors into. Paths are
// slash separated and start with "/".
type Remote interface {
	Upload(ctx context.Context, p string, r io.Reader) error
	Store(ctx context.Context, p, content string) error
	Delete(ctx context.Context, p string) error
	Mkdir(ctx context.Context, p string) error
}

type ChangeKind int

const (
	FileCreated ChangeKind = iota + 1
	FileChanged
	DirCreated
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileChanged:
		return "changed"
	case DirCreated:
		return "mkdir"
	case Removed:
		return "removed"
	}
	return "unknown"
}

type WatchConfig struct {
	Dir      string
	Remote   Remote
	Debounce time.Duration
	Logger   *slog.Logger
	// Ignore reports paths, relative to Dir, that are never mirrored.
	// Hidden paths are always ignored.
	Ignore func(rel string) bool
	// OnMirrored runs after a change reached the remote.
	OnMirrored func(rel string, kind ChangeKind)
	// OnError runs when mirroring a change failed.
	OnError func(rel string, kind ChangeKind, err error)
}

// Watcher mirrors local changes below a directory into a Remote. Events for
// one path are debounced until the path is stable, and a newer change for a
// path cancels the request still running for it.
type Watcher struct {
	dir      string
	remote   Remote
	debounce time.Duration
	logger   *slog.Logger
	ignore   func(string) bool
	onDone   func(string, ChangeKind)
	onError  func(string, ChangeKind, error)
	inflight *Inflight

	ctx    context.Context
	cancel context.CancelFunc
	events chan notify.EventInfo
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	known   map[string]bool // rel -> is directory
	stopped bool
}

// NewWatcher records the files present below cfg.Dir. Those count as known,
// so a later write to them is a change rather than a creation.
func NewWatcher(cfg WatchConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote is required")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:      dir,
		remote:   cfg.Remote,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		ignore:   cfg.Ignore,
		onDone:   cfg.OnMirrored,
		onError:  cfg.OnError,
		inflight: NewInflight(),
		ctx:      ctx,
		cancel:   cancel,
		timers:   map[string]*time.Timer{},
		known:    map[string]bool{},
	}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, ok := w.rel(p)
		if !ok || rel == "" {
			return nil
		}
		if w.skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		w.known[rel] = d.IsDir()
		return nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return w, nil
}

// rel returns the slash separated path of p below the watched directory.
func (w *Watcher) rel(p string) (string, bool) {
	r, err := filepath.Rel(w.dir, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) skip(rel string) bool {
	return pathutil.IsHidden(rel) || (w.ignore != nil && w.ignore(rel))
}

// Start subscribes to recursive filesystem events.
func (w *Watcher) Start() error {
	// Buffered so bursts are not dropped while the loop is scheduling.
	w.events = make(chan notify.EventInfo, 256)
	if err := notify.Watch(filepath.Join(w.dir, "..."), w.events, notify.All); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching template files", slog.String("dir", w.dir))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				return
			case ei := <-w.events:
				w.schedule(ei.Path())
			}
		}
	}()
	return nil
}

// schedule (re)starts the stability timer of the path.
func (w *Watcher) schedule(abs string) {
	rel, ok := w.rel(abs)
	if !ok || rel == "" || w.skip(rel) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, rel)
		stopped := w.stopped
		if !stopped {
			w.wg.Add(1)
		}
		w.mu.Unlock()
		if stopped {
			return
		}
		defer w.wg.Done()
		w.settle(rel)
	})
}

// classify turns the current state of rel into a change and updates the set
// of known paths. ok is false when there is nothing to mirror.
func (w *Watcher) classify(rel string) (ChangeKind, bool) {
	info, err := os.Stat(filepath.Join(w.dir, filepath.FromSlash(rel)))

	w.mu.Lock()
	defer w.mu.Unlock()
	isDir, known := w.known[rel]
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !known {
			return 0, false
		}
		delete(w.known, rel)
		if isDir {
			prefix := rel + "/"
			for k := range w.known {
				if strings.HasPrefix(k, prefix) {
					delete(w.known, k)
				}
			}
		}
		return Removed, true
	case err != nil:
		w.logger.Debug("Failed to stat changed path", slog.String("path", rel), slog.Any("error", err))
		return 0, false
	case info.IsDir():
		if known {
			return 0, false
		}
		w.known[rel] = true
		return DirCreated, true
	case known:
		return FileChanged, true
	default:
		w.known[rel] = false
		return FileCreated, true
	}
}

func (w *Watcher) settle(rel string) {
	kind, ok := w.classify(rel)
	if !ok {
		return
	}
	remotePath := "/" + rel

	ctx, release := w.inflight.Acquire(w.ctx, remotePath)
	defer release()
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	err := w.mirror(ctx, rel, remotePath, kind)
	switch {
	case err == nil:
		w.logger.Info("Synced", slog.String("path", remotePath), slog.String("change", kind.String()))
		if w.onDone != nil {
			w.onDone(rel, kind)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, api.ErrCanceled):
		w.logger.Debug("Superseded", slog.String("path", remotePath))
	default:
		w.logger.Error("Failed to sync change", slog.String("path", remotePath), slog.String("change", kind.String()), slog.Any("error", err))
		if w.onError != nil {
			w.onError(rel, kind, err)
		}
	}
}

func (w *Watcher) mirror(ctx context.Context, rel, remotePath string, kind ChangeKind) error {
	local := filepath.Join(w.dir, filepath.FromSlash(rel))
	switch kind {
	case Removed:
		return w.remote.Delete(ctx, remotePath)
	case DirCreated:
		return w.remote.Mkdir(ctx, remotePath)
	case FileCreated:
		f, err := os.Open(local)
		if err != nil {
			return err
		}
		defer f.Close()
		return w.remote.Upload(ctx, path.Clean(remotePath), f)
	case FileChanged:
		content, err := os.ReadFile(local)
		if err != nil {
			return err
		}
		return w.remote.Store(ctx, remotePath, string(content))
	}
	return fmt.Errorf("unknown change %d", kind)
}

// Stop unsubscribes from events, drops pending timers, cancels running
// requests and waits for handlers to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for rel, t := range w.timers {
		t.Stop()
		delete(w.timers, rel)
	}
	w.mu.Unlock()

	if w.events != nil {
		notify.Stop(w.events)
	}
	w.cancel()
	w.inflight.CancelAll()
	w.wg.Wait()
}
