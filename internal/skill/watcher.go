package skill

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches a skills directory for changes to pipeline (*.yaml,
// *.pipeline.yaml) and agent (SKILL.md) files and invokes OnReload with
// the set of changed paths after a debounce window.
type Watcher struct {
	root         string
	watcher      *fsnotify.Watcher
	onReload     func([]string)
	debounce     time.Duration
	mu           sync.Mutex
	pending      map[string]bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWatcher creates a watcher rooted at a skills directory.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     root,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// OnReload registers the callback invoked (debounced) with changed paths.
func (w *Watcher) OnReload(cb func([]string)) { w.onReload = cb }

// Start recursively watches every directory under root and begins
// debounced change detection.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.watcher.Add(path); addErr != nil {
				log.Warn().Err(addErr).Str("path", path).Msg("skill watcher: failed to watch directory")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop halts watching and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("skill watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isSkillFile(ev.Name) {
		return
	}
	if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = true
	w.mu.Unlock()
}

func isSkillFile(name string) bool {
	base := filepath.Base(name)
	return base == "SKILL.md" || strings.HasSuffix(name, ".pipeline.yaml") || strings.HasSuffix(name, ".yaml")
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if w.onReload != nil {
		w.onReload(paths)
	}
}
