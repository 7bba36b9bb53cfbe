// Package watcher polls a symbol artifact for changes and publishes the
// decoded symbol table, grounded on elf_reader.py's Reader.run() poll loop.
package watcher

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adarwoo/ulogger/internal/logging"
	"github.com/adarwoo/ulogger/internal/symtab"
)

// State is the watcher's lifecycle state.
type State int

const (
	// StateWaiting: the artifact path does not exist yet (or was removed).
	StateWaiting State = iota
	// StateFailed: the path exists but the last load attempt failed to
	// parse (bad section, truncated, unknown type code, I/O error other
	// than not-exist).
	StateFailed
	// StateReady: the last load attempt succeeded and a table is
	// published.
	StateReady
)

// Transition tags which kind of state change a poll produced, driving the
// caller's choice of dispatch event. TransitionNone means "no observable
// change" and must not be reported to the dispatch channel.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionWaiting
	TransitionOk
	TransitionFailed
	TransitionReloaded
)

// Watcher polls path for a readable, parseable ELF artifact and publishes
// the resulting *symtab.SymbolTable by atomic pointer swap.
type Watcher struct {
	path         string
	width        symtab.IDWidth
	pollInterval time.Duration
	log          *logging.Logger

	table   atomic.Pointer[symtab.SymbolTable]
	state   State
	lastSum [32]byte
	haveSum bool

	fsWatcher *fsnotify.Watcher
	wake      chan struct{}
}

// New creates a Watcher for path, polling every pollInterval. It starts in
// StateWaiting with no published table.
func New(path string, width symtab.IDWidth, pollInterval time.Duration) *Watcher {
	return &Watcher{
		path:         path,
		width:        width,
		pollInterval: pollInterval,
		log:          logging.Default().WithComponent("watcher"),
		state:        StateWaiting,
		wake:         make(chan struct{}, 1),
	}
}

// Table returns the currently published symbol table, or nil if none has
// loaded yet.
func (w *Watcher) Table() *symtab.SymbolTable {
	return w.table.Load()
}

// armFsnotify best-effort watches path's parent directory so a Write or
// Create event on the artifact can wake a poll early. Failure to arm
// fsnotify (e.g. unsupported platform, missing directory) is not fatal:
// the poll interval remains the source of truth regardless.
func (w *Watcher) armFsnotify() {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debug("fsnotify unavailable, falling back to poll-only", "err", err)
		return
	}
	dir := parentDir(w.path)
	if err := fw.Add(dir); err != nil {
		w.log.Debug("fsnotify add failed, falling back to poll-only", "dir", dir, "err", err)
		fw.Close()
		return
	}
	w.fsWatcher = fw
	go w.pumpFsnotify()
}

func (w *Watcher) pumpFsnotify() {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Run polls until ctx is cancelled, invoking onTransition synchronously
// with each published table swap so callers never observe a stale table
// after a reload transition. onTransition is only called for transitions
// that produce a dispatch event (TransitionNone is suppressed).
func (w *Watcher) Run(ctx context.Context, onTransition func(Transition, error)) {
	w.armFsnotify()
	if w.fsWatcher != nil {
		defer w.fsWatcher.Close()
	}

	w.poll(onTransition)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(onTransition)
		case <-w.wake:
			w.poll(onTransition)
		}
	}
}

// poll performs one load attempt and reports the resulting transition.
func (w *Watcher) poll(onTransition func(Transition, error)) {
	if _, err := os.Stat(w.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.report(StateWaiting, TransitionWaiting, nil, onTransition)
			return
		}
		w.report(StateFailed, TransitionFailed, err, onTransition)
		return
	}

	table, err := symtab.Load(w.path, w.width)
	if err != nil {
		w.report(StateFailed, TransitionFailed, err, onTransition)
		return
	}

	sum := table.SHA256()
	if w.state == StateReady && w.haveSum && sum == w.lastSum {
		return
	}

	wasReady := w.state == StateReady
	w.table.Store(table)
	w.lastSum = sum
	w.haveSum = true

	if wasReady {
		w.report(StateReady, TransitionReloaded, nil, onTransition)
		return
	}
	w.report(StateReady, TransitionOk, nil, onTransition)
}

// report applies a state change, suppressing the callback when the state
// hasn't actually moved (e.g. repeated polls while still waiting).
func (w *Watcher) report(next State, t Transition, err error, onTransition func(Transition, error)) {
	if w.state == next && t != TransitionReloaded && t != TransitionOk {
		return
	}
	w.state = next
	switch t {
	case TransitionWaiting:
		w.log.Info("waiting for artifact", "path", w.path)
	case TransitionFailed:
		w.log.Warn("artifact load failed", "path", w.path, "err", err)
	case TransitionOk:
		w.log.Info("artifact loaded", "path", w.path)
	case TransitionReloaded:
		w.log.Info("artifact reloaded", "path", w.path)
	}
	onTransition(t, err)
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
