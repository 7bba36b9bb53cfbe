package watcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarwoo/ulogger/internal/symtab"
)

type transitionCall struct {
	t   Transition
	err error
}

func collectTransitions(ctx context.Context, w *Watcher, calls chan<- transitionCall) {
	w.Run(ctx, func(t Transition, err error) {
		calls <- transitionCall{t: t, err: err}
	})
}

func waitFor(t *testing.T, calls <-chan transitionCall, want Transition) transitionCall {
	t.Helper()
	select {
	case c := <-calls:
		require.Equal(t, want, c.t)
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transition %v", want)
		return transitionCall{}
	}
}

func TestWatcherReportsWaitingWhenPathAbsent(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	w := New(path, symtab.IDWidth16, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan transitionCall, 8)
	go collectTransitions(ctx, w, calls)

	waitFor(t, calls, TransitionWaiting)
	assert.Nil(t, w.Table())
}

func TestWatcherReportsFailedOnMalformedArtifact(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	raw := symtab.BuildSyntheticELFRaw([]byte{0x01, 0x02, 0x03}, 64)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	w := New(path, symtab.IDWidth16, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan transitionCall, 8)
	go collectTransitions(ctx, w, calls)

	c := waitFor(t, calls, TransitionFailed)
	assert.Error(t, c.err)
	assert.Nil(t, w.Table())
}

func TestWatcherReportsOkOnFirstLoad(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []symtab.SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "hi"}}
	require.NoError(t, os.WriteFile(path, symtab.BuildSyntheticELF(sites, 64), 0o644))

	w := New(path, symtab.IDWidth16, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan transitionCall, 8)
	go collectTransitions(ctx, w, calls)

	waitFor(t, calls, TransitionOk)
	require.NotNil(t, w.Table())
	assert.Equal(t, 1, w.Table().Len())
}

func TestWatcherSuppressesUnchangedReload(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []symtab.SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "hi"}}
	require.NoError(t, os.WriteFile(path, symtab.BuildSyntheticELF(sites, 64), 0o644))

	w := New(path, symtab.IDWidth16, 15*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan transitionCall, 8)
	go collectTransitions(ctx, w, calls)

	waitFor(t, calls, TransitionOk)

	select {
	case c := <-calls:
		t.Fatalf("unexpected transition on unchanged artifact: %v", c.t)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherReportsReloadedOnContentChange(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []symtab.SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "hi"}}
	require.NoError(t, os.WriteFile(path, symtab.BuildSyntheticELF(sites, 64), 0o644))

	w := New(path, symtab.IDWidth16, 15*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan transitionCall, 8)
	go collectTransitions(ctx, w, calls)

	waitFor(t, calls, TransitionOk)

	sites = append(sites, symtab.SyntheticLogSite{Line: 2, Filename: "/src/b.c", Format: "bye"})
	require.NoError(t, os.WriteFile(path, symtab.BuildSyntheticELF(sites, 64), 0o644))

	waitFor(t, calls, TransitionReloaded)
	assert.Equal(t, 2, w.Table().Len())
}

func TestWatcherRunStopsOnContextCancel(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	w := New(path, symtab.IDWidth16, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(Transition, error) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
