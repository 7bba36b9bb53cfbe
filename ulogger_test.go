package ulogger

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarwoo/ulogger/internal/typecode"
)

func waitForEventKind(t *testing.T, events <-chan Event, kind EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
			return Event{}
		}
	}
}

func TestSessionDecodesOneLogEntryFromMemoryTransport(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []SyntheticLogSite{
		{Line: 10, TypeWord: uint32(typecode.U8), Filename: "/src/main.c", Format: "val={}"},
	}
	require.NoError(t, NewSyntheticArtifact(path, sites, 64))

	frame := EncodeFrame(0, false, []byte{0x2A}, binary.LittleEndian)
	mem := NewMemoryTransport(frame)

	cfg := Config{ArtifactPath: path, PollInterval: 10 * time.Millisecond}
	s, err := Open(context.Background(), cfg, &Options{Transport: mem})
	require.NoError(t, err)
	defer s.Close()

	waitForEventKind(t, s.Events(), EventArtifactOk, 2*time.Second)
	entryEvt := waitForEventKind(t, s.Events(), EventLogEntry, 2*time.Second)

	require.Len(t, entryEvt.Entry.Args, 1)
	assert.EqualValues(t, 0x2A, entryEvt.Entry.Args[0].U64)
	assert.Equal(t, "main.c", entryEvt.Entry.Site.Filename)

	snap := s.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.FramesDecoded)
}

func TestSessionRecordsOverrunMetricOnOverrunFrame(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "x"}}
	require.NoError(t, NewSyntheticArtifact(path, sites, 64))

	frame := EncodeFrame(ReservedOverrunID16, false, []byte{0x07}, binary.LittleEndian)
	mem := NewMemoryTransport(frame)

	cfg := Config{ArtifactPath: path, PollInterval: 10 * time.Millisecond}
	s, err := Open(context.Background(), cfg, &Options{Transport: mem})
	require.NoError(t, err)
	defer s.Close()

	waitForEventKind(t, s.Events(), EventLogEntry, 2*time.Second)

	require.Eventually(t, func() bool {
		return s.Metrics().Snapshot().OverrunEvents > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionReportsWaitingWhenArtifactMissing(t *testing.T) {
	path := t.TempDir() + "/does-not-exist.elf"
	mem := NewMemoryTransport(nil)

	cfg := Config{ArtifactPath: path, PollInterval: 10 * time.Millisecond}
	s, err := Open(context.Background(), cfg, &Options{Transport: mem})
	require.NoError(t, err)
	defer s.Close()

	waitForEventKind(t, s.Events(), EventWaitForArtifact, 2*time.Second)
}

func TestSessionSurfacesBadDataOnMalformedFrame(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "x"}}
	require.NoError(t, NewSyntheticArtifact(path, sites, 64))

	mem := NewMemoryTransport([]byte{0x05, 0x01, 0xA6}) // malformed COBS frame

	cfg := Config{ArtifactPath: path, PollInterval: 10 * time.Millisecond}
	s, err := Open(context.Background(), cfg, &Options{Transport: mem})
	require.NoError(t, err)
	defer s.Close()

	waitForEventKind(t, s.Events(), EventBadData, 2*time.Second)

	snap := s.Metrics().Snapshot()
	assert.Greater(t, snap.MalformedFrames, uint64(0))
}

func TestEmitEvictsDroppableEventsWhenChannelFull(t *testing.T) {
	s := &Session{events: make(chan Event, 3), metrics: NewMetrics(nil)}

	s.emit(noteEvent("1"))
	s.emit(noteEvent("2"))
	s.emit(noteEvent("3"))
	s.emit(noteEvent("4")) // channel full of droppable events, oldest evicted

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, (<-s.events).Note)
	}
	assert.Equal(t, []string{"2", "3", "4"}, got)
	assert.EqualValues(t, 1, s.metrics.Snapshot().DispatchDropped)
}

func TestEmitRetainsArtifactEventsOverDroppableOnes(t *testing.T) {
	s := &Session{events: make(chan Event, 2), metrics: NewMetrics(nil)}

	s.emit(artifactOkEvent("/a"))
	s.emit(noteEvent("note"))
	s.emit(badDataEvent(false)) // channel full; "note" is the only droppable event

	var kinds []EventKind
	for i := 0; i < 2; i++ {
		kinds = append(kinds, (<-s.events).Kind)
	}
	assert.Equal(t, []EventKind{EventArtifactOk, EventBadData}, kinds)
}

func TestEmitNeverBlocksWhenChannelIsFullOfRetainedEvents(t *testing.T) {
	s := &Session{events: make(chan Event, 2), metrics: NewMetrics(nil)}

	s.emit(artifactOkEvent("/a"))
	s.emit(badDataEvent(false))

	done := make(chan struct{})
	go func() {
		s.emit(artifactReloadedEvent("/a")) // channel full of retained events too
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked with a full channel of retained events")
	}
}

func TestSessionCloseStopsGoroutinesAndClosesChannel(t *testing.T) {
	path := t.TempDir() + "/firmware.elf"
	sites := []SyntheticLogSite{{Line: 1, Filename: "/src/a.c", Format: "x"}}
	require.NoError(t, NewSyntheticArtifact(path, sites, 64))

	mem := NewMemoryTransport(nil)
	cfg := Config{ArtifactPath: path, PollInterval: 10 * time.Millisecond}
	s, err := Open(context.Background(), cfg, &Options{Transport: mem})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	drained := false
	for i := 0; i < 10000; i++ {
		_, ok := <-s.Events()
		if !ok {
			drained = true
			break
		}
	}
	assert.True(t, drained, "Events() channel should close after draining buffered events")
}
