// Package ulogger decodes the firmware's pre-tokenized log stream into
// LogEntry values, watching a symbol artifact for (re)loads and a serial
// (or fake) transport for COBS-framed wire data.
package ulogger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adarwoo/ulogger/internal/cobs"
	"github.com/adarwoo/ulogger/internal/constants"
	"github.com/adarwoo/ulogger/internal/logging"
	"github.com/adarwoo/ulogger/internal/reassembler"
	"github.com/adarwoo/ulogger/internal/symtab"
	itransport "github.com/adarwoo/ulogger/internal/transport"
	"github.com/adarwoo/ulogger/internal/watcher"
	"github.com/adarwoo/ulogger/transport"
)

// Config holds a Session's configuration surface.
type Config struct {
	// ArtifactPath is the ELF file the watcher polls for the .logs
	// section (symbol metadata).
	ArtifactPath string

	// SerialPort is the device path opened as the wire transport (e.g.
	// "/dev/ttyACM0"). Ignored if Options.Transport is set.
	SerialPort string
	SerialBaud int

	// IDWidth selects the on-wire log id field width.
	IDWidth symtab.IDWidth

	// BufferDepth is the ring buffer's fixed capacity in LogEntry slots.
	BufferDepth int

	// DispatchCapacity is the Events() channel's buffer depth.
	DispatchCapacity int

	// DisplayLevelThreshold filters which log levels a consumer of
	// Events() is expected to render; Session itself does not filter —
	// it is carried here so cmd/ulogger's line-mode adapter and any
	// future UI boundary share one source of truth.
	DisplayLevelThreshold uint32

	// ClearOnReload clears the ring buffer's accumulated history when the
	// artifact reloads, rather than retaining entries decoded under the
	// previous symbol table.
	ClearOnReload bool

	PollInterval      time.Duration
	ReadTimeout       time.Duration
	ReopenBackoff     time.Duration
	MaxReopenAttempts int
}

// DefaultConfig returns a Config with every policy knob set to its
// documented default; callers typically start from this and override
// ArtifactPath/SerialPort.
func DefaultConfig() Config {
	return Config{
		IDWidth:               symtab.IDWidth16,
		BufferDepth:           constants.DefaultRingBufferCapacity,
		DispatchCapacity:      constants.DefaultDispatchChannelCapacity,
		DisplayLevelThreshold: constants.DefaultDisplayLevelThreshold,
		ClearOnReload:         true,
		PollInterval:          constants.DefaultPollInterval,
		ReadTimeout:           constants.DefaultReadTimeout,
		ReopenBackoff:         constants.DefaultReopenBackoff,
		MaxReopenAttempts:     constants.DefaultMaxReopenAttempts,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferDepth <= 0 {
		c.BufferDepth = d.BufferDepth
	}
	if c.DispatchCapacity <= 0 {
		c.DispatchCapacity = d.DispatchCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ReopenBackoff <= 0 {
		c.ReopenBackoff = d.ReopenBackoff
	}
	if c.MaxReopenAttempts <= 0 {
		c.MaxReopenAttempts = d.MaxReopenAttempts
	}
	return c
}

// Options contains additional, rarely-overridden dependencies for Open.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context

	// Transport overrides the transport Session would otherwise open
	// from Config.SerialPort, e.g. transport.NewMemory in tests. A
	// Transport supplied this way is not reopened on I/O error: the
	// bounded reopen-retry policy only applies to a serial port Session
	// opened itself.
	Transport itransport.Transport

	// Logger overrides the package default logger.
	Logger *logging.Logger

	// Observer receives decode-pipeline callbacks in addition to the
	// Session's own Metrics counters (default: NoOpObserver).
	Observer Observer

	// Registerer registers Prometheus collectors, if non-nil.
	Registerer prometheus.Registerer
}

// Session is the running decode pipeline: a watcher goroutine publishing
// symbol table (re)loads, a decoder goroutine turning transport bytes into
// LogEntry values, and a bounded dispatch channel fanning both out to
// Events().
type Session struct {
	cfg Config
	log *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	watcherInst      *watcher.Watcher
	transportMu      sync.Mutex
	activeTransport  itransport.Transport
	fixedTransport   bool
	ring             *ringbufBuffer
	metrics          *Metrics
	observer         Observer
	clock            *monotonicClock

	events chan Event
	emitMu sync.Mutex

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Open wires the watcher, transport + COBS reader, and reassembler
// goroutines and returns a running Session. The caller must call Close to
// release the transport and stop both goroutines.
func Open(ctx context.Context, cfg Config, options *Options) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}
	cfg = cfg.withDefaults()

	if cfg.ArtifactPath == "" {
		return nil, NewError("Open", CodeNotReady, "ArtifactPath is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	var activeTransport itransport.Transport
	fixed := false
	if options.Transport != nil {
		activeTransport = options.Transport
		fixed = true
	} else {
		if cfg.SerialPort == "" {
			return nil, NewError("Open", CodePortUnavailable, "SerialPort is required when Options.Transport is not set")
		}
		t, err := transport.NewSerial(cfg.SerialPort, cfg.SerialBaud, cfg.ReadTimeout)
		if err != nil {
			return nil, NewArtifactError("Open", CodePortUnavailable, err)
		}
		activeTransport = t
	}
	activeTransport.SetReadTimeout(cfg.ReadTimeout)

	metrics := NewMetrics(options.Registerer)
	var observer Observer = NoOpObserver{}
	if options.Observer != nil {
		observer = options.Observer
	}

	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		cfg:             cfg,
		log:             logger.WithComponent("session"),
		ctx:             sctx,
		cancel:          cancel,
		watcherInst:     watcher.New(cfg.ArtifactPath, cfg.IDWidth, cfg.PollInterval),
		activeTransport: activeTransport,
		fixedTransport:  fixed,
		ring:            newRingBuffer(cfg.BufferDepth),
		metrics:         metrics,
		observer:        observer,
		clock:           &monotonicClock{},
		events:          make(chan Event, cfg.DispatchCapacity),
	}

	s.wg.Add(2)
	go s.runWatcher()
	go s.runDecoder()

	return s, nil
}

// Events returns the channel Session dispatches Event values on. The
// channel is closed once Close has fully stopped both goroutines.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Metrics returns the Session's metrics counters.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// Ring returns the decoded-log history buffer.
func (s *Session) Ring() *ringbufBuffer {
	return s.ring
}

// Close stops both goroutines and releases the transport. It is safe to
// call more than once; only the first call has effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.transportMu.Lock()
		t := s.activeTransport
		s.transportMu.Unlock()
		if t != nil {
			s.closeErr = t.Close()
		}

		s.metrics.Stop()
		s.wg.Wait()

		s.emit(quitEvent())
		close(s.events)
	})
	return s.closeErr
}

func (s *Session) runWatcher() {
	defer s.wg.Done()
	s.watcherInst.Run(s.ctx, s.handleTransition)
}

func (s *Session) handleTransition(t watcher.Transition, err error) {
	switch t {
	case watcher.TransitionWaiting:
		s.emit(waitForArtifactEvent(s.cfg.ArtifactPath))
	case watcher.TransitionOk:
		s.metrics.RecordArtifactReload()
		s.emit(artifactOkEvent(s.cfg.ArtifactPath))
	case watcher.TransitionReloaded:
		s.metrics.RecordArtifactReload()
		if s.cfg.ClearOnReload {
			s.ring.Clear()
		}
		s.emit(artifactReloadedEvent(s.cfg.ArtifactPath))
	case watcher.TransitionFailed:
		s.metrics.RecordArtifactFailure()
		s.emit(artifactFailedEvent(s.cfg.ArtifactPath, WrapError("watcher.poll", err)))
	}
}

func (s *Session) runDecoder() {
	defer s.wg.Done()

	s.transportMu.Lock()
	reader := cobs.NewReader(s.activeTransport)
	s.transportMu.Unlock()

	reasm := reassembler.New()
	reasm.SetClock(s.clock.now)
	var lastTable *symtab.SymbolTable

	for {
		if s.ctx.Err() != nil {
			return
		}

		if e, ok := reasm.DrainIncomplete(); ok {
			s.metrics.RecordIncomplete()
			s.observer.ObserveLogEntry(e)
			s.appendAndEmit(e)
			continue
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				select {
				case <-s.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}
			if errors.Is(err, cobs.ErrMalformedFrame) {
				s.reportFrameFault(reasm, CodeMalformedFrame)
				continue
			}
			if errors.Is(err, cobs.ErrShortFrame) {
				s.reportFrameFault(reasm, CodeShortFrame)
				continue
			}
			if !s.reopenTransport() {
				return
			}
			s.transportMu.Lock()
			reader = cobs.NewReader(s.activeTransport)
			s.transportMu.Unlock()
			continue
		}

		table := s.watcherInst.Table()
		if table != lastTable {
			reasm.Reset()
			lastTable = table
		}

		result, err := reasm.Decode(frame, table)
		if err != nil {
			code := reassemblyFaultCode(err)
			s.metrics.RecordFault(code)
			s.observer.ObserveFault(code)
			if result.BadDataTransition {
				s.emit(badDataEvent(false))
			}
			continue
		}

		s.metrics.RecordFrame()
		s.observer.ObserveFrame()
		if result.Recovered {
			s.emit(badDataEvent(true))
		}
		if result.Entry != nil {
			if result.Entry.Overrun {
				s.metrics.RecordOverrun()
			}
			s.observer.ObserveLogEntry(*result.Entry)
			s.appendAndEmit(*result.Entry)
		}
	}
}

func (s *Session) reportFrameFault(reasm *reassembler.State, code ErrorCode) {
	s.metrics.RecordFault(code)
	s.observer.ObserveFault(code)
	if reasm.ReportFrameFault() {
		s.emit(badDataEvent(false))
	}
}

func reassemblyFaultCode(err error) ErrorCode {
	switch {
	case errors.Is(err, reassembler.ErrBadID):
		return CodeBadID
	case errors.Is(err, reassembler.ErrUnexpectedContinuation):
		return CodeUnexpectedContinuation
	case errors.Is(err, reassembler.ErrShortFrame):
		return CodeShortFrame
	case errors.Is(err, reassembler.ErrNotReady):
		return CodeNotReady
	default:
		return CodeMalformedFrame
	}
}

// reopenTransport retries opening a fresh serial transport with a fixed
// backoff, up to MaxReopenAttempts, surfacing each attempt as a Note.
// A Session opened with a caller-supplied Transport (Options.Transport)
// never reopens: the caller owns that transport's lifecycle.
func (s *Session) reopenTransport() bool {
	if s.fixedTransport {
		s.emit(noteEvent("transport unavailable"))
		return false
	}

	for attempt := 1; attempt <= s.cfg.MaxReopenAttempts; attempt++ {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(s.cfg.ReopenBackoff):
		}

		s.emit(noteEvent(fmt.Sprintf("reopening %s, attempt %d/%d", s.cfg.SerialPort, attempt, s.cfg.MaxReopenAttempts)))
		t, err := transport.NewSerial(s.cfg.SerialPort, s.cfg.SerialBaud, s.cfg.ReadTimeout)
		if err != nil {
			s.log.Warn("transport reopen failed", "attempt", attempt, "err", err)
			continue
		}

		s.transportMu.Lock()
		s.activeTransport = t
		s.transportMu.Unlock()
		s.log.Info("transport reopened", "attempt", attempt)
		return true
	}

	s.emit(noteEvent("transport unavailable, giving up after max attempts"))
	return false
}

func (s *Session) appendAndEmit(e LogEntry) {
	s.ring.Append(e)
	s.metrics.RecordRingOccupancy(s.ring.Len())
	s.emit(logEntryEvent(e))
}

// emit dispatches e onto Events(), applying the overflow policy when the
// channel is full: the channel is fully drained,
// e appended, and the oldest droppable events (EventLogEntry/EventNote)
// are evicted, oldest first, until what remains fits the channel's fixed
// capacity again. Only once every droppable event has been evicted does a
// retained kind (artifact lifecycle, bad data) get dropped, and then only
// the oldest one — a channel has no way to grow past its declared
// capacity, so something must give before the re-enqueue below, which
// never blocks. The number of evicted events is added to
// Metrics.DispatchDropped; no Note event announcing the loss is emitted.
func (s *Session) emit(e Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	select {
	case s.events <- e:
		return
	default:
	}

	pending := make([]Event, 0, cap(s.events)+1)
drain:
	for {
		select {
		case old := <-s.events:
			pending = append(pending, old)
		default:
			break drain
		}
	}
	pending = append(pending, e)

	var dropped uint64
	capacity := cap(s.events)
	for len(pending) > capacity {
		idx := oldestDroppableIndex(pending)
		if idx < 0 {
			idx = 0
		}
		pending = append(pending[:idx], pending[idx+1:]...)
		dropped++
	}

	for _, ev := range pending {
		s.events <- ev
	}

	if dropped > 0 {
		s.metrics.RecordDispatchDrop(dropped)
	}
}

// oldestDroppableIndex returns the index of the first (oldest) droppable
// event in events, or -1 if none is droppable.
func oldestDroppableIndex(events []Event) int {
	for i, ev := range events {
		if !dispatchPriority(ev.Kind) {
			return i
		}
	}
	return -1
}

// monotonicClock returns wall-clock time.Now() readings clamped so that
// each one is strictly after the previous one, even across wall-clock
// jitter. The first reading is returned as is; timestamps are not
// rebased to zero.
type monotonicClock struct {
	mu       sync.Mutex
	last     time.Time
	anchored atomic.Bool
}

func (c *monotonicClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now()
	if !c.anchored.Load() {
		c.anchored.Store(true)
		c.last = t
		return t
	}
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
