package ulogger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks operational statistics for a Session's decode pipeline:
// frames consumed off the transport, faults hit while reassembling them,
// and the health of the watched artifact.
type Metrics struct {
	// Frame-level counters
	FramesDecoded   atomic.Uint64
	MalformedFrames atomic.Uint64
	ShortFrames     atomic.Uint64

	// Reassembly-level counters
	BadIDFaults            atomic.Uint64
	UnexpectedContinuation atomic.Uint64
	IncompleteEntries      atomic.Uint64
	OverrunEvents          atomic.Uint64

	// Artifact lifecycle
	ArtifactReloads atomic.Uint64
	ArtifactFailed  atomic.Uint64

	// Dispatch channel overflow
	DispatchDropped atomic.Uint64

	// Ring buffer occupancy, updated by the consumer loop
	RingOccupancy atomic.Uint32

	// Session lifecycle
	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano

	prom *prometheusMetrics
}

// NewMetrics creates a Metrics. If registerer is non-nil, a matching set of
// Prometheus collectors is created and registered against it; a nil
// registerer skips Prometheus entirely, which is the normal case for tests
// and for a CLI run started without --metrics-addr.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	if registerer != nil {
		m.prom = newPrometheusMetrics(registerer)
	}
	return m
}

// RecordFrame records a single successfully-decoded COBS frame.
func (m *Metrics) RecordFrame() {
	m.FramesDecoded.Add(1)
	if m.prom != nil {
		m.prom.framesTotal.Inc()
	}
}

// RecordFault records a reassembly or framing fault by its error code.
// Codes outside the frame/reassembly taxonomy are ignored.
func (m *Metrics) RecordFault(code ErrorCode) {
	switch code {
	case CodeMalformedFrame:
		m.MalformedFrames.Add(1)
	case CodeShortFrame:
		m.ShortFrames.Add(1)
	case CodeBadID:
		m.BadIDFaults.Add(1)
	case CodeUnexpectedContinuation:
		m.UnexpectedContinuation.Add(1)
	default:
		return
	}
	if m.prom != nil {
		m.prom.faultsTotal.WithLabelValues(string(code)).Inc()
	}
}

// RecordIncomplete records a synthetic INCOMPLETE entry emitted on
// truncation (a new first frame arrived while a previous entry was still
// pending).
func (m *Metrics) RecordIncomplete() {
	m.IncompleteEntries.Add(1)
	if m.prom != nil {
		m.prom.incompleteTotal.Inc()
	}
}

// RecordOverrun records a firmware-reported OVERRUN log entry.
func (m *Metrics) RecordOverrun() {
	m.OverrunEvents.Add(1)
	if m.prom != nil {
		m.prom.overrunTotal.Inc()
	}
}

// RecordArtifactReload records a successful (re)load of the watched
// artifact, whether a first load or a reload of a changed one.
func (m *Metrics) RecordArtifactReload() {
	m.ArtifactReloads.Add(1)
	if m.prom != nil {
		m.prom.artifactReloadsTotal.Inc()
	}
}

// RecordArtifactFailure records a failed attempt to load the artifact.
func (m *Metrics) RecordArtifactFailure() {
	m.ArtifactFailed.Add(1)
	if m.prom != nil {
		m.prom.artifactFailuresTotal.Inc()
	}
}

// RecordDispatchDrop records n dispatch events flushed by the overflow
// policy.
func (m *Metrics) RecordDispatchDrop(n uint64) {
	if n == 0 {
		return
	}
	m.DispatchDropped.Add(n)
	if m.prom != nil {
		m.prom.dispatchDroppedTotal.Add(float64(n))
	}
}

// RecordRingOccupancy publishes the ring buffer's current occupancy.
func (m *Metrics) RecordRingOccupancy(n int) {
	m.RingOccupancy.Store(uint32(n))
	if m.prom != nil {
		m.prom.ringOccupancy.Set(float64(n))
	}
}

// Stop marks the session as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters, used by tests
// asserting on accumulated counts.
type MetricsSnapshot struct {
	FramesDecoded          uint64
	MalformedFrames        uint64
	ShortFrames            uint64
	BadIDFaults            uint64
	UnexpectedContinuation uint64
	IncompleteEntries      uint64
	OverrunEvents          uint64
	ArtifactReloads        uint64
	ArtifactFailed         uint64
	DispatchDropped        uint64
	RingOccupancy          uint32
	UptimeNs               uint64
	FrameRate              float64 // frames decoded per second of uptime
	FaultRate              float64 // faults per 1000 frames decoded
}

// Snapshot returns the current values of all counters, plus derived rates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		FramesDecoded:          m.FramesDecoded.Load(),
		MalformedFrames:        m.MalformedFrames.Load(),
		ShortFrames:            m.ShortFrames.Load(),
		BadIDFaults:            m.BadIDFaults.Load(),
		UnexpectedContinuation: m.UnexpectedContinuation.Load(),
		IncompleteEntries:      m.IncompleteEntries.Load(),
		OverrunEvents:          m.OverrunEvents.Load(),
		ArtifactReloads:        m.ArtifactReloads.Load(),
		ArtifactFailed:         m.ArtifactFailed.Load(),
		DispatchDropped:        m.DispatchDropped.Load(),
		RingOccupancy:          m.RingOccupancy.Load(),
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		snap.FrameRate = float64(snap.FramesDecoded) / (float64(snap.UptimeNs) / 1e9)
	}
	totalFaults := snap.MalformedFrames + snap.ShortFrames + snap.BadIDFaults + snap.UnexpectedContinuation
	if snap.FramesDecoded > 0 {
		snap.FaultRate = float64(totalFaults) / float64(snap.FramesDecoded) * 1000.0
	}

	return snap
}

// Reset zeroes all counters; useful for testing.
func (m *Metrics) Reset() {
	m.FramesDecoded.Store(0)
	m.MalformedFrames.Store(0)
	m.ShortFrames.Store(0)
	m.BadIDFaults.Store(0)
	m.UnexpectedContinuation.Store(0)
	m.IncompleteEntries.Store(0)
	m.OverrunEvents.Store(0)
	m.ArtifactReloads.Store(0)
	m.ArtifactFailed.Store(0)
	m.DispatchDropped.Store(0)
	m.RingOccupancy.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable observation of decode-pipeline activity,
// independent of the built-in Metrics counters (e.g. a test double that
// asserts call counts).
type Observer interface {
	ObserveFrame()
	ObserveFault(code ErrorCode)
	ObserveLogEntry(e LogEntry)
}

// NoOpObserver is a no-op Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveFrame()               {}
func (NoOpObserver) ObserveFault(ErrorCode)       {}
func (NoOpObserver) ObserveLogEntry(LogEntry)     {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveFrame() {
	o.metrics.RecordFrame()
}

func (o *MetricsObserver) ObserveFault(code ErrorCode) {
	o.metrics.RecordFault(code)
}

func (o *MetricsObserver) ObserveLogEntry(e LogEntry) {
	if e.Incomplete {
		o.metrics.RecordIncomplete()
	}
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)

// prometheusMetrics holds the Prometheus collectors backing a Metrics.
// registerOnce guards against double-registration: a process that opens
// more than one Session (e.g. a test harness) shares a single collector
// set rather than panicking on a duplicate metric name.
type prometheusMetrics struct {
	framesTotal           prometheus.Counter
	faultsTotal           *prometheus.CounterVec
	incompleteTotal       prometheus.Counter
	overrunTotal          prometheus.Counter
	artifactReloadsTotal  prometheus.Counter
	artifactFailuresTotal prometheus.Counter
	dispatchDroppedTotal  prometheus.Counter
	ringOccupancy         prometheus.Gauge
}

var (
	registerOnce      sync.Once
	registeredMetrics *prometheusMetrics
)

func newPrometheusMetrics(registerer prometheus.Registerer) *prometheusMetrics {
	registerOnce.Do(func() {
		pm := &prometheusMetrics{
			framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_frames_decoded_total",
				Help: "Total COBS frames successfully decoded off the transport.",
			}),
			faultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ulogger_faults_total",
				Help: "Total framing/reassembly faults, by error code.",
			}, []string{"code"}),
			incompleteTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_incomplete_entries_total",
				Help: "Total synthetic INCOMPLETE entries emitted on truncation.",
			}),
			overrunTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_overrun_events_total",
				Help: "Total firmware-reported OVERRUN log entries seen.",
			}),
			artifactReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_artifact_reloads_total",
				Help: "Total successful (re)loads of the watched artifact.",
			}),
			artifactFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_artifact_failures_total",
				Help: "Total failed attempts to load the watched artifact.",
			}),
			dispatchDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ulogger_dispatch_dropped_total",
				Help: "Total dispatch events flushed by the overflow policy.",
			}),
			ringOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ulogger_ring_buffer_occupancy",
				Help: "Current number of entries held in the decoded-log ring buffer.",
			}),
		}
		registerer.MustRegister(
			pm.framesTotal,
			pm.faultsTotal,
			pm.incompleteTotal,
			pm.overrunTotal,
			pm.artifactReloadsTotal,
			pm.artifactFailuresTotal,
			pm.dispatchDroppedTotal,
			pm.ringOccupancy,
		)
		registeredMetrics = pm
	})
	return registeredMetrics
}
