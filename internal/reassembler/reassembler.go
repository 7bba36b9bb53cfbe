// Package reassembler turns a sequence of raw COBS-decoded frames into
// completed log entries, using the current symbol table to interpret each
// frame's argument payload. It is a direct port of the firmware-side wire
// convention: one argument per frame, with a continuation bit marking
// frames after the first.
package reassembler

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/adarwoo/ulogger/internal/constants"
	"github.com/adarwoo/ulogger/internal/symtab"
	"github.com/adarwoo/ulogger/internal/typecode"
)

// Sentinel errors for the reassembly fault taxonomy. Callers distinguish
// them with errors.Is.
var (
	ErrNotReady               = errors.New("reassembler: symbol table not ready")
	ErrShortFrame             = errors.New("reassembler: frame shorter than header")
	ErrBadID                  = errors.New("reassembler: log id out of range")
	ErrUnexpectedContinuation = errors.New("reassembler: continuation frame with no matching pending log")
)

// Value is a decoded argument.
type Value = typecode.Value

// LogEntry is one decoded or synthetic event ready for display.
type LogEntry struct {
	Site        symtab.LogSite
	Timestamp   time.Time
	Args        []Value
	Incomplete  bool // true for a synthetic "previous log truncated" marker
	IncompleteN int  // number of args collected before truncation, if Incomplete
	Overrun     bool // true for a synthetic "firmware dropped N logs" marker
}

// state holds the in-flight reassembly for the current symbol table. It is
// owned by a single goroutine (the decoder); no internal locking.
type state struct {
	pendingLogID    uint16
	hasPending      bool
	pendingArgs     []Value
	pendingStrBuf   []byte
	pendingSite     symtab.LogSite
	incompleteQueue []LogEntry
	inBadDataState  bool
}

// State is the reassembler's mutable state machine.
type State struct {
	s   state
	now func() time.Time
}

// New creates a reassembler state. now defaults to time.Now; tests may
// substitute a deterministic clock.
func New() *State {
	return &State{now: time.Now}
}

// Reset clears all in-flight reassembly state. Must be called synchronously
// with any symbol table swap so no pending entry is ever finished against a
// stale type vector.
func (r *State) Reset() {
	if r.s.pendingStrBuf != nil {
		putScratch(r.s.pendingStrBuf)
	}
	r.s = state{}
}

// SetClock overrides the timestamp source, for deterministic tests.
func (r *State) SetClock(now func() time.Time) {
	r.now = now
}

// Result reports what a single Decode call produced, plus bad-data
// transition bookkeeping so callers can emit a single coalesced BadData
// event rather than one per faulty frame.
type Result struct {
	Entry            *LogEntry // non-nil if a LogEntry was produced
	BadDataTransition bool     // true only on the frame that first went bad
	Recovered        bool      // true only on the frame that first decoded cleanly again
}

// Decode processes one raw (post-COBS) frame against table and returns at
// most one produced entry, plus bad-data transition bookkeeping. A
// synthetic INCOMPLETE entry for a displaced pending log is not returned
// here; it is queued and retrieved with DrainIncomplete.
func (r *State) Decode(frame []byte, table *symtab.SymbolTable) (Result, error) {
	if len(frame) == 0 {
		return Result{}, nil
	}
	if table == nil {
		return r.fault(ErrNotReady)
	}
	if len(frame) < 2 {
		return r.fault(ErrShortFrame)
	}

	order := table.ByteOrder()
	headerRaw := order.Uint16(frame[0:2])
	isFirst := headerRaw&constants.ContinuationBit16 == 0
	logID := headerRaw & constants.LogIDMask16
	payload := frame[2:]

	switch logID {
	case table.OverrunID():
		return r.recovered(r.makeOverrun(payload)), nil
	case table.StartID():
		return r.recovered(r.makeStart()), nil
	}

	site, ok := table.Lookup(logID)
	if !ok {
		return r.fault(ErrBadID)
	}

	if isFirst {
		var displaced *LogEntry
		if r.s.hasPending {
			displaced = r.buildIncomplete()
			r.s.incompleteQueue = append(r.s.incompleteQueue, *displaced)
		}
		r.s.hasPending = true
		r.s.pendingLogID = logID
		r.s.pendingSite = site
		r.s.pendingArgs = nil
		if r.s.pendingStrBuf != nil {
			putScratch(r.s.pendingStrBuf)
			r.s.pendingStrBuf = nil
		}
	} else {
		if !r.s.hasPending || r.s.pendingLogID != logID {
			r.s.hasPending = false
			return r.fault(ErrUnexpectedContinuation)
		}
	}

	idx := len(r.s.pendingArgs)
	if idx >= len(r.s.pendingSite.Types) {
		r.s.hasPending = false
		return r.fault(fmt.Errorf("reassembler: log id %d received more args than its type vector declares", logID))
	}
	expected := r.s.pendingSite.Types[idx]

	if expected == typecode.Str {
		if r.s.pendingStrBuf == nil {
			r.s.pendingStrBuf = getScratch(len(payload))
		}
		r.s.pendingStrBuf = append(r.s.pendingStrBuf, payload...)
		nul := bytes.IndexByte(r.s.pendingStrBuf, 0)
		if nul < 0 {
			return r.recovered(nil), nil
		}
		s := string(r.s.pendingStrBuf[:nul])
		r.s.pendingArgs = append(r.s.pendingArgs, Value{Code: typecode.Str, Str: s})
		putScratch(r.s.pendingStrBuf)
		r.s.pendingStrBuf = nil
	} else {
		width, _ := expected.FixedWidth()
		if len(payload) < width {
			r.s.hasPending = false
			return r.fault(fmt.Errorf("reassembler: log id %d arg %d: %w", logID, idx, ErrShortFrame))
		}
		v, _, err := typecode.Decode(expected, payload, order)
		if err != nil {
			r.s.hasPending = false
			return r.fault(err)
		}
		r.s.pendingArgs = append(r.s.pendingArgs, v)
	}

	if len(r.s.pendingArgs) == len(r.s.pendingSite.Types) {
		entry := &LogEntry{
			Site:      r.s.pendingSite,
			Timestamp: r.now(),
			Args:      r.s.pendingArgs,
		}
		r.s.hasPending = false
		r.s.pendingArgs = nil
		return r.recovered(entry), nil
	}

	return r.recovered(nil), nil
}

// DrainIncomplete pops one queued synthetic INCOMPLETE entry, if any, in
// FIFO order. Callers must drain this queue before handing the next raw
// frame to Decode, preserving entry ordering.
func (r *State) DrainIncomplete() (LogEntry, bool) {
	if len(r.s.incompleteQueue) == 0 {
		return LogEntry{}, false
	}
	e := r.s.incompleteQueue[0]
	r.s.incompleteQueue = r.s.incompleteQueue[1:]
	return e, true
}

func (r *State) buildIncomplete() *LogEntry {
	return &LogEntry{
		Site:        r.s.pendingSite,
		Timestamp:   r.now(),
		Incomplete:  true,
		IncompleteN: len(r.s.pendingArgs),
	}
}

func (r *State) makeOverrun(payload []byte) *LogEntry {
	var n byte
	if len(payload) > 0 {
		n = payload[0]
	}
	return &LogEntry{
		Site: symtab.LogSite{
			Format: fmt.Sprintf("< ------------------ %d Logs lost ------------------ >", n),
		},
		Timestamp: r.now(),
		Args:      []Value{{Code: typecode.U8, U64: uint64(n)}},
		Overrun:   true,
	}
}

func (r *State) makeStart() *LogEntry {
	return &LogEntry{
		Site: symtab.LogSite{
			Format: "###############################################################################",
		},
		Timestamp: r.now(),
	}
}

// ReportFrameFault folds a fault that occurred before a frame could even
// reach Decode (e.g. a COBS framing error) into the same bad-data
// coalescing state Decode itself uses, so a caller sees one BadData event
// per fault run regardless of whether the run started with a framing
// fault or a reassembly fault. It returns true the first time a run of
// faults begins.
func (r *State) ReportFrameFault() bool {
	res, _ := r.fault(nil)
	return res.BadDataTransition
}

// fault records a bad-data transition and returns it to the caller. Repeat
// faults while already in a bad-data state report no further transition.
func (r *State) fault(err error) (Result, error) {
	wasBad := r.s.inBadDataState
	r.s.inBadDataState = true
	return Result{BadDataTransition: !wasBad}, err
}

// recovered clears the bad-data flag, reporting a recovery transition the
// first time a frame decodes cleanly after a run of faults.
func (r *State) recovered(entry *LogEntry) Result {
	wasBad := r.s.inBadDataState
	r.s.inBadDataState = false
	return Result{Entry: entry, Recovered: wasBad}
}
