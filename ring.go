package ulogger

import (
	"sync"

	"github.com/adarwoo/ulogger/internal/ringbuf"
)

// ringbufBuffer wraps internal/ringbuf.Buffer[LogEntry] with a Clear
// operation, needed when Config.ClearOnReload drops history accumulated
// under a symbol table that no longer applies. internal/ringbuf has no
// Clear of its own (a fixed-capacity history buffer has no notion of
// being emptied mid-lifetime by default), so this wrapper swaps in a fresh
// buffer under its own lock rather than adding that operation to the
// generic type.
type ringbufBuffer struct {
	mu       sync.RWMutex
	capacity int
	buf      *ringbuf.Buffer[LogEntry]
}

func newRingBuffer(capacity int) *ringbufBuffer {
	return &ringbufBuffer{capacity: capacity, buf: ringbuf.New[LogEntry](capacity)}
}

func (r *ringbufBuffer) Append(e LogEntry) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.Append(e)
}

func (r *ringbufBuffer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.Len()
}

func (r *ringbufBuffer) HeadIndex() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.HeadIndex()
}

func (r *ringbufBuffer) TailIndex() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.TailIndex()
}

func (r *ringbufBuffer) Get(absIdx uint64) (LogEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.Get(absIdx)
}

func (r *ringbufBuffer) Latest(n int) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.Latest(n)
}

func (r *ringbufBuffer) SliceFrom(absStart uint64, n int) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buf.SliceFrom(absStart, n)
}

func (r *ringbufBuffer) Reversed(yield func(absIdx uint64, item LogEntry) bool) {
	r.mu.RLock()
	buf := r.buf
	r.mu.RUnlock()
	buf.Reversed(yield)
}

// Clear drops all history, used when the watched artifact reloads and
// Config.ClearOnReload is set.
func (r *ringbufBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = ringbuf.New[LogEntry](r.capacity)
}
