package ulogger

import (
	"github.com/adarwoo/ulogger/internal/reassembler"
)

// LogEntry is a decoded or synthetic log event ready for display.
type LogEntry = reassembler.LogEntry

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// EventWaitForArtifact announces the watcher is waiting for the
	// artifact to first appear.
	EventWaitForArtifact EventKind = iota
	// EventArtifactOk announces the artifact was loaded successfully for
	// the first time.
	EventArtifactOk
	// EventArtifactFailed announces an artifact load attempt failed.
	EventArtifactFailed
	// EventArtifactReloaded announces the artifact changed and was
	// reloaded successfully.
	EventArtifactReloaded
	// EventBadData announces the transition into, or recovery from, a
	// run of framing/reassembly faults.
	EventBadData
	// EventLogEntry carries a decoded or synthetic LogEntry.
	EventLogEntry
	// EventNote carries a free-form informational message (serial port
	// reopen attempts and the like).
	EventNote
	// EventQuit announces the Session has stopped and no further events
	// will be sent.
	EventQuit
)

// String returns a human-readable label for the kind, used by line-mode
// UIs and log output.
func (k EventKind) String() string {
	switch k {
	case EventWaitForArtifact:
		return "WaitForArtifact"
	case EventArtifactOk:
		return "ArtifactOk"
	case EventArtifactFailed:
		return "ArtifactFailed"
	case EventArtifactReloaded:
		return "ArtifactReloaded"
	case EventBadData:
		return "BadData"
	case EventLogEntry:
		return "LogEntry"
	case EventNote:
		return "Note"
	case EventQuit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// Event is the tagged union dispatched on a Session's Events() channel.
// Exactly the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// Entry is populated for EventLogEntry.
	Entry LogEntry

	// Recovered distinguishes, for EventBadData, the transition into a
	// bad-data run (false) from recovery out of one (true).
	Recovered bool

	// Err is populated for EventArtifactFailed and carries the underlying
	// *Error.
	Err error

	// Note is populated for EventNote with a free-form message.
	Note string

	// ArtifactPath is populated for the artifact-lifecycle events.
	ArtifactPath string
}

func waitForArtifactEvent(path string) Event {
	return Event{Kind: EventWaitForArtifact, ArtifactPath: path}
}

func artifactOkEvent(path string) Event {
	return Event{Kind: EventArtifactOk, ArtifactPath: path}
}

func artifactFailedEvent(path string, err error) Event {
	return Event{Kind: EventArtifactFailed, ArtifactPath: path, Err: err}
}

func artifactReloadedEvent(path string) Event {
	return Event{Kind: EventArtifactReloaded, ArtifactPath: path}
}

func badDataEvent(recovered bool) Event {
	return Event{Kind: EventBadData, Recovered: recovered}
}

func logEntryEvent(e LogEntry) Event {
	return Event{Kind: EventLogEntry, Entry: e}
}

func noteEvent(msg string) Event {
	return Event{Kind: EventNote, Note: msg}
}

func quitEvent() Event {
	return Event{Kind: EventQuit}
}

// dispatchPriority reports whether an event kind is retained under the
// overflow policy (true) or droppable to make room for it (false).
// EventLogEntry and EventNote are droppable; every other kind — artifact
// lifecycle and bad-data transitions — is load-bearing for the UI's
// understanding of session health and is evicted only once no droppable
// event is left to evict.
func dispatchPriority(k EventKind) bool {
	switch k {
	case EventLogEntry, EventNote:
		return false
	default:
		return true
	}
}
