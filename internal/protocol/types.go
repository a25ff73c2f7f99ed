package protocol

import "errors"

// Frame tags written by the worker.
const (
	TagScanResults = "SCAN_RESULTS"
	TagList        = "LIST"
	TagAddOK       = "ADD_OK"
	TagRemoveOK    = "REMOVE_OK"
)

// EndSentinel terminates every frame payload.
const EndSentinel = ".END."

// DefaultMaxFrameBytes bounds how much a single unterminated frame may buffer.
const DefaultMaxFrameBytes = 8 * 1024 * 1024

var (
	// ErrMalformedFrame reports an unterminated or oversized frame. The partial buffer is discarded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvalidCommand reports a command that cannot be encoded or parsed.
	ErrInvalidCommand = errors.New("invalid command")
)

// Verb is a command verb understood by the worker.
type Verb string

const (
	VerbScan   Verb = "scan"
	VerbList   Verb = "list"
	VerbAdd    Verb = "add"
	VerbRemove Verb = "remove"
)

// TakesArg reports whether the verb requires a path argument.
func (v Verb) TakesArg() bool {
	return v == VerbAdd || v == VerbRemove
}

// Valid reports whether v is a known verb.
func (v Verb) Valid() bool {
	switch v {
	case VerbScan, VerbList, VerbAdd, VerbRemove:
		return true
	}
	return false
}

// ResponseTag returns the frame tag that answers v. Add and remove are only
// answered when the worker runs with acknowledgments enabled; otherwise they
// return "" (fire-and-forget).
func (v Verb) ResponseTag(acks bool) string {
	switch v {
	case VerbScan:
		return TagScanResults
	case VerbList:
		return TagList
	case VerbAdd:
		if acks {
			return TagAddOK
		}
	case VerbRemove:
		if acks {
			return TagRemoveOK
		}
	}
	return ""
}

// Command is one decoded command line.
type Command struct {
	Verb Verb
	Arg  string
}

// Frame is one complete tagged unit of worker output.
type Frame struct {
	Tag     string
	Payload string
}
