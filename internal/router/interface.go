package router

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/foldermon/internal/protocol"
)

var (
	// ErrWorkerUnavailable means no live worker can receive or answer the request.
	ErrWorkerUnavailable = errors.New("worker unavailable")
	// ErrTimeout means the response did not arrive within the request deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrUnmatchedFrame reports a frame with no pending request for its tag.
	ErrUnmatchedFrame = errors.New("unmatched frame")
)

// LineWriter is the command channel to the worker.
type LineWriter interface {
	WriteLine(text string) error
}

// Publisher receives router events (unmatched frames).
type Publisher interface {
	Publish(eventType string, data any)
}

// Request is one outstanding command awaiting its response frame.
type Request struct {
	ID      string
	Verb    protocol.Verb
	Arg     string
	Tag     string // expected response tag; "" for fire-and-forget
	Timeout time.Duration
	Created time.Time

	result    chan result
	written   bool
	abandoned bool
}

type result struct {
	payload string
	err     error
}

// NewRequest builds a request with a fresh correlation id.
func NewRequest(verb protocol.Verb, arg, tag string, timeout time.Duration) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Verb:    verb,
		Arg:     arg,
		Tag:     tag,
		Timeout: timeout,
		Created: time.Now(),
		result:  make(chan result, 1),
	}
}
