package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/foldermon/internal/protocol"
)

// EventFrameUnmatched is published for every frame that had no waiting request.
const EventFrameUnmatched = "frame.unmatched"

// Router correlates worker frames to the requests that caused them.
//
// Requests for the same tag are answered in the order their commands were
// written. A request that gave up (timeout or cancellation) after its command
// was written stays queued as a tombstone so that its late frame is consumed
// and never handed to a newer request.
type Router struct {
	logger    *slog.Logger
	publisher Publisher

	// writeMu orders enqueue+write so queue order equals stdin order.
	writeMu sync.Mutex

	mu        sync.Mutex
	writer    LineWriter
	cause     error
	queues    map[string][]*Request
	unmatched int64
}

// Option configures a Router.
type Option func(*Router)

// WithPublisher sets the sink for unmatched-frame events.
func WithPublisher(p Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// New creates a detached router. Sends fail with ErrWorkerUnavailable until Attach.
func New(logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		logger: logger,
		queues: make(map[string][]*Request),
		cause:  fmt.Errorf("worker not started"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach connects a live worker.
func (r *Router) Attach(w LineWriter) {
	r.mu.Lock()
	r.writer = w
	r.cause = nil
	r.mu.Unlock()
}

// Detach disconnects the worker and fails every pending request with
// ErrWorkerUnavailable. Later sends fail fast until the next Attach.
func (r *Router) Detach(cause error) {
	r.mu.Lock()
	r.writer = nil
	if cause == nil {
		cause = fmt.Errorf("worker detached")
	}
	r.cause = cause
	var failed []*Request
	for tag, q := range r.queues {
		for _, req := range q {
			if !req.abandoned {
				failed = append(failed, req)
			}
		}
		delete(r.queues, tag)
	}
	r.mu.Unlock()

	for _, req := range failed {
		req.result <- result{err: fmt.Errorf("%w: %v", ErrWorkerUnavailable, cause)}
	}
	if len(failed) > 0 {
		r.logger.Warn("failed pending requests", "count", len(failed), "cause", cause)
	}
}

// Send writes the request's command and, when a response tag is expected,
// blocks until the matching frame arrives, the request times out, or ctx ends.
// Fire-and-forget requests return as soon as the command is written.
func (r *Router) Send(ctx context.Context, req *Request) (string, error) {
	line, err := protocol.EncodeCommand(req.Verb, req.Arg)
	if err != nil {
		return "", err
	}
	logger := r.logger.With("request_id", req.ID, "verb", string(req.Verb))

	r.writeMu.Lock()
	r.mu.Lock()
	w := r.writer
	if w == nil {
		cause := r.cause
		r.mu.Unlock()
		r.writeMu.Unlock()
		return "", fmt.Errorf("%w: %v", ErrWorkerUnavailable, cause)
	}
	if req.Tag != "" {
		r.queues[req.Tag] = append(r.queues[req.Tag], req)
	}
	r.mu.Unlock()

	werr := w.WriteLine(line)

	r.mu.Lock()
	if werr != nil {
		removed := r.removeLocked(req)
		r.mu.Unlock()
		r.writeMu.Unlock()
		if !removed && req.Tag != "" {
			// Already failed by Detach.
			res := <-req.result
			return res.payload, res.err
		}
		logger.Warn("command write failed", "error", werr)
		return "", fmt.Errorf("%w: %w", ErrWorkerUnavailable, werr)
	}
	req.written = true
	r.mu.Unlock()
	r.writeMu.Unlock()

	logger.Debug("command written", "tag", req.Tag)
	if req.Tag == "" {
		return "", nil
	}

	var timeout <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-req.result:
		return res.payload, res.err
	case <-timeout:
		if res, ok := r.abandon(req); ok {
			return res.payload, res.err
		}
		logger.Warn("request timed out", "timeout", req.Timeout)
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, req.Verb, req.Timeout)
	case <-ctx.Done():
		if res, ok := r.abandon(req); ok {
			return res.payload, res.err
		}
		return "", ctx.Err()
	}
}

// abandon marks req as given up. If the result already arrived it is returned
// with ok=true instead.
func (r *Router) abandon(req *Request) (result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case res := <-req.result:
		return res, true
	default:
	}
	if !r.queuedLocked(req) {
		// Fulfilled or failed between the select and the lock.
		return <-req.result, true
	}
	if req.written {
		req.abandoned = true
	} else {
		r.removeLocked(req)
	}
	return result{}, false
}

// Dispatch delivers a frame to the oldest request waiting on its tag.
// Frames with no waiting request are logged, counted, and discarded; the
// returned error wraps ErrUnmatchedFrame for the caller's information.
func (r *Router) Dispatch(frame protocol.Frame) error {
	r.mu.Lock()
	q := r.queues[frame.Tag]
	if len(q) == 0 {
		r.unmatched++
		r.mu.Unlock()

		r.logger.Warn("discarding unmatched frame", "tag", frame.Tag, "bytes", len(frame.Payload))
		if r.publisher != nil {
			r.publisher.Publish(EventFrameUnmatched, map[string]any{
				"tag":   frame.Tag,
				"bytes": len(frame.Payload),
			})
		}
		return fmt.Errorf("%w: %s", ErrUnmatchedFrame, frame.Tag)
	}

	head := r.popLocked(frame.Tag)
	r.mu.Unlock()

	if head.abandoned {
		r.logger.Debug("late frame consumed by abandoned request", "tag", frame.Tag, "request_id", head.ID)
		return nil
	}
	head.result <- result{payload: frame.Payload}
	return nil
}

// Fail resolves the oldest request waiting on tag with err. It is used when
// the frame answering that request was lost, so that later frames of the same
// tag still reach their own requests. It returns false if nothing was queued.
func (r *Router) Fail(tag string, err error) bool {
	r.mu.Lock()
	if len(r.queues[tag]) == 0 {
		r.mu.Unlock()
		return false
	}
	head := r.popLocked(tag)
	r.mu.Unlock()

	if head.abandoned {
		r.logger.Debug("lost frame consumed by abandoned request", "tag", tag, "request_id", head.ID)
		return true
	}
	r.logger.Warn("request failed", "tag", tag, "request_id", head.ID, "error", err)
	head.result <- result{err: err}
	return true
}

// Pending returns the number of live (not abandoned) requests per tag.
func (r *Router) Pending() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int)
	for tag, q := range r.queues {
		for _, req := range q {
			if !req.abandoned {
				out[tag]++
			}
		}
	}
	return out
}

// PendingTags lists tags with at least one queued entry, sorted.
func (r *Router) PendingTags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tags := make([]string, 0, len(r.queues))
	for tag := range r.queues {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Unmatched returns how many frames were discarded for lack of a request.
func (r *Router) Unmatched() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unmatched
}

// Attached reports whether a worker is currently connected.
func (r *Router) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer != nil
}

func (r *Router) popLocked(tag string) *Request {
	q := r.queues[tag]
	head := q[0]
	if len(q) == 1 {
		delete(r.queues, tag)
	} else {
		r.queues[tag] = q[1:]
	}
	return head
}

func (r *Router) queuedLocked(req *Request) bool {
	for _, q := range r.queues[req.Tag] {
		if q == req {
			return true
		}
	}
	return false
}

func (r *Router) removeLocked(req *Request) bool {
	q := r.queues[req.Tag]
	for i, pending := range q {
		if pending == req {
			q = append(q[:i:i], q[i+1:]...)
			if len(q) == 0 {
				delete(r.queues, req.Tag)
			} else {
				r.queues[req.Tag] = q
			}
			return true
		}
	}
	return false
}
