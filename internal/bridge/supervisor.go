package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/foldermon/internal/config"
	"github.com/mattjoyce/foldermon/internal/events"
	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/registry"
	"github.com/mattjoyce/foldermon/internal/router"
	"github.com/mattjoyce/foldermon/internal/worker"
)

const readChunkSize = 32 * 1024

// ErrStopped is returned by Start and Restart after Stop.
var ErrStopped = errors.New("supervisor stopped")

// Health is a point-in-time view of the supervisor.
type Health struct {
	State        worker.State   `json:"state"`
	PID          int            `json:"pid,omitempty"`
	Attached     bool           `json:"attached"`
	Restarts     int            `json:"restarts"`
	LastExitCode *int           `json:"last_exit_code,omitempty"`
	Pending      map[string]int `json:"pending"`
	Unmatched    int64          `json:"unmatched_frames"`
	Malformed    int64          `json:"malformed_frames"`
	Discarded    int64          `json:"discarded_bytes"`
	Folders      int            `json:"folders"`
	Acks         bool           `json:"acks"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
}

// Supervisor owns one worker process and one router and wires the frame
// decoding loop between them. It embeds the Command API.
type Supervisor struct {
	*Client

	cfg       *config.Config
	logger    *slog.Logger
	publisher Publisher
	router    *router.Router
	registry  *registry.Registry
	policy    worker.RestartPolicy
	clientOps []ClientOption

	malformed atomic.Int64
	discarded atomic.Int64

	mu           sync.Mutex
	proc         *worker.Process
	generation   int
	loopDone     chan struct{}
	restarts     int
	lastExitCode *int
	restartTimer *time.Timer
	stopped      bool
	startedAt    time.Time
	rng          *rand.Rand
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithHub publishes lifecycle, frame and folder events to hub.
func WithHub(hub *events.Hub) Option {
	return func(s *Supervisor) {
		if hub != nil {
			s.publisher = hub
		}
	}
}

// WithClientOptions passes options (picker, opener) to the embedded Client.
func WithClientOptions(opts ...ClientOption) Option {
	return func(s *Supervisor) { s.clientOps = append(s.clientOps, opts...) }
}

// New builds an unstarted supervisor from cfg.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		logger:    slog.Default(),
		publisher: nopPublisher{},
		policy:    cfg.Worker.RestartPolicy(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = router.New(s.logger.With("component", "router"), router.WithPublisher(s.publisher))
	s.registry = registry.New(func(paths []string) {
		s.publisher.Publish(events.FoldersChanged, map[string]any{"folders": paths})
	})
	clientOpts := append([]ClientOption{WithPublisher(s.publisher)}, s.clientOps...)
	s.Client = NewClient(s.router, s.registry, cfg.Protocol, s.logger.With("component", "bridge"), clientOpts...)
	return s
}

// Start spawns the worker and its reader loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.proc != nil && s.proc.State() == worker.StateRunning {
		s.mu.Unlock()
		return worker.ErrAlreadyStarted
	}
	s.startedAt = time.Now()
	s.mu.Unlock()

	return s.spawn(ctx)
}

// Bootstrap refreshes the registry from the worker and adds any configured
// initial folders the worker does not know yet.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	known, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("initial list: %w", err)
	}
	have := make(map[string]bool, len(known))
	for _, p := range known {
		have[p] = true
	}
	for _, p := range s.cfg.Folders.Initial {
		if have[p] {
			continue
		}
		if err := s.AddFolderPath(ctx, p); err != nil {
			return fmt.Errorf("seed folder %s: %w", p, err)
		}
		s.logger.Info("seeded folder", "path", p)
	}
	return nil
}

func (s *Supervisor) spawn(ctx context.Context) error {
	proc := worker.New(s.cfg.Worker.Spec(), s.logger.With("component", "worker"),
		worker.WithStderrSink(func(line string) {
			s.publisher.Publish(events.WorkerStderr, map[string]any{"line": line})
		}))

	if err := proc.Start(ctx); err != nil {
		s.logger.Error("worker spawn failed", "error", err)
		s.publisher.Publish(events.WorkerSpawnFailed, map[string]any{"error": err.Error()})
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = proc.Stop(context.Background())
		return ErrStopped
	}
	s.generation++
	gen := s.generation
	done := make(chan struct{})
	s.proc = proc
	s.loopDone = done
	s.mu.Unlock()

	s.router.Attach(proc)
	s.publisher.Publish(events.WorkerStarted, map[string]any{
		"pid":     proc.PID(),
		"command": s.cfg.Worker.Command,
	})

	go s.readLoop(proc, gen, done)
	return nil
}

// readLoop is the only reader of the worker's stdout. Frames are dispatched
// in arrival order; everything the worker wrote is delivered before pending
// requests are failed on exit.
func (s *Supervisor) readLoop(proc *worker.Process, gen int, done chan struct{}) {
	defer close(done)

	logger := s.logger.With("component", "reader", "pid", proc.PID())
	dec := protocol.NewDecoder(s.cfg.Protocol.MaxFrameBytes)
	stdout := proc.Stdout()
	buf := make([]byte, readChunkSize)
	var discarded int64

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for {
				frames, ferr := dec.Feed(chunk)
				for _, f := range frames {
					// Unmatched frames are logged and counted by the router.
					_ = s.router.Dispatch(f)
				}
				if ferr == nil {
					break
				}
				s.recordMalformed(logger, ferr)
				chunk = nil
			}
			if d := dec.Discarded(); d != discarded {
				s.discarded.Add(d - discarded)
				discarded = d
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("worker stdout read failed", "error", err)
			}
			break
		}
	}

	if err := dec.Close(); err != nil {
		s.recordMalformed(logger, err)
	}

	<-proc.Done()
	s.handleExit(proc, gen)
}

// recordMalformed counts a dropped frame and fails the request it answered,
// keeping later frames of the same tag aligned with their requests.
func (s *Supervisor) recordMalformed(logger *slog.Logger, err error) {
	s.malformed.Add(1)
	logger.Warn("malformed frame discarded", "error", err)

	var tag string
	var mErr *protocol.MalformedFrameError
	if errors.As(err, &mErr) && mErr.Tag != "" {
		tag = mErr.Tag
		s.router.Fail(tag, err)
	}
	s.publisher.Publish(events.FrameMalformed, map[string]any{"error": err.Error(), "tag": tag})
}

func (s *Supervisor) handleExit(proc *worker.Process, gen int) {
	code := proc.ExitCode()

	s.mu.Lock()
	current := gen == s.generation
	if current {
		s.lastExitCode = &code
	}
	stopped := s.stopped
	s.mu.Unlock()

	s.publisher.Publish(events.WorkerExited, map[string]any{
		"pid":       proc.PID(),
		"exit_code": code,
	})
	if !current {
		// Replaced by an explicit restart, which already detached it.
		return
	}

	s.router.Detach(fmt.Errorf("worker exited with code %d", code))
	if stopped {
		return
	}

	s.logger.Error("worker exited unexpectedly", "pid", proc.PID(), "exit_code", code)
	s.scheduleRestart(gen, code)
}

// scheduleRestart arms the backoff timer if the policy allows another attempt.
func (s *Supervisor) scheduleRestart(gen, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.generation || !s.policy.ShouldRestart(code, s.restarts) {
		return
	}
	s.restarts++
	attempt := s.restarts
	delay := worker.NextBackoffDelay(s.policy.Backoff, attempt, s.rng)

	s.logger.Info("restarting worker", "attempt", attempt, "delay", delay)
	s.publisher.Publish(events.WorkerRestarting, map[string]any{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
	s.restartTimer = time.AfterFunc(delay, func() { s.autoRestart(gen) })
}

func (s *Supervisor) autoRestart(gen int) {
	s.mu.Lock()
	if s.stopped || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.spawn(context.Background()); err != nil {
		if errors.Is(err, ErrStopped) {
			return
		}
		s.scheduleRestart(gen, -1)
	}
}

// Restart stops the current worker (if any) and spawns a fresh one. Pending
// requests fail with ErrWorkerUnavailable and are not replayed. The automatic
// restart counter is reset.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	proc, done := s.proc, s.loopDone
	s.generation++
	s.restarts = 0
	s.mu.Unlock()

	s.router.Detach(errors.New("worker restarting"))
	if proc != nil {
		if err := proc.Stop(ctx); err != nil {
			return fmt.Errorf("stop worker: %w", err)
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info("manual worker restart")
	return s.spawn(ctx)
}

// Stop terminates the worker, fails pending requests and waits for the
// reader loop. It is safe to call more than once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	proc, done := s.proc, s.loopDone
	s.mu.Unlock()

	var stopErr error
	if proc != nil {
		stopErr = proc.Stop(ctx)
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = errors.Join(stopErr, ctx.Err())
		}
	}
	s.router.Detach(ErrStopped)
	return stopErr
}

// Health reports worker and correlation state.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	h := Health{
		State:     worker.StateIdle,
		Restarts:  s.restarts,
		StartedAt: s.startedAt,
	}
	if s.lastExitCode != nil {
		code := *s.lastExitCode
		h.LastExitCode = &code
	}
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		h.State = proc.State()
		if h.State == worker.StateRunning {
			h.PID = proc.PID()
		}
	}
	h.Attached = s.router.Attached()
	h.Pending = s.router.Pending()
	h.Unmatched = s.router.Unmatched()
	h.Malformed = s.malformed.Load()
	h.Discarded = s.discarded.Load()
	h.Folders = s.registry.Len()
	h.Acks = s.cfg.Protocol.Acks
	return h
}

// Wait blocks until the current reader loop ends or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
