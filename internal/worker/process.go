package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// defaultStopGrace is how long Stop waits at each step (stdin closed, SIGTERM)
	// before escalating.
	defaultStopGrace = 5 * time.Second

	// maxStderrLine caps a single captured stderr line.
	maxStderrLine = 64 * 1024
)

var (
	// ErrSpawn means the worker executable could not be launched.
	ErrSpawn = errors.New("worker spawn failed")
	// ErrBrokenPipe means a write was attempted after the worker's input closed.
	ErrBrokenPipe = errors.New("worker input closed")
	// ErrAlreadyStarted is returned when Start is called twice on one handle.
	ErrAlreadyStarted = errors.New("worker already started")
)

// State is the lifecycle state of a worker process.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExited  State = "exited"
)

// Spec describes how to launch the worker.
type Spec struct {
	Command   string
	Args      []string
	Dir       string
	Env       []string // KEY=VALUE pairs appended to the inherited environment
	Checksum  string   // optional BLAKE3 hex digest pinning the executable
	StopGrace time.Duration
}

// Option configures a Process.
type Option func(*Process)

// WithStderrSink receives every complete line the worker writes to stderr,
// in addition to the logger.
func WithStderrSink(fn func(line string)) Option {
	return func(p *Process) { p.stderrSink = fn }
}

// Process owns one worker subprocess and its three standard streams.
// Stdin has a single writer at a time; stdout is handed to exactly one reader.
type Process struct {
	spec       Spec
	logger     *slog.Logger
	stderrSink func(string)

	writeMu sync.Mutex

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *io.PipeReader
	state    State
	exitCode int
	pid      int
	handlers []func(code int)
	done     chan struct{}
}

// New creates an unstarted worker handle.
func New(spec Spec, logger *slog.Logger, opts ...Option) *Process {
	if spec.StopGrace <= 0 {
		spec.StopGrace = defaultStopGrace
	}
	p := &Process{
		spec:   spec,
		logger: logger,
		state:  StateIdle,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker with stdin, stdout and stderr captured.
// Errors wrap ErrSpawn.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	if p.spec.Command == "" {
		return fmt.Errorf("%w: worker command is empty", ErrSpawn)
	}
	if p.spec.Checksum != "" {
		if err := VerifyExecutable(p.spec.Command, p.spec.Checksum); err != nil {
			return fmt.Errorf("%w: %v", ErrSpawn, err)
		}
	}

	// Not CommandContext: termination is managed by Stop.
	cmd := exec.Command(p.spec.Command, p.spec.Args...)
	cmd.Dir = p.spec.Dir
	cmd.Env = append(os.Environ(), p.spec.Env...)
	cmd.WaitDelay = p.spec.StopGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: create stdin pipe: %v", ErrSpawn, err)
	}

	// Stdout goes through an io.Pipe so Wait returns only after the reader
	// has drained everything the worker wrote.
	stdoutR, stdoutW := io.Pipe()
	cmd.Stdout = stdoutW

	stderr := &lineWriter{emit: p.emitStderr}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		return fmt.Errorf("%w: start %s: %v", ErrSpawn, p.spec.Command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdoutR
	p.pid = cmd.Process.Pid
	p.state = StateRunning
	p.logger = p.logger.With("pid", p.pid)
	p.logger.Info("worker started", "command", p.spec.Command, "args", p.spec.Args)

	go p.wait(cmd, stdoutW, stderr)
	return nil
}

func (p *Process) wait(cmd *exec.Cmd, stdoutW *io.PipeWriter, stderr *lineWriter) {
	err := cmd.Wait()
	_ = stdoutW.Close()
	stderr.Flush()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.logger.Warn("worker wait failed", "error", err)
	}

	p.mu.Lock()
	p.state = StateExited
	p.exitCode = code
	handlers := p.handlers
	p.handlers = nil
	p.mu.Unlock()

	close(p.done)
	p.logger.Info("worker exited", "exit_code", code)

	for _, h := range handlers {
		h(code)
	}
}

// WriteLine writes text followed by exactly one newline. Any line terminator
// already present is normalized away. After the worker exits every call fails
// immediately with ErrBrokenPipe.
func (p *Process) WriteLine(text string) error {
	line := strings.TrimRight(text, "\r\n") + "\n"

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	state, stdin := p.state, p.stdin
	p.mu.Unlock()

	if state != StateRunning || stdin == nil {
		return fmt.Errorf("%w: worker is %s", ErrBrokenPipe, state)
	}
	if _, err := io.WriteString(stdin, line); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokenPipe, err)
	}
	return nil
}

// OnExit registers a one-shot handler receiving the exit code. Handlers
// registered after exit run immediately.
func (p *Process) OnExit(handler func(code int)) {
	p.mu.Lock()
	if p.state != StateExited {
		p.handlers = append(p.handlers, handler)
		p.mu.Unlock()
		return
	}
	code := p.exitCode
	p.mu.Unlock()
	handler(code)
}

// Stdout returns the worker's output stream. It reports io.EOF once the
// worker has exited and all output has been read.
func (p *Process) Stdout() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdout == nil {
		return bytes.NewReader(nil)
	}
	return p.stdout
}

// Done is closed when the worker has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitCode returns the exit code, or -1 if still running or killed by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateExited {
		return -1
	}
	return p.exitCode
}

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Stop closes the worker's stdin and gives it the grace period to drain
// the commands already written and exit on its own. A worker still running
// then gets SIGTERM, and SIGKILL after a second grace period. It returns once
// the worker has exited or ctx ends.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	state, cmd, stdin := p.state, p.cmd, p.stdin
	p.mu.Unlock()

	if state != StateRunning {
		return nil
	}

	// Not under writeMu: a writer blocked on a full pipe must not stall shutdown.
	_ = stdin.Close()

	exited, err := p.waitExit(ctx, cmd)
	if exited || err != nil {
		return err
	}

	p.logger.Info("worker still running after stdin closed, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("failed to send SIGTERM", "error", err)
	}

	exited, err = p.waitExit(ctx, cmd)
	if exited || err != nil {
		return err
	}

	p.logger.Warn("worker did not exit after SIGTERM, sending SIGKILL")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("failed to send SIGKILL", "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitExit waits up to the stop grace period. It kills the worker if ctx ends first.
func (p *Process) waitExit(ctx context.Context, cmd *exec.Cmd) (bool, error) {
	grace := time.NewTimer(p.spec.StopGrace)
	defer grace.Stop()

	select {
	case <-p.done:
		return true, nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return false, ctx.Err()
	case <-grace.C:
		return false, nil
	}
}

func (p *Process) emitStderr(line string) {
	p.mu.Lock()
	logger := p.logger
	p.mu.Unlock()

	logger.Warn("worker stderr", "line", line)
	if p.stderrSink != nil {
		p.stderrSink(line)
	}
}

// lineWriter splits the stderr byte stream into lines.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emitLocked(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxStderrLine {
		w.emitLocked(w.buf)
		w.buf = nil
	}
	return len(b), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emitLocked(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emitLocked(line []byte) {
	s := strings.TrimRight(string(line), "\r")
	if s != "" {
		w.emit(s)
	}
}
