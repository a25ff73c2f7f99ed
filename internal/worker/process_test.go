package worker

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return strings.TrimRight(res.line, "\n")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading worker stdout")
		return ""
	}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	p := New(Spec{Command: filepath.Join(t.TempDir(), "nope")}, testLogger())
	err := p.Start(context.Background())
	require.ErrorIs(t, err, ErrSpawn)
	assert.Equal(t, StateIdle, p.State())
}

func TestStartEmptyCommand(t *testing.T) {
	p := New(Spec{}, testLogger())
	require.ErrorIs(t, p.Start(context.Background()), ErrSpawn)
}

func TestStartTwice(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\n")
	p := New(Spec{Command: script}, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
}

func TestWriteLineNormalizesTerminator(t *testing.T) {
	script := writeScript(t, `while IFS= read -r line; do printf '[%s]\n' "$line"; done
`)
	p := New(Spec{Command: script}, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	out := bufio.NewReader(p.Stdout())

	require.NoError(t, p.WriteLine("add /tmp/x"))
	assert.Equal(t, "[add /tmp/x]", readLine(t, out))

	// Already terminated input must not produce an empty extra line.
	require.NoError(t, p.WriteLine("remove /tmp/x\n"))
	assert.Equal(t, "[remove /tmp/x]", readLine(t, out))

	require.NoError(t, p.WriteLine("list\r\n"))
	assert.Equal(t, "[list]", readLine(t, out))
}

func TestStderrCapturedSeparately(t *testing.T) {
	script := writeScript(t, `echo "diagnostic one" >&2
echo "diagnostic two" >&2
printf 'partial' >&2
echo ".LIST..END."
`)
	var (
		mu    sync.Mutex
		lines []string
	)
	p := New(Spec{Command: script}, testLogger(), WithStderrSink(func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}))
	require.NoError(t, p.Start(context.Background()))

	stdout, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	waitDone(t, p)

	assert.Equal(t, ".LIST..END.\n", string(stdout), "stderr must not leak into stdout")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"diagnostic one", "diagnostic two", "partial"}, lines)
}

func TestExitNotifiesAndBreaksPipe(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	p := New(Spec{Command: script}, testLogger())

	codes := make(chan int, 2)
	p.OnExit(func(code int) { codes <- code })
	require.NoError(t, p.Start(context.Background()))

	_, _ = io.Copy(io.Discard, p.Stdout())
	waitDone(t, p)

	select {
	case code := <-codes:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("exit handler not called")
	}

	assert.Equal(t, StateExited, p.State())
	assert.Equal(t, 3, p.ExitCode())

	// Late registration fires immediately.
	p.OnExit(func(code int) { codes <- code })
	assert.Equal(t, 3, <-codes)

	err := p.WriteLine("scan")
	require.ErrorIs(t, err, ErrBrokenPipe)
}

func TestStopEscalatesToKill(t *testing.T) {
	script := writeScript(t, `trap '' TERM
while :; do sleep 0.05; done
`)
	p := New(Spec{Command: script, StopGrace: 200 * time.Millisecond}, testLogger())
	require.NoError(t, p.Start(context.Background()))
	go func() { _, _ = io.Copy(io.Discard, p.Stdout()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	assert.Equal(t, StateExited, p.State())
	assert.Equal(t, -1, p.ExitCode(), "killed by signal")
	assert.ErrorIs(t, p.WriteLine("scan"), ErrBrokenPipe)
}

func TestStopDrainsWrittenCommands(t *testing.T) {
	out := filepath.Join(t.TempDir(), "handled")
	script := writeScript(t, `while IFS= read -r line; do
  sleep 0.1
  printf '%s\n' "$line" >> "`+out+`"
done
`)
	p := New(Spec{Command: script, StopGrace: 3 * time.Second}, testLogger())
	require.NoError(t, p.Start(context.Background()))
	go func() { _, _ = io.Copy(io.Discard, p.Stdout()) }()

	for _, line := range []string{"add /a", "add /b", "remove /a"} {
		require.NoError(t, p.WriteLine(line))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "add /a\nadd /b\nremove /a\n", string(data))
	assert.Equal(t, 0, p.ExitCode(), "exited on EOF, not by signal")
}

func TestStopIdleIsNoop(t *testing.T) {
	p := New(Spec{Command: "true"}, testLogger())
	assert.NoError(t, p.Stop(context.Background()))
}

func TestChecksumPin(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\n")

	good, err := ComputeBlake3Hash(script)
	require.NoError(t, err)
	require.Len(t, good, 64)

	p := New(Spec{Command: script, Checksum: strings.ToUpper(good)}, testLogger())
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))

	bad := New(Spec{Command: script, Checksum: strings.Repeat("0", 64)}, testLogger())
	err = bad.Start(context.Background())
	require.ErrorIs(t, err, ErrSpawn)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
