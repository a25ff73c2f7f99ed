package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/scan"
	"github.com/mattjoyce/foldermon/internal/state"
	"github.com/mattjoyce/foldermon/internal/storage"
)

func newServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(state.NewFolderStore(db), scan.New(state.NewFileIndex(db), nil), opts...)
}

// run feeds lines to the server and decodes every frame it wrote.
func run(t *testing.T, s *Server, lines ...string) []protocol.Frame {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))

	d := protocol.NewDecoder(0)
	frames, err := d.Feed(out.Bytes())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	return frames
}

func TestServeListEmpty(t *testing.T) {
	frames := run(t, newServer(t), "list")
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.Frame{Tag: protocol.TagList, Payload: ""}, frames[0])
}

func TestServeAddThenListMinimal(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	frames := run(t, newServer(t), "add "+a, "add "+b, "add "+a, "list")
	require.Len(t, frames, 1, "add is silent without acks")
	assert.Equal(t, protocol.TagList, frames[0].Tag)
	assert.Equal(t, []string{b, a}, protocol.SplitLines(frames[0].Payload))
}

func TestServeAcks(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	frames := run(t, newServer(t, WithAcks(true)),
		"add "+dir,
		"add "+missing,
		"add "+file,
		"remove "+dir,
		"remove "+dir,
	)
	require.Len(t, frames, 5)
	assert.Equal(t, protocol.Frame{Tag: protocol.TagAddOK, Payload: dir}, frames[0])
	assert.Equal(t, protocol.Frame{Tag: protocol.TagAddOK, Payload: "ERR no such directory"}, frames[1])
	assert.Equal(t, protocol.Frame{Tag: protocol.TagAddOK, Payload: "ERR not a directory"}, frames[2])
	assert.Equal(t, protocol.Frame{Tag: protocol.TagRemoveOK, Payload: dir}, frames[3])
	assert.Equal(t, protocol.Frame{Tag: protocol.TagRemoveOK, Payload: dir}, frames[4], "removing an absent folder succeeds")
}

func TestServeRemoveThenList(t *testing.T) {
	a := t.TempDir()
	spaced := filepath.Join(t.TempDir(), "My Docs")
	require.NoError(t, os.Mkdir(spaced, 0o755))

	frames := run(t, newServer(t), "add "+a, "add "+spaced, "remove "+spaced, "list")
	require.Len(t, frames, 1)
	assert.Equal(t, []string{a}, protocol.SplitLines(frames[0].Payload))
}

func TestServeScanReportsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(f, []byte("hi"), 0o644))

	s := newServer(t)
	frames := run(t, s, "add "+dir, "scan", "scan")
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TagScanResults, frames[0].Tag)
	assert.Equal(t, f, frames[0].Payload)
	assert.Equal(t, "", frames[1].Payload, "second scan sees no changes")
}

func TestServeSkipsInvalidCommands(t *testing.T) {
	frames := run(t, newServer(t), "bogus", "add", "", "list extra", "list")
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TagList, frames[0].Tag)
}

func TestServeReturnsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := newServer(t).Serve(ctx, strings.NewReader("list\n"), &out)
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, os.ErrClosed }

func TestServeWriteFailureEndsLoop(t *testing.T) {
	err := newServer(t).Serve(context.Background(), strings.NewReader("list\nlist\n"), failWriter{})
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestJoinFrameSafeDropsUnframeableItems(t *testing.T) {
	got := joinFrameSafe(newServer(t).logger, []string{"/a", "/b.END.c", "/c"})
	assert.Equal(t, "/a\n/c", got)
}
