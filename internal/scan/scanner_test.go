package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/foldermon/internal/state"
	"github.com/mattjoyce/foldermon/internal/storage"
)

func newScanner(t *testing.T, folders ...string) *Scanner {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := state.NewFolderStore(db)
	for _, f := range folders {
		_, err := store.Add(ctx, f)
		require.NoError(t, err)
	}
	return New(state.NewFileIndex(db), nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFirstRunReportsAllFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(root, ".hidden", "c.txt"), "c")
	writeFile(t, filepath.Join(root, ".dotfile"), "d")

	s := newScanner(t, root)
	res, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "sub", "b.txt")}, res.Changed)
	assert.Equal(t, 2, res.Walked)
	assert.Empty(t, res.Removed)
}

func TestScanSecondRunReportsOnlyChanges(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	s := newScanner(t, root)
	ctx := context.Background()
	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Empty(t, res.Changed, "unchanged tree")

	writeFile(t, b, "b changed")
	c := filepath.Join(root, "c.txt")
	writeFile(t, c, "c")

	res, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{b, c}, res.Changed)
}

func TestScanTouchedButIdenticalIsNotChanged(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	writeFile(t, a, "same")

	s := newScanner(t, root)
	ctx := context.Background()
	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(a, later, later))

	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
}

func TestScanDeletedFilesAreRemoved(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	writeFile(t, a, "a")

	s := newScanner(t, root)
	ctx := context.Background()
	_, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)

	require.NoError(t, os.Remove(a))
	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{a}, res.Removed)
	assert.Empty(t, res.Changed)

	writeFile(t, a, "a")
	res, err = s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{a}, res.Changed, "recreated file is new again")
}

func TestScanMissingFolderIsSkipped(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "gone")
	good := filepath.Join(root, "good")
	writeFile(t, filepath.Join(good, "x"), "x")

	s := newScanner(t, missing, good)
	res, err := s.Scan(context.Background(), []string{missing, good})
	require.NoError(t, err)
	assert.Equal(t, []string{missing}, res.Skipped)
	assert.Equal(t, []string{filepath.Join(good, "x")}, res.Changed)
}

func TestScanWithHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".dotfile"), "d")

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = state.NewFolderStore(db).Add(ctx, root)
	require.NoError(t, err)

	s := New(state.NewFileIndex(db), nil, WithHidden())
	res, err := s.Scan(ctx, []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, ".dotfile")}, res.Changed)
}

func TestScanCanceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "a")

	s := newScanner(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, []string{root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	writeFile(t, p, "hello")

	h1, err := HashFile(p)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	writeFile(t, p, "hello!")
	h2, err := HashFile(p)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
