// Package scan walks monitored folders and reports files that are new or
// changed since the previous scan.
package scan

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/foldermon/internal/state"
)

// Index is the persisted fingerprint store a Scanner compares against.
type Index interface {
	Files(ctx context.Context, folder string) (map[string]state.FileRecord, error)
	Apply(ctx context.Context, folder string, upserts []state.FileRecord, deletes []string) error
}

// Result summarizes one scan across all folders.
type Result struct {
	Changed []string
	Removed []string
	Walked  int
	Skipped []string // folders that could not be read
}

// Scanner fingerprints regular files with BLAKE3. Files whose size and
// modification time match the index are not re-hashed.
type Scanner struct {
	index      Index
	logger     *slog.Logger
	skipHidden bool
}

type Option func(*Scanner)

// WithHidden includes dot files and dot directories.
func WithHidden() Option {
	return func(s *Scanner) { s.skipHidden = false }
}

func New(index Index, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{index: index, logger: logger, skipHidden: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks every folder. A missing or unreadable folder is logged and
// skipped; the other folders are still scanned.
func (s *Scanner) Scan(ctx context.Context, folders []string) (Result, error) {
	var res Result
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		changed, removed, walked, err := s.scanFolder(ctx, folder)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			s.logger.Warn("folder skipped", "folder", folder, "error", err)
			res.Skipped = append(res.Skipped, folder)
			continue
		}
		res.Changed = append(res.Changed, changed...)
		res.Removed = append(res.Removed, removed...)
		res.Walked += walked
	}
	sort.Strings(res.Changed)
	sort.Strings(res.Removed)
	return res, nil
}

func (s *Scanner) scanFolder(ctx context.Context, folder string) (changed, removed []string, walked int, err error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, 0, fmt.Errorf("%s is not a directory", folder)
	}

	known, err := s.index.Files(ctx, folder)
	if err != nil {
		return nil, nil, 0, err
	}

	var upserts []state.FileRecord
	seen := make(map[string]struct{}, len(known))

	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == folder {
				return walkErr
			}
			s.logger.Debug("walk entry skipped", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != folder && s.skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		walked++
		seen[path] = struct{}{}

		prev, indexed := known[path]
		if indexed && prev.Size == fi.Size() && prev.ModTime.Equal(fi.ModTime()) {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			s.logger.Debug("hash failed", "path", path, "error", err)
			return nil
		}
		upserts = append(upserts, state.FileRecord{
			Path:    path,
			Folder:  folder,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Hash:    hash,
		})
		// Touched but identical content is not a change.
		if !indexed || prev.Hash != hash {
			changed = append(changed, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}

	for path := range known {
		if _, ok := seen[path]; !ok {
			removed = append(removed, path)
		}
	}

	if err := s.index.Apply(ctx, folder, upserts, removed); err != nil {
		return nil, nil, 0, err
	}
	return changed, removed, walked, nil
}

// HashFile returns the hex BLAKE3 digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
