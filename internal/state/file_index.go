package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FileRecord is the last observed state of one file under a monitored folder.
type FileRecord struct {
	Path    string
	Folder  string
	Size    int64
	ModTime time.Time
	Hash    string
}

// FileIndex stores file fingerprints so scans can report what changed.
type FileIndex struct {
	db  *sql.DB
	now func() time.Time
}

func NewFileIndex(db *sql.DB) *FileIndex {
	return &FileIndex{db: db, now: time.Now}
}

// Files returns the indexed records for folder keyed by path.
func (x *FileIndex) Files(ctx context.Context, folder string) (map[string]FileRecord, error) {
	rows, err := x.db.QueryContext(ctx,
		"SELECT path, size, mod_time, hash FROM file_index WHERE folder = ?;", folder)
	if err != nil {
		return nil, fmt.Errorf("query file index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileRecord)
	for rows.Next() {
		rec := FileRecord{Folder: folder}
		var mod string
		if err := rows.Scan(&rec.Path, &rec.Size, &mod, &rec.Hash); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		if rec.ModTime, err = time.Parse(time.RFC3339Nano, mod); err != nil {
			return nil, fmt.Errorf("parse mod_time for %q: %w", rec.Path, err)
		}
		out[rec.Path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file index: %w", err)
	}
	return out, nil
}

// Apply upserts the given records and deletes the given paths of folder in
// one transaction.
func (x *FileIndex) Apply(ctx context.Context, folder string, upserts []FileRecord, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := x.now().UTC().Format(time.RFC3339Nano)
	for _, rec := range upserts {
		_, err := tx.ExecContext(ctx, `
INSERT INTO file_index(path, folder, size, mod_time, hash, seen_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(folder, path) DO UPDATE SET
  size = excluded.size,
  mod_time = excluded.mod_time,
  hash = excluded.hash,
  seen_at = excluded.seen_at;
`, rec.Path, folder, rec.Size, rec.ModTime.UTC().Format(time.RFC3339Nano), rec.Hash, now)
		if err != nil {
			return fmt.Errorf("upsert file %q: %w", rec.Path, err)
		}
	}
	for _, p := range deletes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_index WHERE folder = ? AND path = ?;", folder, p); err != nil {
			return fmt.Errorf("delete file %q: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
