package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// FolderStore persists the reference worker's monitored folders.
type FolderStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewFolderStore(db *sql.DB) *FolderStore {
	return &FolderStore{db: db, now: time.Now}
}

// List returns folders most recently added first.
func (s *FolderStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM monitored_folder ORDER BY id DESC;")
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan folder row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return out, nil
}

// Add inserts path. It returns false if the folder was already present.
func (s *FolderStore) Add(ctx context.Context, path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, fmt.Errorf("folder path is empty")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO monitored_folder(path, added_at) VALUES(?, ?) ON CONFLICT(path) DO NOTHING;",
		path, now)
	if err != nil {
		return false, fmt.Errorf("insert folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Remove deletes path and its indexed files. Removing an absent folder
// returns false and no error.
func (s *FolderStore) Remove(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM monitored_folder WHERE path = ?;", path)
	if err != nil {
		return false, fmt.Errorf("delete folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
