// Package recordings keeps copies of received transmissions on disk and
// indexes them in SQLite so they can be listed and archived.
package recordings

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a recording id is not in the index.
var ErrNotFound = errors.New("recording not found")

// fileTimeLayout names stored files after the end of the transmission.
const fileTimeLayout = "20060102150405"

// Recording is one indexed transmission.
type Recording struct {
	ID         int64      `json:"id"`
	Path       string     `json:"path"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Size       int64      `json:"size"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	Deleted    bool       `json:"deleted"`
}

// Name returns the file name without its directory.
func (r Recording) Name() string {
	return filepath.Base(r.Path)
}

// Duration returns the length of the transmission.
func (r Recording) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Stats summarises the index.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

// Store copies recordings into a directory and indexes them.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens (creating if needed) the index at dbPath and the recordings
// directory dir.
func Open(dbPath, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the control loop and the web server share this handle.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dir: dir}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		uploaded_ms INTEGER,
		deleted BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_end ON recordings(end_ms DESC);
	CREATE INDEX IF NOT EXISTS idx_recordings_uploaded ON recordings(uploaded_ms);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Dir returns the recordings directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save copies src into the recordings directory, named after end, and
// indexes it.
func (s *Store) Save(src string, start, end time.Time) (Recording, error) {
	dst, err := s.uniquePath(end)
	if err != nil {
		return Recording{}, err
	}
	size, err := copyFile(src, dst)
	if err != nil {
		return Recording{}, fmt.Errorf("copy recording: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO recordings (path, start_ms, end_ms, size) VALUES (?, ?, ?, ?)`,
		dst, start.UnixMilli(), end.UnixMilli(), size,
	)
	if err != nil {
		os.Remove(dst)
		return Recording{}, fmt.Errorf("index recording: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Recording{}, fmt.Errorf("index recording: %w", err)
	}
	return Recording{ID: id, Path: dst, Start: start, End: end, Size: size}, nil
}

// uniquePath returns dir/YYYYmmddHHMMSS.ogg, adding a suffix when two
// transmissions end in the same second.
func (s *Store) uniquePath(end time.Time) (string, error) {
	base := end.Format(fileTimeLayout)
	for i := 0; i < 100; i++ {
		name := base + ".ogg"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.ogg", base, i)
		}
		p := filepath.Join(s.dir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s", base)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, os.Rename(tmp, dst)
}

const selectColumns = `SELECT id, path, start_ms, end_ms, size, uploaded_ms, deleted FROM recordings`

// List returns the most recent recordings, newest first. limit <= 0 means
// no limit.
func (s *Store) List(limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(selectColumns+` ORDER BY end_ms DESC, id DESC LIMIT ?`, limit)
}

// Pending returns recordings that still have a local file and have not been
// uploaded, oldest first.
func (s *Store) Pending() ([]Recording, error) {
	return s.query(selectColumns + ` WHERE uploaded_ms IS NULL AND NOT deleted ORDER BY end_ms ASC, id ASC`)
}

// Get returns a single recording.
func (s *Store) Get(id int64) (Recording, error) {
	recs, err := s.query(selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return Recording{}, err
	}
	if len(recs) == 0 {
		return Recording{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return recs[0], nil
}

func (s *Store) query(q string, args ...any) ([]Recording, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var (
			r              Recording
			startMs, endMs int64
			uploaded       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Path, &startMs, &endMs, &r.Size, &uploaded, &r.Deleted); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		r.Start = time.UnixMilli(startMs)
		r.End = time.UnixMilli(endMs)
		if uploaded.Valid {
			t := time.UnixMilli(uploaded.Int64)
			r.UploadedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkUploaded records a successful upload.
func (s *Store) MarkUploaded(id int64, at time.Time) error {
	return s.update(id, `UPDATE recordings SET uploaded_ms = ? WHERE id = ?`, at.UnixMilli(), id)
}

// Delete removes the local file and flags the row. The row is kept so the
// history stays listable.
func (s *Store) Delete(id int64) error {
	r, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete recording file: %w", err)
	}
	return s.update(id, `UPDATE recordings SET deleted = TRUE WHERE id = ?`, id)
}

func (s *Store) update(id int64, q string, args ...any) error {
	res, err := s.db.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("update recording %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recording %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Stats returns index totals.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN uploaded_ms IS NULL AND NOT deleted THEN 1 ELSE 0 END), 0)
		FROM recordings`).Scan(&st.Total, &st.Pending)
	if err != nil {
		return Stats{}, fmt.Errorf("recording stats: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
