package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"trane/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// EntryRecord is an entry row including server-side fields that are
// never exposed through the API.
type EntryRecord struct {
	types.Entry
	StoredPath string

	// Stems holds the requested stem subset; empty means the model's
	// default set.
	Stems []string
}

// Store manages entry and user persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and applies migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            filename TEXT NOT NULL,
            stored_path TEXT NOT NULL,
            size INTEGER NOT NULL DEFAULT 0,
            model TEXT NOT NULL,
            requested_stems TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            progress INTEGER NOT NULL DEFAULT 0,
            error TEXT NOT NULL DEFAULT '',
            meta_title TEXT NOT NULL DEFAULT '',
            meta_artist TEXT NOT NULL DEFAULT '',
            meta_album TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS stems (
            entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            path TEXT NOT NULL,
            duration REAL NOT NULL DEFAULT 0,
            format TEXT NOT NULL DEFAULT 'wav',
            PRIMARY KEY (entry_id, name)
        )`,
		`CREATE TABLE IF NOT EXISTS notes (
            id TEXT PRIMARY KEY,
            entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL DEFAULT '',
            updated_by TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS documents (
            id TEXT PRIMARY KEY,
            entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL DEFAULT '',
            filename TEXT NOT NULL,
            stored_path TEXT NOT NULL,
            size INTEGER NOT NULL DEFAULT 0,
            created_by TEXT NOT NULL DEFAULT '',
            updated_by TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS tags (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS users (
            username TEXT PRIMARY KEY,
            salt TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_entry ON notes(entry_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_entry ON documents(entry_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// CreateEntry inserts a new upload awaiting separation.
func (s *Store) CreateEntry(ctx context.Context, rec *EntryRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = types.JobStatusQueued
	}

	meta := rec.Metadata
	if meta == nil {
		meta = &types.AudioMetadata{}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO entries (
            id, name, filename, stored_path, size, model, requested_stems,
            status, progress, error, meta_title, meta_artist, meta_album,
            created_by, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.Filename,
		rec.StoredPath,
		rec.Size,
		rec.Model,
		strings.Join(rec.Stems, ","),
		string(rec.Status),
		rec.Progress,
		rec.Error,
		meta.Title,
		meta.Artist,
		meta.Album,
		rec.CreatedBy,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, name, filename, stored_path, size, model,
    requested_stems, status, progress, error, meta_title, meta_artist,
    meta_album, created_by, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*EntryRecord, error) {
	var (
		rec                  EntryRecord
		stems, status        string
		title, artist, album string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Filename, &rec.StoredPath, &rec.Size,
		&rec.Model, &stems, &status, &rec.Progress, &rec.Error,
		&title, &artist, &album, &rec.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if stems != "" {
		rec.Stems = strings.Split(stems, ",")
	}
	rec.Status = types.JobStatus(status)
	if title != "" || artist != "" || album != "" {
		rec.Metadata = &types.AudioMetadata{Title: title, Artist: artist, Album: album}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, id string) (*EntryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	rec, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return rec, nil
}

// ListEntries returns all entries, newest first. Ordering is stable:
// ties on created_at break on id.
func (s *Store) ListEntries(ctx context.Context) ([]*EntryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var records []*EntryRecord
	for rows.Next() {
		rec, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entry: %w", scanErr)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RenameEntry updates the display name of an entry.
func (s *Store) RenameEntry(ctx context.Context, id, name string) error {
	return s.updateEntry(ctx, id,
		`UPDATE entries SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), id)
}

// SetEntryStatus updates the lifecycle status and error message.
func (s *Store) SetEntryStatus(ctx context.Context, id string, status types.JobStatus, errMsg string) error {
	return s.updateEntry(ctx, id,
		`UPDATE entries SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339Nano), id)
}

// SetEntryProgress records the latest progress percentage.
func (s *Store) SetEntryProgress(ctx context.Context, id string, progress int) error {
	return s.updateEntry(ctx, id,
		`UPDATE entries SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (s *Store) updateEntry(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntry removes an entry; stems cascade.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStem registers one separated output file for an entry.
func (s *Store) AddStem(ctx context.Context, stem types.StemFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO stems (entry_id, name, path, duration, format)
         VALUES (?, ?, ?, ?, ?)`,
		stem.EntryID, stem.Name, stem.Path, stem.Duration, stem.Format)
	if err != nil {
		return fmt.Errorf("insert stem %s/%s: %w", stem.EntryID, stem.Name, err)
	}
	return nil
}

// ListStems returns the stems of an entry in insertion order.
func (s *Store) ListStems(ctx context.Context, entryID string) ([]types.StemFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, name, path, duration, format FROM stems
         WHERE entry_id = ? ORDER BY rowid`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list stems for %s: %w", entryID, err)
	}
	defer rows.Close()

	var stems []types.StemFile
	for rows.Next() {
		var stem types.StemFile
		if scanErr := rows.Scan(&stem.EntryID, &stem.Name, &stem.Path, &stem.Duration, &stem.Format); scanErr != nil {
			return nil, fmt.Errorf("scan stem: %w", scanErr)
		}
		stems = append(stems, stem)
	}
	return stems, rows.Err()
}

// PruneFailedBefore deletes failed entries last updated before the
// cutoff and returns the removed records so the caller can delete
// their media files.
func (s *Store) PruneFailedBefore(ctx context.Context, cutoff time.Time) ([]*EntryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries
         WHERE status = ? AND updated_at < ?`,
		string(types.JobStatusFailed), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("select stale entries: %w", err)
	}

	var stale []*EntryRecord
	for rows.Next() {
		rec, scanErr := scanEntry(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale entry: %w", scanErr)
		}
		stale = append(stale, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range stale {
		if err := s.DeleteEntry(ctx, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return stale, nil
}

// CreateUser inserts a new user with a pre-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, salt, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, salt, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		username, salt, passwordHash, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("user %s already exists", username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns the stored salt and password hash for a username.
func (s *Store) GetUser(ctx context.Context, username string) (salt, passwordHash string, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT salt, password_hash FROM users WHERE username = ?`, username)
	err = row.Scan(&salt, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("get user %s: %w", username, err)
	}
	return salt, passwordHash, nil
}
