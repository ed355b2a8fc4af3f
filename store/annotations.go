package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trane/types"
)

// DocumentRecord is a document row including the on-disk location,
// which is never exposed through the API.
type DocumentRecord struct {
	types.Document
	StoredPath string
}

// CreateNote inserts a note attached to an entry.
func (s *Store) CreateNote(ctx context.Context, note *types.Note) error {
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, entry_id, title, content, tags, created_by,
            updated_by, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.EntryID, note.Title, note.Content,
		strings.Join(note.Tags, ","), note.CreatedBy, note.UpdatedBy,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

const noteColumns = `id, entry_id, title, content, tags, created_by,
    updated_by, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (*types.Note, error) {
	var (
		note                 types.Note
		tags                 string
		createdAt, updatedAt string
	)
	err := row.Scan(&note.ID, &note.EntryID, &note.Title, &note.Content,
		&tags, &note.CreatedBy, &note.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if tags != "" {
		note.Tags = strings.Split(tags, ",")
	}
	note.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	note.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &note, nil
}

// GetNote retrieves a note by ID.
func (s *Store) GetNote(ctx context.Context, id string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note %s: %w", id, err)
	}
	return note, nil
}

// ListNotes returns notes newest first, filtered to one entry when
// entryID is non-empty.
func (s *Store) ListNotes(ctx context.Context, entryID string) ([]*types.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	args := []any{}
	if entryID != "" {
		query += ` WHERE entry_id = ?`
		args = append(args, entryID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		note, scanErr := scanNote(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan note: %w", scanErr)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// UpdateNote rewrites the mutable fields of a note.
func (s *Store) UpdateNote(ctx context.Context, note *types.Note) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, tags = ?, updated_by = ?,
            updated_at = ? WHERE id = ?`,
		note.Title, note.Content, strings.Join(note.Tags, ","),
		note.UpdatedBy, time.Now().UTC().Format(time.RFC3339Nano), note.ID)
	if err != nil {
		return fmt.Errorf("update note %s: %w", note.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNote removes a note.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDocument inserts a document attached to an entry.
func (s *Store) CreateDocument(ctx context.Context, rec *DocumentRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, entry_id, title, description, type,
            filename, stored_path, size, created_by, updated_by,
            created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntryID, rec.Title, rec.Description, rec.Type,
		rec.Filename, rec.StoredPath, rec.Size, rec.CreatedBy, rec.UpdatedBy,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, entry_id, title, description, type, filename,
    stored_path, size, created_by, updated_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*DocumentRecord, error) {
	var (
		rec                  DocumentRecord
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.EntryID, &rec.Title, &rec.Description,
		&rec.Type, &rec.Filename, &rec.StoredPath, &rec.Size,
		&rec.CreatedBy, &rec.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return rec, nil
}

// ListDocuments returns documents newest first, filtered to one entry
// when entryID is non-empty.
func (s *Store) ListDocuments(ctx context.Context, entryID string) ([]*DocumentRecord, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []any{}
	if entryID != "" {
		query += ` WHERE entry_id = ?`
		args = append(args, entryID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var records []*DocumentRecord
	for rows.Next() {
		rec, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan document: %w", scanErr)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateDocument rewrites the descriptive fields of a document.
func (s *Store) UpdateDocument(ctx context.Context, rec *DocumentRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, description = ?, type = ?,
            updated_by = ?, updated_at = ? WHERE id = ?`,
		rec.Title, rec.Description, rec.Type, rec.UpdatedBy,
		time.Now().UTC().Format(time.RFC3339Nano), rec.ID)
	if err != nil {
		return fmt.Errorf("update document %s: %w", rec.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document row; the caller removes the file.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTag inserts a tag.
func (s *Store) CreateTag(ctx context.Context, tag *types.Tag) error {
	now := time.Now().UTC()
	tag.CreatedAt = now
	tag.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, description, created_by, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		tag.ID, tag.Name, tag.Description, tag.CreatedBy,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func scanTag(row interface{ Scan(...any) error }) (*types.Tag, error) {
	var (
		tag                  types.Tag
		createdAt, updatedAt string
	)
	err := row.Scan(&tag.ID, &tag.Name, &tag.Description, &tag.CreatedBy,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	tag.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	tag.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &tag, nil
}

// GetTag retrieves a tag by ID.
func (s *Store) GetTag(ctx context.Context, id string) (*types.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
         FROM tags WHERE id = ?`, id)
	tag, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", id, err)
	}
	return tag, nil
}

// ListTags returns all tags sorted by name.
func (s *Store) ListTags(ctx context.Context) ([]*types.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at
         FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []*types.Tag
	for rows.Next() {
		tag, scanErr := scanTag(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan tag: %w", scanErr)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// UpdateTag rewrites the mutable fields of a tag.
func (s *Store) UpdateTag(ctx context.Context, tag *types.Tag) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tags SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		tag.Name, tag.Description,
		time.Now().UTC().Format(time.RFC3339Nano), tag.ID)
	if err != nil {
		return fmt.Errorf("update tag %s: %w", tag.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTag removes a tag.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
