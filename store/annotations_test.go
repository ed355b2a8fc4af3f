package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trane/types"
)

func TestNoteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := newEntry("song")
	require.NoError(t, s.CreateEntry(ctx, entry))

	note := &types.Note{
		ID:        uuid.New().String(),
		EntryID:   entry.ID,
		Title:     "intro",
		Content:   "brushes only until the head",
		Tags:      []string{"drums", "arrangement"},
		CreatedBy: "miles",
		UpdatedBy: "miles",
	}
	require.NoError(t, s.CreateNote(ctx, note))

	got, err := s.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "intro", got.Title)
	assert.Equal(t, []string{"drums", "arrangement"}, got.Tags)
	assert.Equal(t, "miles", got.CreatedBy)
	assert.False(t, got.CreatedAt.IsZero())

	got.Content = "brushes through the first chorus"
	got.UpdatedBy = "trane"
	require.NoError(t, s.UpdateNote(ctx, got))

	updated, err := s.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "brushes through the first chorus", updated.Content)
	assert.Equal(t, "trane", updated.UpdatedBy)

	_, err = s.GetNote(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateNote(ctx, &types.Note{ID: "missing"}), ErrNotFound)
	assert.ErrorIs(t, s.DeleteNote(ctx, "missing"), ErrNotFound)
}

func TestAnnotationsCascadeWithEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := newEntry("song")
	require.NoError(t, s.CreateEntry(ctx, entry))

	note := &types.Note{ID: uuid.New().String(), EntryID: entry.ID, Title: "n"}
	require.NoError(t, s.CreateNote(ctx, note))

	doc := &DocumentRecord{
		Document: types.Document{
			ID:       uuid.New().String(),
			EntryID:  entry.ID,
			Title:    "lead sheet",
			Filename: "lead.pdf",
			Size:     3,
		},
		StoredPath: "/library/documents/lead.pdf",
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	require.NoError(t, s.DeleteEntry(ctx, entry.ID))

	_, err := s.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTagsSortedByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"rhythm", "harmony", "timbre"} {
		tag := &types.Tag{ID: uuid.New().String(), Name: name}
		require.NoError(t, s.CreateTag(ctx, tag))
	}

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "harmony", tags[0].Name)
	assert.Equal(t, "rhythm", tags[1].Name)
	assert.Equal(t, "timbre", tags[2].Name)
}
