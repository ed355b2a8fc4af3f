package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trane/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trane.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEntry(name string) *EntryRecord {
	return &EntryRecord{
		Entry: types.Entry{
			ID:       uuid.New().String(),
			Name:     name,
			Filename: name + ".wav",
			Model:    "htdemucs",
		},
		StoredPath: "/library/" + name + ".wav",
	}
}

func TestCreateAndGetEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := newEntry("song")
	rec.Size = 1024
	rec.Metadata = &types.AudioMetadata{Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue"}
	rec.Stems = []string{"vocals", "drums"}
	rec.CreatedBy = "miles"
	require.NoError(t, s.CreateEntry(ctx, rec))

	got, err := s.GetEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "song", got.Name)
	assert.Equal(t, "song.wav", got.Filename)
	assert.Equal(t, "/library/song.wav", got.StoredPath)
	assert.Equal(t, int64(1024), got.Size)
	assert.Equal(t, types.JobStatusQueued, got.Status, "entries start queued")
	assert.Equal(t, 0, got.Progress)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "So What", got.Metadata.Title)
	assert.Equal(t, "Miles Davis", got.Metadata.Artist)
	assert.Equal(t, []string{"vocals", "drums"}, got.Stems)
	assert.Equal(t, "miles", got.CreatedBy)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetEntryNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetEntry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEntriesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := newEntry("first")
	require.NoError(t, s.CreateEntry(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := newEntry("second")
	require.NoError(t, s.CreateEntry(ctx, second))
	time.Sleep(2 * time.Millisecond)
	third := newEntry("third")
	require.NoError(t, s.CreateEntry(ctx, third))

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Name)
	assert.Equal(t, "second", entries[1].Name)
	assert.Equal(t, "first", entries[2].Name)
}

func TestEntryLifecycleUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := newEntry("song")
	require.NoError(t, s.CreateEntry(ctx, rec))

	require.NoError(t, s.SetEntryStatus(ctx, rec.ID, types.JobStatusProcessing, ""))
	require.NoError(t, s.SetEntryProgress(ctx, rec.ID, 42))
	require.NoError(t, s.RenameEntry(ctx, rec.ID, "renamed"))

	got, err := s.GetEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusProcessing, got.Status)
	assert.Equal(t, 42, got.Progress)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, s.SetEntryStatus(ctx, rec.ID, types.JobStatusFailed, "out of memory"))
	got, err = s.GetEntry(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, "out of memory", got.Error)
}

func TestUpdatesOnMissingEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.RenameEntry(ctx, "missing", "name"), ErrNotFound)
	assert.ErrorIs(t, s.SetEntryStatus(ctx, "missing", types.JobStatusFailed, ""), ErrNotFound)
	assert.ErrorIs(t, s.SetEntryProgress(ctx, "missing", 10), ErrNotFound)
	assert.ErrorIs(t, s.DeleteEntry(ctx, "missing"), ErrNotFound)
}

func TestStemsInsertionOrderAndCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := newEntry("song")
	require.NoError(t, s.CreateEntry(ctx, rec))

	names := []string{"original", "vocals", "drums", "bass", "other"}
	for _, name := range names {
		require.NoError(t, s.AddStem(ctx, types.StemFile{
			EntryID: rec.ID,
			Name:    name,
			Path:    "/library/stems/" + name + ".wav",
			Format:  "wav",
		}))
	}

	stems, err := s.ListStems(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, stems, 5)
	for i, name := range names {
		assert.Equal(t, name, stems[i].Name)
	}

	// Re-adding a stem replaces it in place.
	require.NoError(t, s.AddStem(ctx, types.StemFile{
		EntryID: rec.ID, Name: "vocals", Path: "/library/stems/vocals-v2.wav", Format: "wav",
	}))
	stems, err = s.ListStems(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, stems, 5)

	require.NoError(t, s.DeleteEntry(ctx, rec.ID))
	stems, err = s.ListStems(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stems, "stems cascade with their entry")
}

func TestPruneFailedBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	oldFailed := newEntry("old-failed")
	require.NoError(t, s.CreateEntry(ctx, oldFailed))
	require.NoError(t, s.SetEntryStatus(ctx, oldFailed.ID, types.JobStatusFailed, "boom"))

	oldCompleted := newEntry("old-completed")
	require.NoError(t, s.CreateEntry(ctx, oldCompleted))
	require.NoError(t, s.SetEntryStatus(ctx, oldCompleted.ID, types.JobStatusCompleted, ""))

	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)

	freshFailed := newEntry("fresh-failed")
	require.NoError(t, s.CreateEntry(ctx, freshFailed))
	require.NoError(t, s.SetEntryStatus(ctx, freshFailed.ID, types.JobStatusFailed, "boom"))

	pruned, err := s.PruneFailedBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, oldFailed.ID, pruned[0].ID)

	_, err = s.GetEntry(ctx, oldFailed.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Completed entries and recent failures survive the sweep.
	_, err = s.GetEntry(ctx, oldCompleted.ID)
	assert.NoError(t, err)
	_, err = s.GetEntry(ctx, freshFailed.ID)
	assert.NoError(t, err)
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "miles", "salt-1", "hash-1"))

	salt, hash, err := s.GetUser(ctx, "miles")
	require.NoError(t, err)
	assert.Equal(t, "salt-1", salt)
	assert.Equal(t, "hash-1", hash)

	assert.Error(t, s.CreateUser(ctx, "miles", "salt-2", "hash-2"))

	_, _, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
