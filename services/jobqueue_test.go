package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trane/store"
	"trane/types"
	"trane/websocket"
)

// recordingHub captures broadcasts instead of pushing them to sockets.
type recordingHub struct {
	mu       sync.Mutex
	messages []types.ProgressMessage
	terminal chan types.ProgressMessage
}

func newRecordingHub() *recordingHub {
	return &recordingHub{terminal: make(chan types.ProgressMessage, 1)}
}

func (h *recordingHub) Run() {}

func (h *recordingHub) BroadcastProgress(taskID string, progress int, status types.JobStatus, errMsg string) {
	msg := types.ProgressMessage{
		TaskID:   taskID,
		Progress: progress,
		Status:   string(status),
		Error:    errMsg,
	}
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()

	if msg.Terminal() {
		h.terminal <- msg
	}
}

func (h *recordingHub) RegisterClient(client *websocket.Client)   {}
func (h *recordingHub) UnregisterClient(client *websocket.Client) {}

func (h *recordingHub) all() []types.ProgressMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ProgressMessage(nil), h.messages...)
}

func (h *recordingHub) waitTerminal(t *testing.T) types.ProgressMessage {
	t.Helper()
	select {
	case msg := <-h.terminal:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a terminal broadcast")
		return types.ProgressMessage{}
	}
}

// scriptedSeparator runs the provided function instead of shelling out.
type scriptedSeparator struct {
	run func(req SeparationRequest, onProgress func(int)) ([]StemResult, error)
}

func (s *scriptedSeparator) Separate(ctx context.Context, req SeparationRequest, onProgress func(percent int)) ([]StemResult, error) {
	return s.run(req, onProgress)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trane.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntry(t *testing.T, s *store.Store) *store.EntryRecord {
	t.Helper()

	dir := t.TempDir()
	input := filepath.Join(dir, "song.wav")
	require.NoError(t, os.WriteFile(input, []byte("RIFF fake"), 0o644))

	rec := &store.EntryRecord{
		Entry: types.Entry{
			ID:       uuid.New().String(),
			Name:     "song",
			Filename: "song.wav",
			Model:    "htdemucs",
			Status:   types.JobStatusQueued,
		},
		StoredPath: input,
	}
	require.NoError(t, s.CreateEntry(context.Background(), rec))
	return rec
}

// writeStems fakes separator output files under the layout the real
// tool produces.
func writeStems(t *testing.T, req SeparationRequest, names []string) []StemResult {
	t.Helper()

	trackName := "song"
	stemDir := filepath.Join(req.OutputDir, req.Model, trackName)
	require.NoError(t, os.MkdirAll(stemDir, 0o755))

	var results []StemResult
	for _, name := range names {
		path := filepath.Join(stemDir, name+".wav")
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		results = append(results, StemResult{Name: name, Path: path, Format: "wav"})
	}
	return results
}

func TestUpdateJobProgressIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	hub := newRecordingHub()
	rec := seedEntry(t, s)

	jq := NewJobQueue(1, s, &scriptedSeparator{}, NewFileService(), hub)

	jq.UpdateJobProgress(rec.ID, 10)
	jq.UpdateJobProgress(rec.ID, 50)
	jq.UpdateJobProgress(rec.ID, 30)  // regression, dropped
	jq.UpdateJobProgress(rec.ID, 50)  // duplicate, dropped
	jq.UpdateJobProgress(rec.ID, 150) // clamped to 100
	jq.UpdateJobProgress(rec.ID, -5)  // clamped to 0, dropped

	var seen []int
	for _, msg := range hub.all() {
		seen = append(seen, msg.Progress)
	}
	assert.Equal(t, []int{10, 50, 100}, seen)

	stored, err := s.GetEntry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Progress)
}

func TestJobRunsToCompletion(t *testing.T) {
	s := openTestStore(t)
	hub := newRecordingHub()
	rec := seedEntry(t, s)

	sep := &scriptedSeparator{run: func(req SeparationRequest, onProgress func(int)) ([]StemResult, error) {
		onProgress(25)
		onProgress(80)
		onProgress(100) // held at 99 until the terminal broadcast
		return writeStems(t, req, []string{"vocals", "drums", "bass", "other"}), nil
	}}

	jq := NewJobQueue(1, s, sep, NewFileService(), hub)
	jq.Start()
	jq.Enqueue(rec)

	terminal := hub.waitTerminal(t)
	assert.Equal(t, rec.ID, terminal.TaskID)
	assert.Equal(t, string(types.JobStatusCompleted), terminal.Status)
	assert.Equal(t, 100, terminal.Progress)

	// Broadcast progress never regresses on the way to terminal.
	last := -1
	for _, msg := range hub.all() {
		assert.GreaterOrEqual(t, msg.Progress, last)
		last = msg.Progress
	}

	stored, err := s.GetEntry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Empty(t, stored.Error)

	// Stems are registered before completion: original first, then the
	// separated sources.
	stems, err := s.ListStems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, stems, 5)
	assert.Equal(t, "original", stems[0].Name)
	assert.Equal(t, "vocals", stems[1].Name)
	assert.Equal(t, "other", stems[4].Name)
}

func TestJobPassesRequestedStems(t *testing.T) {
	s := openTestStore(t)
	hub := newRecordingHub()
	rec := seedEntry(t, s)
	rec.Stems = []string{"vocals", "bass"}

	var requested []string
	sep := &scriptedSeparator{run: func(req SeparationRequest, onProgress func(int)) ([]StemResult, error) {
		requested = req.Stems
		return writeStems(t, req, req.Stems), nil
	}}

	jq := NewJobQueue(1, s, sep, NewFileService(), hub)
	jq.Start()
	jq.Enqueue(rec)

	hub.waitTerminal(t)
	assert.Equal(t, []string{"vocals", "bass"}, requested)

	stems, err := s.ListStems(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, stems, 3)
	assert.Equal(t, "original", stems[0].Name)
	assert.Equal(t, "vocals", stems[1].Name)
	assert.Equal(t, "bass", stems[2].Name)
}

func TestJobFailureBroadcastsError(t *testing.T) {
	s := openTestStore(t)
	hub := newRecordingHub()
	rec := seedEntry(t, s)

	sep := &scriptedSeparator{run: func(req SeparationRequest, onProgress func(int)) ([]StemResult, error) {
		onProgress(40)
		return nil, errors.New("demucs exited with status 1")
	}}

	jq := NewJobQueue(1, s, sep, NewFileService(), hub)
	jq.Start()
	jq.Enqueue(rec)

	terminal := hub.waitTerminal(t)
	assert.Equal(t, string(types.JobStatusFailed), terminal.Status)
	assert.Contains(t, terminal.Error, "demucs exited with status 1")

	stored, err := s.GetEntry(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "demucs exited with status 1")

	stems, err := s.ListStems(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stems, "a failed job registers no playable media")
}

func TestProgressCallbackHeldBelowTerminal(t *testing.T) {
	s := openTestStore(t)
	hub := newRecordingHub()
	rec := seedEntry(t, s)

	sep := &scriptedSeparator{run: func(req SeparationRequest, onProgress func(int)) ([]StemResult, error) {
		onProgress(100)
		return writeStems(t, req, []string{"vocals"}), nil
	}}

	jq := NewJobQueue(1, s, sep, NewFileService(), hub)
	jq.Start()
	jq.Enqueue(rec)

	hub.waitTerminal(t)

	messages := hub.all()
	for _, msg := range messages[:len(messages)-1] {
		assert.Less(t, msg.Progress, 100, "only the terminal broadcast reaches 100")
	}
	assert.Equal(t, 100, messages[len(messages)-1].Progress)
}
