package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"trane/store"
	"trane/types"
	"trane/websocket"
)

// JobQueue interface defines the methods for managing separation jobs
type JobQueue interface {
	Start()
	Enqueue(entry *store.EntryRecord)
	UpdateJobProgress(id string, percent int)
	SetJobStatus(id string, status types.JobStatus, errMsg string)
}

// jobQueue manages separation jobs
type jobQueue struct {
	store      *store.Store
	separator  Separator
	files      FileService
	hub        websocket.Hub
	queue      chan *store.EntryRecord
	maxWorkers int

	// latest broadcast progress per job, used to keep visible progress
	// monotonically non-decreasing until terminal
	mu       sync.Mutex
	progress map[string]int
}

// NewJobQueue creates a new job queue
func NewJobQueue(maxWorkers int, s *store.Store, sep Separator, files FileService, hub websocket.Hub) JobQueue {
	return &jobQueue{
		store:      s,
		separator:  sep,
		files:      files,
		hub:        hub,
		queue:      make(chan *store.EntryRecord, 100), // Buffer for 100 jobs
		maxWorkers: maxWorkers,
		progress:   make(map[string]int),
	}
}

// Enqueue adds an already-persisted entry to the processing queue
func (jq *jobQueue) Enqueue(entry *store.EntryRecord) {
	jq.queue <- entry
}

// Start begins processing jobs
func (jq *jobQueue) Start() {
	for i := 0; i < jq.maxWorkers; i++ {
		go jq.worker()
	}
}

// worker processes jobs from the queue
func (jq *jobQueue) worker() {
	for entry := range jq.queue {
		jq.SetJobStatus(entry.ID, types.JobStatusProcessing, "")

		if err := jq.processEntry(entry); err != nil {
			jq.SetJobStatus(entry.ID, types.JobStatusFailed, err.Error())
			log.Printf("Job %s failed: %v", entry.ID, err)
		} else {
			jq.SetJobStatus(entry.ID, types.JobStatusCompleted, "")
			log.Printf("Job %s completed successfully", entry.ID)
		}
	}
}

// processEntry runs the separator and registers the resulting tracks.
// Stems are registered before the terminal status is broadcast so a
// completed job always has its media available.
func (jq *jobQueue) processEntry(entry *store.EntryRecord) error {
	ctx := context.Background()

	req := SeparationRequest{
		EntryID:   entry.ID,
		InputPath: entry.StoredPath,
		Model:     entry.Model,
		Stems:     entry.Stems, // empty means the model's default set
		OutputDir: filepath.Join(filepath.Dir(entry.StoredPath), "stems"),
	}

	results, err := jq.separator.Separate(ctx, req, func(percent int) {
		// Hold the last point for the terminal broadcast.
		if percent > 99 {
			percent = 99
		}
		jq.UpdateJobProgress(entry.ID, percent)
	})
	if err != nil {
		return fmt.Errorf("separate %s: %w", entry.Filename, err)
	}

	original := types.StemFile{
		EntryID:  entry.ID,
		Name:     "original",
		Path:     entry.StoredPath,
		Duration: jq.files.ProbeDuration(entry.StoredPath),
		Format:   formatOf(entry.StoredPath),
	}
	if err := jq.store.AddStem(ctx, original); err != nil {
		return err
	}

	for _, result := range results {
		stem := types.StemFile{
			EntryID:  entry.ID,
			Name:     result.Name,
			Path:     result.Path,
			Duration: jq.files.ProbeDuration(result.Path),
			Format:   result.Format,
		}
		if err := jq.store.AddStem(ctx, stem); err != nil {
			return err
		}
	}

	return nil
}

func formatOf(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 1 {
		return ext[1:]
	}
	return "wav"
}

// UpdateJobProgress persists and broadcasts a progress update. Values
// that would regress the last broadcast value are dropped: separator
// output can jitter, visible progress must not.
func (jq *jobQueue) UpdateJobProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	jq.mu.Lock()
	if percent <= jq.progress[id] {
		jq.mu.Unlock()
		return
	}
	jq.progress[id] = percent
	jq.mu.Unlock()

	if err := jq.store.SetEntryProgress(context.Background(), id, percent); err != nil {
		log.Printf("Failed to persist progress for job %s: %v", id, err)
	}

	if jq.hub != nil {
		jq.hub.BroadcastProgress(id, percent, types.JobStatusProcessing, "")
	}
}

// SetJobStatus persists and broadcasts a status transition
func (jq *jobQueue) SetJobStatus(id string, status types.JobStatus, errMsg string) {
	if err := jq.store.SetEntryStatus(context.Background(), id, status, errMsg); err != nil {
		log.Printf("Failed to persist status for job %s: %v", id, err)
	}

	percent := jq.currentProgress(id)
	if status == types.JobStatusCompleted {
		percent = 100
		if err := jq.store.SetEntryProgress(context.Background(), id, percent); err != nil {
			log.Printf("Failed to persist progress for job %s: %v", id, err)
		}
	}

	if status.Terminal() {
		jq.mu.Lock()
		delete(jq.progress, id)
		jq.mu.Unlock()
	}

	if jq.hub != nil {
		jq.hub.BroadcastProgress(id, percent, status, errMsg)
	}
}

func (jq *jobQueue) currentProgress(id string) int {
	jq.mu.Lock()
	defer jq.mu.Unlock()
	return jq.progress[id]
}
