package services

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"trane/store"
)

// Janitor prunes failed entries and their media on a schedule.
type Janitor struct {
	store  *store.Store
	maxAge time.Duration
	cron   *cron.Cron
}

// NewJanitor creates a janitor removing failed entries older than maxAge.
func NewJanitor(s *store.Store, maxAge time.Duration) *Janitor {
	return &Janitor{store: s, maxAge: maxAge, cron: cron.New()}
}

// Start schedules the hourly sweep.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@hourly", j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule; a running sweep finishes.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep removes failed entries past the age limit along with their files.
func (j *Janitor) Sweep() {
	cutoff := time.Now().Add(-j.maxAge)
	stale, err := j.store.PruneFailedBefore(context.Background(), cutoff)
	if err != nil {
		log.Printf("Janitor sweep failed: %v", err)
		return
	}

	for _, rec := range stale {
		// The entry directory holds the upload and any partial stems.
		dir := filepath.Dir(rec.StoredPath)
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Janitor could not remove media for %s: %v", rec.ID, err)
		}
	}

	if len(stale) > 0 {
		log.Printf("Janitor pruned %d failed entries", len(stale))
	}
}
