package types

import "time"

// Entry represents an uploaded audio file and its separation lifecycle
type Entry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Filename  string         `json:"filename"`
	Size      int64          `json:"size"`
	Model     string         `json:"model"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Error     string         `json:"error,omitempty"`
	Metadata  *AudioMetadata `json:"metadata,omitempty"`
	CreatedBy string         `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Track represents a playable audio unit: the original upload or one stem
type Track struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"` // seconds, 0 when unknown
	Format   string  `json:"format"`   // "wav", "flac", "mp3"
}

// StemFile records one separated output on disk
type StemFile struct {
	EntryID  string  `json:"entryId"`
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
}

// AudioMetadata represents tag metadata read from an uploaded file
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
}
