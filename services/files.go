package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"

	"trane/types"
)

// FileService interface defines methods for media file management
type FileService interface {
	ExtractAudioMetadata(filePath string) *types.AudioMetadata
	ValidateFilePath(path string) error
	GetContentType(filePath string) string
	IsAllowedUpload(filename string) bool
	ProbeDuration(filePath string) float64
}

// fileService implements the FileService interface
type fileService struct{}

// NewFileService creates a new file service
func NewFileService() FileService {
	return &fileService{}
}

var allowedUploadExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
}

// IsAllowedUpload reports whether the filename has an accepted audio extension
func (fs *fileService) IsAllowedUpload(filename string) bool {
	return allowedUploadExtensions[strings.ToLower(filepath.Ext(filename))]
}

// GetContentType returns the appropriate MIME type for an audio file
func (fs *fileService) GetContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// ValidateFilePath checks for path traversal attempts and other security issues
func (fs *fileService) ValidateFilePath(path string) error {
	// Check for path traversal attempts
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	// Check for absolute paths
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute paths not allowed")
	}

	// Check for empty path
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path not allowed")
	}

	return nil
}

// ExtractAudioMetadata extracts tag metadata from an uploaded file with
// a filename fallback for untagged uploads
func (fs *fileService) ExtractAudioMetadata(filePath string) *types.AudioMetadata {
	metadata := &types.AudioMetadata{}

	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("Warning: Could not open audio file %s: %v", filePath, err)
		return fallbackMetadata(filePath)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		log.Printf("Warning: Could not parse audio metadata from %s: %v", filePath, err)
		return fallbackMetadata(filePath)
	}

	metadata.Title = meta.Title()
	metadata.Artist = meta.Artist()
	metadata.Album = meta.Album()

	track, _ := meta.Track()
	metadata.TrackNumber = track

	if metadata.Title == "" {
		metadata.Title = fallbackMetadata(filePath).Title
	}

	return metadata
}

// ProbeDuration returns the playing time of a WAV file in seconds.
// Non-WAV media and malformed headers yield 0; playback duration for
// those is discovered by the decoder at load time.
func (fs *fileService) ProbeDuration(filePath string) float64 {
	if strings.ToLower(filepath.Ext(filePath)) != ".wav" {
		return 0
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return 0
	}
	dur, err := decoder.Duration()
	if err != nil || dur <= 0 {
		return 0
	}
	return dur.Seconds()
}

// fallbackMetadata derives a title from the filename
func fallbackMetadata(filePath string) *types.AudioMetadata {
	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	return &types.AudioMetadata{Title: title}
}
