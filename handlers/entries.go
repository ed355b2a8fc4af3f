package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trane/middleware"
	"trane/services"
	"trane/store"
	"trane/types"
)

// EntryHandler handles the upload/entry management endpoints
type EntryHandler struct {
	store       *store.Store
	jobQueue    services.JobQueue
	files       services.FileService
	libraryRoot string
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(s *store.Store, jq services.JobQueue, files services.FileService, libraryRoot string) *EntryHandler {
	return &EntryHandler{
		store:       s,
		jobQueue:    jq,
		files:       files,
		libraryRoot: libraryRoot,
	}
}

// Create accepts a multipart upload and queues a separation job
func (h *EntryHandler) Create(c *gin.Context) {
	fields := map[string]string{}

	file, err := c.FormFile("audio_file")
	if err != nil {
		fields["audio_file"] = "no file attached"
	} else if !h.files.IsAllowedUpload(file.Filename) {
		fields["audio_file"] = "unsupported audio format (wav, flac, mp3 accepted)"
	}

	model := c.PostForm("model")
	if model == "" {
		model = "htdemucs"
	}
	if !services.IsValidModel(model) {
		fields["model"] = fmt.Sprintf("unknown model %q", model)
	}

	var opts types.SeparationOptions
	if raw := c.PostForm("options"); raw != "" {
		if jsonErr := json.Unmarshal([]byte(raw), &opts); jsonErr != nil {
			fields["options"] = "options must be a JSON object"
		}
	}
	for _, stem := range opts.Stems {
		if !services.IsValidStem(stem) {
			fields["options"] = fmt.Sprintf("unknown stem %q", stem)
			break
		}
	}

	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, types.APIError{
			Error:  "validation failed",
			Fields: fields,
		})
		return
	}

	id := uuid.New().String()
	entryDir := filepath.Join(h.libraryRoot, "entries", id)
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to store upload"})
		return
	}

	storedPath := filepath.Join(entryDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to store upload"})
		return
	}

	name := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	rec := &store.EntryRecord{
		Entry: types.Entry{
			ID:        id,
			Name:      name,
			Filename:  file.Filename,
			Size:      file.Size,
			Model:     model,
			Status:    types.JobStatusQueued,
			Metadata:  h.files.ExtractAudioMetadata(storedPath),
			CreatedBy: middleware.CurrentUser(c),
		},
		StoredPath: storedPath,
		Stems:      opts.Stems,
	}

	if err := h.store.CreateEntry(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to create entry"})
		return
	}

	h.jobQueue.Enqueue(rec)

	c.JSON(http.StatusCreated, rec.Entry)
}

// List returns all entries, newest first
func (h *EntryHandler) List(c *gin.Context) {
	records, err := h.store.ListEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list entries"})
		return
	}

	entries := make([]*types.Entry, 0, len(records))
	for _, rec := range records {
		entry := rec.Entry
		entries = append(entries, &entry)
	}

	c.JSON(http.StatusOK, types.EntryList{Entries: entries, Total: len(entries)})
}

// Get returns a single entry
func (h *EntryHandler) Get(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec.Entry)
}

// Rename updates the display name of an entry
func (h *EntryHandler) Rename(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, types.APIError{
			Error:  "validation failed",
			Fields: map[string]string{"name": "name is required"},
		})
		return
	}

	err := h.store.RenameEntry(c.Request.Context(), c.Param("id"), strings.TrimSpace(body.Name))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to rename entry"})
		return
	}

	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec.Entry)
}

// Delete removes an entry and its media files
func (h *EntryHandler) Delete(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.store.DeleteEntry(c.Request.Context(), rec.ID); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to delete entry"})
		return
	}

	// Remove the entry directory (upload plus stems).
	_ = os.RemoveAll(filepath.Dir(rec.StoredPath))

	c.Status(http.StatusNoContent)
}

// Download serves the original uploaded file
func (h *EntryHandler) Download(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	c.Header("Content-Type", h.files.GetContentType(rec.StoredPath))
	c.File(rec.StoredPath)
}

// Stems returns the playable track list for a completed entry. Media
// URLs are only handed out once the owning job is completed.
func (h *EntryHandler) Stems(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	if rec.Status != types.JobStatusCompleted {
		c.JSON(http.StatusConflict, types.APIError{
			Error: fmt.Sprintf("entry is %s, stems are available once completed", rec.Status),
		})
		return
	}

	stems, err := h.store.ListStems(c.Request.Context(), rec.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list stems"})
		return
	}

	tracks := make([]types.Track, 0, len(stems))
	for _, stem := range stems {
		tracks = append(tracks, types.Track{
			Name:     stem.Name,
			URL:      fmt.Sprintf("/entries/%s/stems/%s/", rec.ID, stem.Name),
			Duration: stem.Duration,
			Format:   stem.Format,
		})
	}

	c.JSON(http.StatusOK, types.TrackList{EntryID: rec.ID, Tracks: tracks})
}

// lookup fetches the entry for the :id param, writing the error response
// itself when the entry is missing.
func (h *EntryHandler) lookup(c *gin.Context) (*store.EntryRecord, bool) {
	rec, err := h.store.GetEntry(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "entry not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to load entry"})
		return nil, false
	}
	return rec, true
}
