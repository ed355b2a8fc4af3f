package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"trane/middleware"
	"trane/store"
	"trane/types"
)

// NoteHandler handles the note annotation endpoints
type NoteHandler struct {
	store *store.Store
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(s *store.Store) *NoteHandler {
	return &NoteHandler{store: s}
}

type noteBody struct {
	EntryID string   `json:"entryId"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Create attaches a new note to an entry
func (h *NoteHandler) Create(c *gin.Context) {
	var body noteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(body.Title) == "" {
		fields["title"] = "title is required"
	}
	if body.EntryID == "" {
		fields["entryId"] = "entryId is required"
	} else if _, err := h.store.GetEntry(c.Request.Context(), body.EntryID); errors.Is(err, store.ErrNotFound) {
		fields["entryId"] = fmt.Sprintf("unknown entry %q", body.EntryID)
	}
	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "validation failed", Fields: fields})
		return
	}

	username := middleware.CurrentUser(c)
	note := &types.Note{
		ID:        uuid.New().String(),
		EntryID:   body.EntryID,
		Title:     strings.TrimSpace(body.Title),
		Content:   body.Content,
		Tags:      body.Tags,
		CreatedBy: username,
		UpdatedBy: username,
	}
	if err := h.store.CreateNote(c.Request.Context(), note); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to create note"})
		return
	}

	c.JSON(http.StatusCreated, note)
}

// List returns notes, optionally filtered by ?entry=<id>
func (h *NoteHandler) List(c *gin.Context) {
	notes, err := h.store.ListNotes(c.Request.Context(), c.Query("entry"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list notes"})
		return
	}
	if notes == nil {
		notes = []*types.Note{}
	}
	c.JSON(http.StatusOK, types.NoteList{Notes: notes, Total: len(notes)})
}

// Get returns a single note
func (h *NoteHandler) Get(c *gin.Context) {
	note, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, note)
}

// Update rewrites the title, content or tags of a note
func (h *NoteHandler) Update(c *gin.Context) {
	note, ok := h.lookup(c)
	if !ok {
		return
	}

	var body struct {
		Title   *string   `json:"title"`
		Content *string   `json:"content"`
		Tags    *[]string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	if body.Title != nil {
		if strings.TrimSpace(*body.Title) == "" {
			c.JSON(http.StatusBadRequest, types.APIError{
				Error:  "validation failed",
				Fields: map[string]string{"title": "title is required"},
			})
			return
		}
		note.Title = strings.TrimSpace(*body.Title)
	}
	if body.Content != nil {
		note.Content = *body.Content
	}
	if body.Tags != nil {
		note.Tags = *body.Tags
	}
	note.UpdatedBy = middleware.CurrentUser(c)

	if err := h.store.UpdateNote(c.Request.Context(), note); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to update note"})
		return
	}

	updated, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a note
func (h *NoteHandler) Delete(c *gin.Context) {
	err := h.store.DeleteNote(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "note not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to delete note"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NoteHandler) lookup(c *gin.Context) (*types.Note, bool) {
	note, err := h.store.GetNote(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "note not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to load note"})
		return nil, false
	}
	return note, true
}

// DocumentHandler handles the supporting-document endpoints
type DocumentHandler struct {
	store       *store.Store
	libraryRoot string
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(s *store.Store, libraryRoot string) *DocumentHandler {
	return &DocumentHandler{store: s, libraryRoot: libraryRoot}
}

// Create accepts a multipart upload attached to an entry
func (h *DocumentHandler) Create(c *gin.Context) {
	fields := map[string]string{}

	file, err := c.FormFile("file")
	if err != nil {
		fields["file"] = "no file attached"
	}

	entryID := c.PostForm("entryId")
	if entryID == "" {
		fields["entryId"] = "entryId is required"
	} else if _, lookupErr := h.store.GetEntry(c.Request.Context(), entryID); errors.Is(lookupErr, store.ErrNotFound) {
		fields["entryId"] = fmt.Sprintf("unknown entry %q", entryID)
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" && file != nil {
		title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}

	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "validation failed", Fields: fields})
		return
	}

	id := uuid.New().String()
	docDir := filepath.Join(h.libraryRoot, "documents", id)
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to store document"})
		return
	}
	storedPath := filepath.Join(docDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to store document"})
		return
	}

	username := middleware.CurrentUser(c)
	rec := &store.DocumentRecord{
		Document: types.Document{
			ID:          id,
			EntryID:     entryID,
			Title:       title,
			Description: c.PostForm("description"),
			Type:        c.PostForm("type"),
			Filename:    file.Filename,
			Size:        file.Size,
			CreatedBy:   username,
			UpdatedBy:   username,
		},
		StoredPath: storedPath,
	}
	if err := h.store.CreateDocument(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to create document"})
		return
	}

	c.JSON(http.StatusCreated, rec.Document)
}

// List returns documents, optionally filtered by ?entry=<id>
func (h *DocumentHandler) List(c *gin.Context) {
	records, err := h.store.ListDocuments(c.Request.Context(), c.Query("entry"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list documents"})
		return
	}

	documents := make([]*types.Document, 0, len(records))
	for _, rec := range records {
		doc := rec.Document
		documents = append(documents, &doc)
	}
	c.JSON(http.StatusOK, types.DocumentList{Documents: documents, Total: len(documents)})
}

// Get returns a single document
func (h *DocumentHandler) Get(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec.Document)
}

// Update rewrites the descriptive fields of a document
func (h *DocumentHandler) Update(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Type        *string `json:"type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	if body.Title != nil {
		if strings.TrimSpace(*body.Title) == "" {
			c.JSON(http.StatusBadRequest, types.APIError{
				Error:  "validation failed",
				Fields: map[string]string{"title": "title is required"},
			})
			return
		}
		rec.Title = strings.TrimSpace(*body.Title)
	}
	if body.Description != nil {
		rec.Description = *body.Description
	}
	if body.Type != nil {
		rec.Type = *body.Type
	}
	rec.UpdatedBy = middleware.CurrentUser(c)

	if err := h.store.UpdateDocument(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to update document"})
		return
	}

	updated, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, updated.Document)
}

// Delete removes a document and its file
func (h *DocumentHandler) Delete(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.store.DeleteDocument(c.Request.Context(), rec.ID); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to delete document"})
		return
	}
	_ = os.RemoveAll(filepath.Dir(rec.StoredPath))

	c.Status(http.StatusNoContent)
}

// Download serves the stored document file
func (h *DocumentHandler) Download(c *gin.Context) {
	rec, ok := h.lookup(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	c.File(rec.StoredPath)
}

func (h *DocumentHandler) lookup(c *gin.Context) (*store.DocumentRecord, bool) {
	rec, err := h.store.GetDocument(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "document not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to load document"})
		return nil, false
	}
	return rec, true
}

// TagHandler handles the tag endpoints
type TagHandler struct {
	store *store.Store
}

// NewTagHandler creates a new tag handler
func NewTagHandler(s *store.Store) *TagHandler {
	return &TagHandler{store: s}
}

// Create registers a new tag
func (h *TagHandler) Create(c *gin.Context) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, types.APIError{
			Error:  "validation failed",
			Fields: map[string]string{"name": "name is required"},
		})
		return
	}

	tag := &types.Tag{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		CreatedBy:   middleware.CurrentUser(c),
	}
	if err := h.store.CreateTag(c.Request.Context(), tag); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to create tag"})
		return
	}

	c.JSON(http.StatusCreated, tag)
}

// List returns all tags sorted by name
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.store.ListTags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list tags"})
		return
	}
	if tags == nil {
		tags = []*types.Tag{}
	}
	c.JSON(http.StatusOK, types.TagList{Tags: tags, Total: len(tags)})
}

// Get returns a single tag
func (h *TagHandler) Get(c *gin.Context) {
	tag, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tag)
}

// Update rewrites the name or description of a tag
func (h *TagHandler) Update(c *gin.Context) {
	tag, ok := h.lookup(c)
	if !ok {
		return
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid request body"})
		return
	}

	if body.Name != nil {
		if strings.TrimSpace(*body.Name) == "" {
			c.JSON(http.StatusBadRequest, types.APIError{
				Error:  "validation failed",
				Fields: map[string]string{"name": "name is required"},
			})
			return
		}
		tag.Name = strings.TrimSpace(*body.Name)
	}
	if body.Description != nil {
		tag.Description = *body.Description
	}

	if err := h.store.UpdateTag(c.Request.Context(), tag); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to update tag"})
		return
	}

	updated, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a tag
func (h *TagHandler) Delete(c *gin.Context) {
	err := h.store.DeleteTag(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "tag not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to delete tag"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TagHandler) lookup(c *gin.Context) (*types.Tag, bool) {
	tag, err := h.store.GetTag(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, types.APIError{Error: "tag not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to load tag"})
		return nil, false
	}
	return tag, true
}
