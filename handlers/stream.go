package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"trane/types"
)

// Stream serves one stem's media with HTTP Range support for seeking
func (h *EntryHandler) Stream(c *gin.Context) {
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

	stemName := strings.TrimSuffix(c.Param("stem"), "/")
	if err := h.files.ValidateFilePath(stemName); err != nil {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "invalid stem name"})
		return
	}

	stems, err := h.store.ListStems(c.Request.Context(), rec.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to list stems"})
		return
	}

	var path string
	for _, stem := range stems {
		if stem.Name == stemName {
			path = stem.Path
			break
		}
	}
	if path == "" {
		c.JSON(http.StatusNotFound, types.APIError{Error: "stem not found"})
		return
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		c.JSON(http.StatusNotFound, types.APIError{Error: "media file missing"})
		return
	}

	file, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to open media file"})
		return
	}
	defer file.Close()

	c.Header("Content-Type", h.files.GetContentType(path))
	c.Header("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")

	// Handle range requests for seeking
	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		h.handleRangeRequest(c, file, fileInfo.Size(), rangeHeader, path)
		return
	}

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		log.Printf("Error streaming stem %s/%s: %v", rec.ID, stemName, err)
	}
}

// handleRangeRequest handles HTTP range requests for efficient seeking
func (h *EntryHandler) handleRangeRequest(c *gin.Context, file *os.File, fileSize int64, rangeHeader, filePath string) {
	// Parse range header (e.g., "bytes=0-1023" or "bytes=1024-")
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	ranges := strings.Split(rangeSpec, "-")

	if len(ranges) != 2 {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var start, end int64
	var err error

	// Parse start position
	if ranges[0] != "" {
		start, err = strconv.ParseInt(ranges[0], 10, 64)
		if err != nil || start < 0 {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	}

	// Parse end position
	if ranges[1] != "" {
		end, err = strconv.ParseInt(ranges[1], 10, 64)
		if err != nil || end < start {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
	} else {
		end = fileSize - 1
	}

	// Validate range bounds
	if start >= fileSize {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= fileSize {
		end = fileSize - 1
	}

	contentLength := end - start + 1

	if _, err = file.Seek(start, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to seek file"})
		return
	}

	c.Header("Content-Type", h.files.GetContentType(filePath))
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	c.Header("Accept-Ranges", "bytes")
	c.Status(http.StatusPartialContent)

	if _, err = io.CopyN(c.Writer, file, contentLength); err != nil {
		log.Printf("Error streaming range %d-%d: %v", start, end, err)
	}
}
