package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"trane/store"
	"trane/types"
	"trane/websocket"
)

// ProgressHandler upgrades WebSocket connections for job progress
type ProgressHandler struct {
	store *store.Store
	hub   websocket.Hub
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(s *store.Store, hub websocket.Hub) *ProgressHandler {
	return &ProgressHandler{store: s, hub: hub}
}

// Subscribe handles WebSocket connections for a specific task's progress.
// Subscription is implicit in the path: no client frames are expected.
func (h *ProgressHandler) Subscribe(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, types.APIError{Error: "task ID is required"})
		return
	}

	if _, err := h.store.GetEntry(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.APIError{Error: "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, types.APIError{Error: "failed to load task"})
		return
	}

	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, taskID)
	h.hub.RegisterClient(client)
	client.StartPumps()

	// Re-read the entry only after the client is registered: a job
	// reaching a terminal state between the lookup above and registration
	// broadcasts to nobody, and without the replay the subscriber would
	// wait forever. RegisterClient returns once the hub has taken the
	// client, so a replay enqueued here is delivered after registration.
	rec, err := h.store.GetEntry(c.Request.Context(), taskID)
	if err == nil && rec.Status.Terminal() {
		h.hub.BroadcastProgress(taskID, rec.Progress, rec.Status, rec.Error)
	}
}
