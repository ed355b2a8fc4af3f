package websocket

import (
	"log"
	"sync"
	"time"

	"trane/types"
)

// Hub interface defines the methods for managing progress subscribers
type Hub interface {
	Run()
	BroadcastProgress(taskID string, progress int, status types.JobStatus, errMsg string)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
}

// hub maintains the set of active clients and pushes progress to them
type hub struct {
	// Registered clients mapped by task ID
	clients map[string]map[*Client]bool

	// Broadcast channel for sending messages to the clients of a task
	broadcast chan types.ProgressMessage

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new progress hub
func NewHub() Hub {
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.ProgressMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.taskID] == nil {
				h.clients[client.taskID] = make(map[*Client]bool)
			}
			h.clients[client.taskID][client] = true
			h.mu.Unlock()
			log.Printf("Progress subscriber connected for task %s", client.taskID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.taskID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.taskID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Progress subscriber disconnected for task %s", client.taskID)

		case message := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[message.TaskID]; ok {
				for client := range clients {
					select {
					case client.send <- message:
					default:
						close(client.send)
						delete(clients, client)
					}
				}

				// A terminal status is the last frame the channel carries;
				// the server side closes the connection afterwards.
				if message.Terminal() {
					for client := range clients {
						close(client.send)
						delete(clients, client)
					}
				}

				if len(clients) == 0 {
					delete(h.clients, message.TaskID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastProgress sends a progress message to all subscribers of a task
func (h *hub) BroadcastProgress(taskID string, progress int, status types.JobStatus, errMsg string) {
	progressMsg := types.ProgressMessage{
		TaskID:    taskID,
		Progress:  progress,
		Status:    string(status),
		Error:     errMsg,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- progressMsg:
	default:
		log.Printf("Progress broadcast channel full, dropping message for task %s", taskID)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
