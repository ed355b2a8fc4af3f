package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trane/types"
)

// progressServer serves the progress endpoint, invoking script once per
// accepted connection with the 1-based connection number.
func progressServer(t *testing.T, script func(conn *websocket.Conn, connNum int)) (*httptest.Server, *int32) {
	t.Helper()

	var connections int32
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/progress/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		n := atomic.AddInt32(&connections, 1)
		script(conn, int(n))
	}))
	return server, &connections
}

func frame(taskID string, progress int, status types.JobStatus, errMsg string) types.ProgressMessage {
	return types.ProgressMessage{
		TaskID:    taskID,
		Progress:  progress,
		Status:    string(status),
		Error:     errMsg,
		Timestamp: time.Now(),
	}
}

func TestNewStatusChannelSchemes(t *testing.T) {
	reg := NewRegistry()

	sc, err := NewStatusChannel("http://localhost:8000", reg)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000", sc.wsBase)

	sc, err = NewStatusChannel("https://trane.example.com/", reg)
	require.NoError(t, err)
	assert.Equal(t, "wss://trane.example.com", sc.wsBase)

	_, err = NewStatusChannel("ftp://nope", reg)
	assert.Error(t, err)
}

func TestWatchCompletedSequence(t *testing.T) {
	server, connections := progressServer(t, func(conn *websocket.Conn, _ int) {
		require.NoError(t, conn.WriteJSON(frame("task-1", 10, types.JobStatusProcessing, "")))
		require.NoError(t, conn.WriteJSON(frame("task-1", 55, types.JobStatusProcessing, "")))
		require.NoError(t, conn.WriteJSON(frame("task-1", 100, types.JobStatusCompleted, "")))
	})
	defer server.Close()

	reg := NewRegistry()
	sc, err := NewStatusChannel(server.URL, reg)
	require.NoError(t, err)

	var seen []int
	sc.OnMessage = func(msg types.ProgressMessage) {
		seen = append(seen, msg.Progress)
	}

	err = sc.Watch(context.Background(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, []int{10, 55, 100}, seen)
	assert.Equal(t, int32(1), atomic.LoadInt32(connections))

	state, ok := reg.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, 100, state.Progress)
	assert.Equal(t, types.JobStatusCompleted, state.Status)
}

func TestWatchFailedJobDoesNotReconnect(t *testing.T) {
	server, connections := progressServer(t, func(conn *websocket.Conn, _ int) {
		require.NoError(t, conn.WriteJSON(frame("task-2", 30, types.JobStatusProcessing, "")))
		require.NoError(t, conn.WriteJSON(frame("task-2", 30, types.JobStatusFailed, "demucs exited with status 1")))
	})
	defer server.Close()

	reg := NewRegistry()
	sc, err := NewStatusChannel(server.URL, reg)
	require.NoError(t, err)

	err = sc.Watch(context.Background(), "task-2")

	var failed *ProcessingFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "task-2", failed.TaskID)
	assert.Equal(t, "demucs exited with status 1", failed.Reason)
	assert.Equal(t, int32(1), atomic.LoadInt32(connections), "a failed job is terminal, not a drop")

	state, ok := reg.Get("task-2")
	require.True(t, ok)
	assert.Equal(t, types.JobStatusFailed, state.Status)
	assert.Equal(t, "demucs exited with status 1", state.Error)
}

func TestWatchReconnectsAfterDrop(t *testing.T) {
	server, connections := progressServer(t, func(conn *websocket.Conn, connNum int) {
		if connNum == 1 {
			// Drop mid-stream without a terminal frame.
			require.NoError(t, conn.WriteJSON(frame("task-3", 40, types.JobStatusProcessing, "")))
			return
		}
		require.NoError(t, conn.WriteJSON(frame("task-3", 100, types.JobStatusCompleted, "")))
	})
	defer server.Close()

	reg := NewRegistry()
	sc, err := NewStatusChannel(server.URL, reg)
	require.NoError(t, err)

	err = sc.Watch(context.Background(), "task-3")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(connections))

	state, ok := reg.Get("task-3")
	require.True(t, ok)
	assert.Equal(t, types.JobStatusCompleted, state.Status)
}

func TestWatchExhaustedBudgetReturnsConnectionLost(t *testing.T) {
	server, connections := progressServer(t, func(conn *websocket.Conn, _ int) {
		// Always drop before any terminal frame.
		_ = conn.WriteJSON(frame("task-4", 10, types.JobStatusProcessing, ""))
	})
	defer server.Close()

	reg := NewRegistry()
	sc, err := NewStatusChannel(server.URL, reg)
	require.NoError(t, err)
	sc.MaxReconnects = 1

	err = sc.Watch(context.Background(), "task-4")

	var lost *ConnectionLost
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, "task-4", lost.TaskID)
	assert.Equal(t, 2, lost.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(connections))
}

func TestWatchDialFailureWithoutRetries(t *testing.T) {
	// Grab a port with no listener behind it.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	reg := NewRegistry()
	sc, err := NewStatusChannel(url, reg)
	require.NoError(t, err)
	sc.MaxReconnects = 0

	err = sc.Watch(context.Background(), "task-5")

	var lost *ConnectionLost
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, 1, lost.Attempts)
	assert.Error(t, errors.Unwrap(lost))
}

func TestWatchCancellation(t *testing.T) {
	received := make(chan struct{})
	server, _ := progressServer(t, func(conn *websocket.Conn, _ int) {
		require.NoError(t, conn.WriteJSON(frame("task-6", 20, types.JobStatusProcessing, "")))
		// Hold the connection open; the client cancels.
		<-received
	})
	defer server.Close()
	defer close(received)

	reg := NewRegistry()
	sc, err := NewStatusChannel(server.URL, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sc.OnMessage = func(types.ProgressMessage) { cancel() }

	err = sc.Watch(ctx, "task-6")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 500*time.Millisecond, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(5))
	assert.Equal(t, 8*time.Second, backoffDelay(6))
	assert.Equal(t, 8*time.Second, backoffDelay(7))
	assert.Equal(t, 8*time.Second, backoffDelay(40), "shift overflow still lands on the cap")
}
