package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"trane/types"
)

const (
	defaultMaxReconnects = 5
	backoffBase          = 250 * time.Millisecond
	backoffCap           = 8 * time.Second
)

// StatusChannel maintains a live WebSocket connection per submitted job
// and translates server messages into registry updates. If the
// connection drops before a terminal message it reconnects with bounded
// exponential backoff before surfacing ConnectionLost.
type StatusChannel struct {
	wsBase   string
	dialer   *websocket.Dialer
	registry *Registry

	// MaxReconnects bounds reconnect attempts after a drop. Zero means
	// never retry (fail silently semantics live at the caller).
	MaxReconnects int

	// OnMessage, when set, observes every parsed progress frame.
	OnMessage func(types.ProgressMessage)
}

// NewStatusChannel creates a status channel for the given server base
// URL (http/https, converted to the ws scheme) feeding the registry.
func NewStatusChannel(baseURL string, registry *Registry) (*StatusChannel, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	return &StatusChannel{
		wsBase:        strings.TrimRight(parsed.String(), "/"),
		dialer:        websocket.DefaultDialer,
		registry:      registry,
		MaxReconnects: defaultMaxReconnects,
	}, nil
}

// Watch follows one job until a terminal status arrives. It returns nil
// on completed, *ProcessingFailed on failed, *ConnectionLost when the
// reconnect budget is exhausted, and ctx.Err() on cancellation. The
// socket is always released before returning.
func (sc *StatusChannel) Watch(ctx context.Context, taskID string) error {
	target := fmt.Sprintf("%s/ws/progress/%s/", sc.wsBase, taskID)

	attempts := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := sc.dialer.DialContext(ctx, target, nil)
		if err != nil {
			lastErr = err
			attempts++
			if attempts > sc.MaxReconnects {
				return &ConnectionLost{TaskID: taskID, Attempts: attempts, Err: lastErr}
			}
			if err := sleepCtx(ctx, backoffDelay(attempts)); err != nil {
				return err
			}
			continue
		}

		terminal, readErr := sc.pump(ctx, conn, taskID)
		if terminal != nil {
			return terminalResult(taskID, *terminal)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Dropped before a terminal message: fall back to bounded retry.
		lastErr = readErr
		attempts++
		if attempts > sc.MaxReconnects {
			return &ConnectionLost{TaskID: taskID, Attempts: attempts, Err: lastErr}
		}
		if err := sleepCtx(ctx, backoffDelay(attempts)); err != nil {
			return err
		}
	}
}

// pump reads messages until a terminal status, a read error, or
// cancellation. It returns the terminal message when one arrived.
func (sc *StatusChannel) pump(ctx context.Context, conn *websocket.Conn, taskID string) (*types.ProgressMessage, error) {
	done := make(chan struct{})
	defer close(done)

	// Cancellation releases the socket, which unblocks ReadJSON.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var msg types.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				// Server closed without a terminal frame; treat as drop.
				return nil, err
			}
			return nil, err
		}

		sc.registry.Upsert(taskID, TaskState{
			Progress: msg.Progress,
			Status:   types.JobStatus(msg.Status),
			Error:    msg.Error,
		})
		if sc.OnMessage != nil {
			sc.OnMessage(msg)
		}

		if msg.Terminal() {
			return &msg, nil
		}
	}
}

func terminalResult(taskID string, msg types.ProgressMessage) error {
	if types.JobStatus(msg.Status) == types.JobStatusFailed {
		return &ProcessingFailed{TaskID: taskID, Reason: msg.Error}
	}
	return nil
}

func backoffDelay(attempt int) time.Duration {
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		return backoffCap
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
