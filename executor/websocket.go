package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single action when none is configured.
const DefaultTimeout = 30 * time.Second

// Command is sent to the application for each action.
type Command struct {
	ID     string        `json:"id"`
	Action action.Action `json:"action"`
	Pixel  *Pixel        `json:"pixel,omitempty"`
}

// Reply is the application's answer to a Command. Status is "ok" or "error".
type Reply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// WebSocket drives an application that accepts commands over a websocket
// connection and acknowledges each one when it has been carried out.
type WebSocket struct {
	conn    *websocket.Conn
	screen  Screen
	timeout time.Duration
	logger  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  chan struct{}
	readErr error
}

// Dial connects to the application at url.
func Dial(ctx context.Context, url string, screen Screen, timeout time.Duration, logger *zap.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindExecution, err, "could not connect to executor at '%s'", url)
	}
	w := &WebSocket{
		conn:    conn,
		screen:  screen,
		timeout: timeout,
		logger:  logger.Named("executor"),
		pending: make(map[string]chan Reply),
		closed:  make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

func (w *WebSocket) readLoop() {
	for {
		var reply Reply
		if err := w.conn.ReadJSON(&reply); err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			close(w.closed)
			return
		}
		w.mu.Lock()
		ch, ok := w.pending[reply.ID]
		delete(w.pending, reply.ID)
		w.mu.Unlock()
		if !ok {
			w.logger.Warn("Reply for unknown command", zap.String("id", reply.ID))
			continue
		}
		ch <- reply
	}
}

// Execute sends act and reports when the application acknowledges it.
func (w *WebSocket) Execute(ctx context.Context, act action.Action) <-chan error {
	done := make(chan error, 1)
	cmd := Command{ID: uuid.NewString(), Action: act, Pixel: w.screen.Map(act)}
	reply := make(chan Reply, 1)

	w.mu.Lock()
	w.pending[cmd.ID] = reply
	w.mu.Unlock()

	w.writeMu.Lock()
	err := w.conn.WriteJSON(cmd)
	w.writeMu.Unlock()
	if err != nil {
		w.forget(cmd.ID)
		done <- errors.Wrap(errors.KindExecution, err, "failed to send %s", act.Type)
		return done
	}

	go func() {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()

		select {
		case r := <-reply:
			if r.Status != "ok" {
				done <- errors.E(errors.KindExecution, "%s rejected: %s", act.Type, r.Error)
				return
			}
			done <- nil
		case <-w.closed:
			w.forget(cmd.ID)
			done <- errors.Wrap(errors.KindExecution, w.err(), "executor connection lost")
		case <-timer.C:
			w.forget(cmd.ID)
			done <- errors.E(errors.KindExecution, "%s not acknowledged within %s", act.Type, w.timeout)
		case <-ctx.Done():
			w.forget(cmd.ID)
			done <- errors.Wrap(errors.KindExecution, ctx.Err(), "%s interrupted", act.Type)
		}
	}()
	return done
}

func (w *WebSocket) forget(id string) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

func (w *WebSocket) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readErr
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	w.writeMu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}
