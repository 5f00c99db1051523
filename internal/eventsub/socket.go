package eventsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// FrameType classifies a received WebSocket frame.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
	FrameClose
)

// Frame is one inbound WebSocket frame. Final marks the end of a logical
// message; intermediate fragments carry Final == false.
type Frame struct {
	Type  FrameType
	Data  []byte
	Final bool
}

// Socket is the minimal connection surface the session consumes. The session
// loop is the sole reader of the current socket.
type Socket interface {
	// ReadFrame blocks for the next frame. A peer close is reported as a
	// FrameClose frame, not an error. Cancelling ctx aborts the read.
	ReadFrame(ctx context.Context) (Frame, error)
	// WriteClose sends a close frame with the given status code and an
	// empty reason.
	WriteClose(code int) error
	// Close tears the connection down without a closing handshake.
	Close() error
}

// Dialer opens a Socket for a WebSocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// NewDialer returns the production Dialer backed by gorilla/websocket.
func NewDialer() Dialer {
	return gorillaDialer{}
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &gorillaSocket{conn: conn}, nil
}

// gorillaSocket adapts *websocket.Conn. gorilla reassembles continuation
// frames internally, so every frame it yields is final.
type gorillaSocket struct {
	conn *websocket.Conn
}

func (s *gorillaSocket) ReadFrame(ctx context.Context) (Frame, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Unblock the pending read.
			_ = s.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	kind, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return Frame{Type: FrameClose, Final: true}, nil
		}
		return Frame{}, err
	}

	switch kind {
	case websocket.TextMessage:
		return Frame{Type: FrameText, Data: data, Final: true}, nil
	case websocket.BinaryMessage:
		return Frame{Type: FrameBinary, Data: data, Final: true}, nil
	}
	return Frame{}, fmt.Errorf("unexpected websocket frame type %d", kind)
}

func (s *gorillaSocket) WriteClose(code int) error {
	return s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}

func (s *gorillaSocket) Close() error {
	return s.conn.Close()
}
