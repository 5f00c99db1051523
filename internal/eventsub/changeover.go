package eventsub

import (
	"context"
)

// Changeover holds the prepared replacement for the current socket. It is
// produced only after the first message on the new socket has been
// classified as a session_welcome; the session loop performs the actual
// swap.
type Changeover struct {
	Socket  Socket
	Welcome Message
}

// performChangeover opens a socket to reconnectURL and reads its first
// message. Anything other than a welcome is a protocol violation. The new
// socket is handed back unswapped; on error any dialed socket is closed.
func performChangeover(ctx context.Context, dialer Dialer, parser Parser, reconnectURL string) (*Changeover, error) {
	sock, err := dialer.Dial(ctx, reconnectURL)
	if err != nil {
		return nil, err
	}

	text, ok, err := readTextMessage(ctx, sock)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	if !ok {
		_ = sock.Close()
		return nil, protocolErrorf("reconnect socket closed before welcome")
	}

	switch result := parser.Parse(text).(type) {
	case ParsedMessage:
		if result.Message.Metadata.MessageType != MessageTypeWelcome {
			_ = sock.Close()
			return nil, protocolErrorf("expected welcome on reconnect socket, got %s", result.Message.Metadata.MessageType)
		}
		return &Changeover{Socket: sock, Welcome: result.Message}, nil
	default:
		_ = sock.Close()
		return nil, protocolErrorf("reconnect socket welcome did not parse: %#v", result)
	}
}
