package eventsub

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"
)

// closeNormalClosure is the RFC 6455 normal-closure status code.
const closeNormalClosure = 1000

// readTextMessage collects frames from sock until one carries the
// end-of-message marker and returns the assembled UTF-8 text. ok is false
// when the peer closed the connection; in that case a normal-closure
// response has already been written. Frames of any non-text kind fail with
// a ProtocolError.
func readTextMessage(ctx context.Context, sock Socket) (text string, ok bool, err error) {
	var buf bytes.Buffer
	for {
		frame, err := sock.ReadFrame(ctx)
		if err != nil {
			return "", false, err
		}

		switch frame.Type {
		case FrameClose:
			_ = sock.WriteClose(closeNormalClosure)
			return "", false, nil
		case FrameText:
			buf.Write(frame.Data)
		default:
			return "", false, protocolErrorf("received non-text frame of type %d", frame.Type)
		}

		if frame.Final {
			break
		}
	}

	if !utf8.Valid(buf.Bytes()) {
		return "", false, protocolErrorf("message is not valid UTF-8")
	}
	return strings.TrimPrefix(buf.String(), "\ufeff"), true, nil
}
