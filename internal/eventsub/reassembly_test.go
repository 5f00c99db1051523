package eventsub

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReadTextMessageSingleFrame(t *testing.T) {
	sock := newFakeSocket()
	sock.sendText(t, `{"hello":"world"}`)

	text, ok, err := readTextMessage(context.Background(), sock)
	if err != nil {
		t.Fatalf("readTextMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected ok")
	}
	if text != `{"hello":"world"}` {
		t.Errorf("got %q", text)
	}
}

func TestReadTextMessageReassemblesFragments(t *testing.T) {
	sock := newFakeSocket()
	sock.frames <- Frame{Type: FrameText, Data: []byte(`{"hel`)}
	sock.frames <- Frame{Type: FrameText, Data: []byte(`lo":`)}
	sock.frames <- Frame{Type: FrameText, Data: []byte(`"world"}`), Final: true}

	text, ok, err := readTextMessage(context.Background(), sock)
	if err != nil || !ok {
		t.Fatalf("readTextMessage: ok=%v err=%v", ok, err)
	}
	if text != `{"hello":"world"}` {
		t.Errorf("got %q", text)
	}
}

func TestReadTextMessageStripsBOM(t *testing.T) {
	sock := newFakeSocket()
	sock.frames <- Frame{Type: FrameText, Data: []byte("\xef\xbb\xbf{}"), Final: true}

	text, ok, err := readTextMessage(context.Background(), sock)
	if err != nil || !ok {
		t.Fatalf("readTextMessage: ok=%v err=%v", ok, err)
	}
	if text != "{}" {
		t.Errorf("BOM not stripped: %q", text)
	}
}

func TestReadTextMessageAnswersPeerClose(t *testing.T) {
	sock := newFakeSocket()
	sock.sendClose(t)

	_, ok, err := readTextMessage(context.Background(), sock)
	if err != nil {
		t.Fatalf("readTextMessage: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on peer close")
	}
	if !sock.wroteClose(closeNormalClosure) {
		t.Error("no normal-closure response sent")
	}
}

func TestReadTextMessageRejectsBinaryFrame(t *testing.T) {
	sock := newFakeSocket()
	sock.frames <- Frame{Type: FrameBinary, Data: []byte{1, 2, 3}, Final: true}

	_, _, err := readTextMessage(context.Background(), sock)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestReadTextMessageRejectsInvalidUTF8(t *testing.T) {
	sock := newFakeSocket()
	sock.frames <- Frame{Type: FrameText, Data: []byte{0xff, 0xfe}, Final: true}

	_, _, err := readTextMessage(context.Background(), sock)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestReadTextMessageCancellation(t *testing.T) {
	sock := newFakeSocket()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := readTextMessage(ctx, sock)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not abort on cancellation")
	}
}
