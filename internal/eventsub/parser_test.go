package eventsub

import (
	"testing"
	"time"
)

func TestParseWelcome(t *testing.T) {
	p := NewMessageParser()
	text := `{
		"metadata": {
			"message_id": "m1",
			"message_type": "session_welcome",
			"message_timestamp": "2024-06-01T12:00:00Z"
		},
		"payload": {
			"session": {
				"id": "sess-1",
				"status": "connected",
				"keepalive_timeout_seconds": 30
			}
		}
	}`

	result, ok := p.Parse(text).(ParsedMessage)
	if !ok {
		t.Fatalf("expected ParsedMessage, got %#v", p.Parse(text))
	}
	msg := result.Message
	if msg.Metadata.MessageType != MessageTypeWelcome {
		t.Errorf("wrong type %s", msg.Metadata.MessageType)
	}
	if msg.Session == nil || msg.Session.ID != "sess-1" || msg.Session.KeepaliveTimeoutSeconds != 30 {
		t.Errorf("session payload not decoded: %+v", msg.Session)
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !msg.Metadata.MessageTimestamp.Equal(want) {
		t.Errorf("timestamp %v, want %v", msg.Metadata.MessageTimestamp, want)
	}
}

func TestParseReconnectCarriesURL(t *testing.T) {
	p := NewMessageParser()
	text := `{
		"metadata": {"message_id": "m1", "message_type": "session_reconnect", "message_timestamp": "2024-06-01T12:00:00Z"},
		"payload": {"session": {"id": "sess-1", "reconnect_url": "wss://b.example/ws"}}
	}`

	result, ok := p.Parse(text).(ParsedMessage)
	if !ok {
		t.Fatal("expected ParsedMessage")
	}
	if result.Message.Session.ReconnectURL != "wss://b.example/ws" {
		t.Errorf("reconnect_url %q", result.Message.Session.ReconnectURL)
	}
}

func TestParseNotification(t *testing.T) {
	p := NewMessageParser(string(SubStreamOnline))
	text := `{
		"metadata": {"message_id": "m1", "message_type": "notification", "message_timestamp": "2024-06-01T12:00:00Z", "subscription_type": "stream.online"},
		"payload": {
			"subscription": {"id": "sub-1", "type": "stream.online", "version": "1"},
			"event": {"broadcaster_user_id": "123", "broadcaster_user_login": "someone"}
		}
	}`

	result, ok := p.Parse(text).(ParsedMessage)
	if !ok {
		t.Fatal("expected ParsedMessage")
	}
	n := result.Message.Notification
	if n == nil || n.Subscription.Type != "stream.online" {
		t.Fatalf("notification payload not decoded: %+v", n)
	}
	if len(n.Event) == 0 {
		t.Error("event body dropped")
	}
}

func TestParseUnknownMessageType(t *testing.T) {
	p := NewMessageParser()
	text := `{
		"metadata": {"message_id": "m1", "message_type": "session_party", "message_timestamp": "2024-06-01T12:00:00Z"},
		"payload": {}
	}`

	result, ok := p.Parse(text).(UnknownMessageType)
	if !ok {
		t.Fatalf("expected UnknownMessageType, got %#v", p.Parse(text))
	}
	if result.Name != "session_party" {
		t.Errorf("name %q", result.Name)
	}
}

func TestParseUnknownSubscriptionType(t *testing.T) {
	p := NewMessageParser(string(SubStreamOnline))
	text := `{
		"metadata": {"message_id": "m1", "message_type": "notification", "message_timestamp": "2024-06-01T12:00:00Z"},
		"payload": {"subscription": {"id": "sub-1", "type": "channel.follow"}, "event": {}}
	}`

	result, ok := p.Parse(text).(UnknownSubscriptionType)
	if !ok {
		t.Fatalf("expected UnknownSubscriptionType, got %#v", p.Parse(text))
	}
	if result.Name != "channel.follow" {
		t.Errorf("name %q", result.Name)
	}
}

func TestParseEmptyRegistryAcceptsAnySubscriptionType(t *testing.T) {
	p := NewMessageParser()
	text := `{
		"metadata": {"message_id": "m1", "message_type": "notification", "message_timestamp": "2024-06-01T12:00:00Z"},
		"payload": {"subscription": {"id": "sub-1", "type": "channel.follow"}, "event": {}}
	}`

	if _, ok := p.Parse(text).(ParsedMessage); !ok {
		t.Fatalf("expected ParsedMessage, got %#v", p.Parse(text))
	}
}

func TestParseInvalidMessages(t *testing.T) {
	p := NewMessageParser()

	cases := map[string]string{
		"not json":           `{nope`,
		"missing message_id": `{"metadata": {"message_type": "session_keepalive", "message_timestamp": "2024-06-01T12:00:00Z"}, "payload": {}}`,
		"bad payload":        `{"metadata": {"message_id": "m1", "message_type": "session_welcome", "message_timestamp": "2024-06-01T12:00:00Z"}, "payload": {"session": "nope"}}`,
	}
	for name, text := range cases {
		if _, ok := p.Parse(text).(InvalidMessage); !ok {
			t.Errorf("%s: expected InvalidMessage, got %#v", name, p.Parse(text))
		}
	}
}
