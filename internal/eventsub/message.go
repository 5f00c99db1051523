package eventsub

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of an EventSub message. The values are
// case-sensitive and come from the metadata.message_type field.
type MessageType string

const (
	MessageTypeWelcome      MessageType = "session_welcome"
	MessageTypeKeepalive    MessageType = "session_keepalive"
	MessageTypeNotification MessageType = "notification"
	MessageTypeReconnect    MessageType = "session_reconnect"
	MessageTypeRevocation   MessageType = "revocation"
)

// WebSocket close codes Twitch uses on the EventSub endpoint.
const (
	CloseInternalError         = 4000
	CloseClientSentInbound     = 4001
	CloseClientFailedPingPong  = 4002
	CloseConnectionUnused      = 4003
	CloseReconnectGraceExpired = 4004
	CloseNetworkTimeout        = 4005
	CloseNetworkError          = 4006
	CloseInvalidReconnect      = 4007
)

// Metadata is the envelope header every EventSub message carries.
type Metadata struct {
	MessageID           string      `json:"message_id"`
	MessageType         MessageType `json:"message_type"`
	MessageTimestamp    time.Time   `json:"message_timestamp"`
	SubscriptionType    string      `json:"subscription_type,omitempty"`
	SubscriptionVersion string      `json:"subscription_version,omitempty"`
}

// Session describes the logical session inside welcome and reconnect
// payloads. ReconnectURL is populated only on session_reconnect.
type Session struct {
	ID                      string    `json:"id"`
	Status                  string    `json:"status"`
	ConnectedAt             time.Time `json:"connected_at"`
	KeepaliveTimeoutSeconds int       `json:"keepalive_timeout_seconds"`
	ReconnectURL            string    `json:"reconnect_url,omitempty"`
}

// Subscription identifies the registration a notification or revocation
// belongs to.
type Subscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
	CreatedAt time.Time         `json:"created_at"`
	Cost      int               `json:"cost"`
}

// Transport names the delivery mechanism of a subscription.
type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

// SessionPayload is the payload of session_welcome and session_reconnect.
type SessionPayload struct {
	Session Session `json:"session"`
}

// NotificationPayload is the payload of notification and revocation.
type NotificationPayload struct {
	Subscription Subscription    `json:"subscription"`
	Event        json.RawMessage `json:"event"`
}

// Message is one fully decoded EventSub message. At most one of Session and
// Notification is set, according to the metadata kind: Session for welcome
// and reconnect, Notification for notification and revocation, neither for
// keepalive.
type Message struct {
	Metadata     Metadata
	Session      *Session
	Notification *NotificationPayload
}
