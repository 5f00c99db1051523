package eventsub

import (
	"encoding/json"
	"fmt"
)

// ParseResult is the tagged outcome of decoding one text message. It is one
// of ParsedMessage, InvalidMessage, UnknownMessageType or
// UnknownSubscriptionType.
type ParseResult interface {
	parseResult()
}

// ParsedMessage carries a successfully decoded message.
type ParsedMessage struct {
	Message Message
}

// InvalidMessage reports a message that could not be decoded at all.
type InvalidMessage struct {
	Reason string
}

// UnknownMessageType reports a metadata.message_type this client does not
// recognize.
type UnknownMessageType struct {
	Name string
}

// UnknownSubscriptionType reports a notification whose subscription type is
// not registered with the parser.
type UnknownSubscriptionType struct {
	Name string
}

func (ParsedMessage) parseResult()           {}
func (InvalidMessage) parseResult()          {}
func (UnknownMessageType) parseResult()      {}
func (UnknownSubscriptionType) parseResult() {}

// Parser decodes one raw text message into a ParseResult.
type Parser interface {
	Parse(text string) ParseResult
}

// MessageParser decodes the EventSub envelope and payloads. Notifications
// whose subscription type has not been registered are classified as
// UnknownSubscriptionType; an empty registry accepts every type.
type MessageParser struct {
	subscriptionTypes map[string]struct{}
}

// NewMessageParser returns a parser that accepts the given notification
// subscription types. With no arguments all subscription types pass.
func NewMessageParser(subscriptionTypes ...string) *MessageParser {
	p := &MessageParser{}
	if len(subscriptionTypes) > 0 {
		p.subscriptionTypes = make(map[string]struct{}, len(subscriptionTypes))
		for _, t := range subscriptionTypes {
			p.subscriptionTypes[t] = struct{}{}
		}
	}
	return p
}

// Parse implements Parser.
func (p *MessageParser) Parse(text string) ParseResult {
	var envelope struct {
		Metadata Metadata        `json:"metadata"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return InvalidMessage{Reason: fmt.Sprintf("decoding envelope: %v", err)}
	}
	if envelope.Metadata.MessageID == "" {
		return InvalidMessage{Reason: "missing message_id"}
	}

	msg := Message{Metadata: envelope.Metadata}

	switch envelope.Metadata.MessageType {
	case MessageTypeWelcome, MessageTypeReconnect:
		var payload SessionPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return InvalidMessage{Reason: fmt.Sprintf("decoding %s payload: %v", envelope.Metadata.MessageType, err)}
		}
		msg.Session = &payload.Session

	case MessageTypeKeepalive:
		// Empty payload.

	case MessageTypeNotification, MessageTypeRevocation:
		var payload NotificationPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return InvalidMessage{Reason: fmt.Sprintf("decoding %s payload: %v", envelope.Metadata.MessageType, err)}
		}
		if envelope.Metadata.MessageType == MessageTypeNotification && !p.knowsSubscriptionType(payload.Subscription.Type) {
			return UnknownSubscriptionType{Name: payload.Subscription.Type}
		}
		msg.Notification = &payload

	default:
		return UnknownMessageType{Name: string(envelope.Metadata.MessageType)}
	}

	return ParsedMessage{Message: msg}
}

func (p *MessageParser) knowsSubscriptionType(name string) bool {
	if p.subscriptionTypes == nil {
		return true
	}
	_, ok := p.subscriptionTypes[name]
	return ok
}
