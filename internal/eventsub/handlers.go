package eventsub

import (
	"encoding/json"
	"time"
)

// StreamOnlineEvent is the event payload of stream.online.
type StreamOnlineEvent struct {
	ID                   string    `json:"id"`
	BroadcasterUserID    string    `json:"broadcaster_user_id"`
	BroadcasterUserLogin string    `json:"broadcaster_user_login"`
	BroadcasterUserName  string    `json:"broadcaster_user_name"`
	Type                 string    `json:"type"`
	StartedAt            time.Time `json:"started_at"`
}

// StreamOfflineEvent is the event payload of stream.offline.
type StreamOfflineEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// ChannelUpdateEvent is the event payload of channel.update.
type ChannelUpdateEvent struct {
	BroadcasterUserID           string   `json:"broadcaster_user_id"`
	BroadcasterUserLogin        string   `json:"broadcaster_user_login"`
	BroadcasterUserName         string   `json:"broadcaster_user_name"`
	Title                       string   `json:"title"`
	Language                    string   `json:"language"`
	CategoryID                  string   `json:"category_id"`
	CategoryName                string   `json:"category_name"`
	ContentClassificationLabels []string `json:"content_classification_labels"`
}

// TypedHandlers receives decoded event payloads by subscription type.
type TypedHandlers struct {
	OnStreamOnline  func(event StreamOnlineEvent)
	OnStreamOffline func(event StreamOfflineEvent)
	OnChannelUpdate func(event ChannelUpdateEvent)
	// OnDecodeError reports an event body that did not match its type.
	OnDecodeError func(subscriptionType string, err error)
}

// Dispatch returns a notification handler that decodes event bodies into
// typed payloads and forwards them. Suitable for WithNotificationHandler.
func Dispatch(handlers TypedHandlers) func(Message) {
	return func(msg Message) {
		if msg.Notification == nil {
			return
		}
		subType := msg.Notification.Subscription.Type
		event := msg.Notification.Event

		switch SubscriptionType(subType) {
		case SubStreamOnline:
			if handlers.OnStreamOnline != nil {
				var e StreamOnlineEvent
				if err := json.Unmarshal(event, &e); err != nil {
					handlers.decodeError(subType, err)
					return
				}
				handlers.OnStreamOnline(e)
			}
		case SubStreamOffline:
			if handlers.OnStreamOffline != nil {
				var e StreamOfflineEvent
				if err := json.Unmarshal(event, &e); err != nil {
					handlers.decodeError(subType, err)
					return
				}
				handlers.OnStreamOffline(e)
			}
		case SubChannelUpdate:
			if handlers.OnChannelUpdate != nil {
				var e ChannelUpdateEvent
				if err := json.Unmarshal(event, &e); err != nil {
					handlers.decodeError(subType, err)
					return
				}
				handlers.OnChannelUpdate(e)
			}
		}
	}
}

func (h TypedHandlers) decodeError(subType string, err error) {
	if h.OnDecodeError != nil {
		h.OnDecodeError(subType, err)
	}
}
