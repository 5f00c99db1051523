package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// subscriptionsURL is a package variable so tests can point the manager at
// a local server.
var subscriptionsURL = "https://api.twitch.tv/helix/eventsub/subscriptions"

// SubscriptionType names an EventSub subscription this daemon understands.
type SubscriptionType string

const (
	SubStreamOnline  SubscriptionType = "stream.online"
	SubStreamOffline SubscriptionType = "stream.offline"
	SubChannelUpdate SubscriptionType = "channel.update"
)

// WatchedSubscriptionTypes lists every subscription type the daemon
// registers per watched channel.
var WatchedSubscriptionTypes = []SubscriptionType{
	SubStreamOnline,
	SubStreamOffline,
	SubChannelUpdate,
}

// createSubscriptionRequest is the Helix request body.
type createSubscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport transportRequest  `json:"transport"`
}

type transportRequest struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

type createSubscriptionResponse struct {
	Data         []Subscription `json:"data"`
	Total        int            `json:"total"`
	TotalCost    int            `json:"total_cost"`
	MaxTotalCost int            `json:"max_total_cost"`
}

// SubscriptionManager registers EventSub interests for the current
// WebSocket session. Registrations die with the session on Twitch's side,
// so Sync must run again after every new welcome.
type SubscriptionManager struct {
	clientID    string
	accessToken string
	httpClient  *http.Client

	sessionID string
	active    map[string]string // type:broadcasterID -> subscription ID
}

// NewSubscriptionManager creates a manager using the given app credentials.
func NewSubscriptionManager(clientID, accessToken string) *SubscriptionManager {
	return &SubscriptionManager{
		clientID:    clientID,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		active:      make(map[string]string),
	}
}

// Sync binds the manager to sessionID and registers every watched
// subscription type for every broadcaster. A failed registration does not
// stop the sync; the first error is returned once every broadcaster has been
// tried.
func (m *SubscriptionManager) Sync(ctx context.Context, sessionID string, broadcasterIDs []string) error {
	m.sessionID = sessionID
	// A new session starts with no registrations regardless of what the
	// previous one had.
	m.active = make(map[string]string)

	var firstErr error
	for _, id := range broadcasterIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, subType := range WatchedSubscriptionTypes {
			if err := m.create(ctx, subType, id); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("subscribing %s for %s: %w", subType, id, err)
			}
		}
	}
	return firstErr
}

func (m *SubscriptionManager) create(ctx context.Context, subType SubscriptionType, broadcasterID string) error {
	if m.sessionID == "" {
		return fmt.Errorf("no session ID")
	}

	key := string(subType) + ":" + broadcasterID
	if _, exists := m.active[key]; exists {
		return nil
	}

	body, err := json.Marshal(createSubscriptionRequest{
		Type:      string(subType),
		Version:   "1",
		Condition: map[string]string{"broadcaster_user_id": broadcasterID},
		Transport: transportRequest{Method: "websocket", SessionID: m.sessionID},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subscriptionsURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Client-Id", m.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 409 means the subscription already exists on this session.
	if resp.StatusCode == http.StatusConflict {
		m.active[key] = ""
		return nil
	}
	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("subscription rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var created createSubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return err
	}
	if len(created.Data) > 0 {
		m.active[key] = created.Data[0].ID
	}
	return nil
}

// Delete removes one subscription by its Helix ID.
func (m *SubscriptionManager) Delete(ctx context.Context, subscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, subscriptionsURL+"?id="+subscriptionID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Client-Id", m.clientID)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete subscription failed: %s", resp.Status)
	}
	return nil
}

// Clear deletes every registration this manager created.
func (m *SubscriptionManager) Clear(ctx context.Context) {
	for key, id := range m.active {
		if id != "" {
			_ = m.Delete(ctx, id)
		}
		delete(m.active, key)
	}
}
