// Package twitch wraps the Helix REST API for the pieces this daemon
// needs: resolving watched logins and enriching notifications.
package twitch

import (
	"context"
	"fmt"
	"sync"

	"github.com/nicklaw5/helix/v2"
)

// Client wraps the Helix API client.
type Client struct {
	mu    sync.RWMutex
	helix *helix.Client
}

// NewClient creates a Helix client for the given application.
func NewClient(clientID string) (*Client, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID: clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating helix client: %w", err)
	}
	return &Client{helix: client}, nil
}

// SetAccessToken installs the user access token for subsequent requests.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.helix.SetUserAccessToken(token)
}

func (c *Client) api() *helix.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.helix
}

// ResolveLogins maps channel login names to users. Logins that do not
// exist are silently absent from the result.
func (c *Client) ResolveLogins(ctx context.Context, logins []string) ([]User, error) {
	if len(logins) == 0 {
		return nil, nil
	}

	var users []User
	// Helix caps GetUsers at 100 names per request.
	for start := 0; start < len(logins); start += 100 {
		end := start + 100
		if end > len(logins) {
			end = len(logins)
		}

		resp, err := c.api().GetUsers(&helix.UsersParams{Logins: logins[start:end]})
		if err != nil {
			return nil, err
		}
		if resp.ErrorStatus != 0 {
			return nil, fmt.Errorf("helix error %d: %s", resp.ErrorStatus, resp.ErrorMessage)
		}

		for _, u := range resp.Data.Users {
			users = append(users, User{
				ID:          u.ID,
				Login:       u.Login,
				DisplayName: u.DisplayName,
			})
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// LiveStreams returns the currently live broadcasts among the given user
// IDs. Offline channels simply do not appear.
func (c *Client) LiveStreams(ctx context.Context, userIDs []string) ([]Stream, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var streams []Stream
	for start := 0; start < len(userIDs); start += 100 {
		end := start + 100
		if end > len(userIDs) {
			end = len(userIDs)
		}

		resp, err := c.api().GetStreams(&helix.StreamsParams{
			UserIDs: userIDs[start:end],
			First:   100,
		})
		if err != nil {
			return nil, err
		}
		if resp.ErrorStatus != 0 {
			return nil, fmt.Errorf("helix error %d: %s", resp.ErrorStatus, resp.ErrorMessage)
		}

		for _, s := range resp.Data.Streams {
			streams = append(streams, Stream{
				ID:          s.ID,
				UserID:      s.UserID,
				UserLogin:   s.UserLogin,
				UserName:    s.UserName,
				GameID:      s.GameID,
				GameName:    s.GameName,
				Title:       s.Title,
				ViewerCount: s.ViewerCount,
				StartedAt:   s.StartedAt,
			})
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return streams, nil
}

// GetCategories resolves category IDs to names.
func (c *Client) GetCategories(ctx context.Context, ids []string) ([]Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := c.api().GetGames(&helix.GamesParams{IDs: ids})
	if err != nil {
		return nil, err
	}
	if resp.ErrorStatus != 0 {
		return nil, fmt.Errorf("helix error %d: %s", resp.ErrorStatus, resp.ErrorMessage)
	}

	categories := make([]Category, 0, len(resp.Data.Games))
	for _, g := range resp.Data.Games {
		categories = append(categories, Category{
			ID:        g.ID,
			Name:      g.Name,
			BoxArtURL: g.BoxArtURL,
		})
	}
	return categories, nil
}
