// Package auth obtains Twitch user tokens through the OAuth device-code
// flow and persists them in the system keyring.
package auth

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/99designs/keyring"
)

const (
	serviceName = "twitch-sentry"
	tokenKey    = "oauth_token"
)

var (
	ErrNoToken      = errors.New("no token stored")
	ErrTokenExpired = errors.New("token expired")
)

// Token holds the OAuth tokens and the identity they belong to.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
}

// IsExpired reports whether the token has expired.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid reports whether the token exists and has not expired.
func (t *Token) IsValid() bool {
	return t.AccessToken != "" && !t.IsExpired()
}

// Store persists tokens in the system keyring.
type Store struct {
	ring keyring.Keyring
}

// NewStore opens the keyring.
func NewStore() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.SecretServiceBackend, // Linux
			keyring.KeychainBackend,      // macOS
			keyring.WinCredBackend,       // Windows
			keyring.PassBackend,          // Linux fallback
			keyring.FileBackend,          // Universal fallback
		},
	})
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// SaveToken writes the token to the keyring.
func (s *Store) SaveToken(token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        data,
		Label:       "Twitch Sentry OAuth token",
		Description: "OAuth tokens for Twitch Sentry",
	})
}

// LoadToken reads the stored token, or ErrNoToken when none exists.
func (s *Store) LoadToken() (*Token, error) {
	item, err := s.ring.Get(tokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(item.Data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteToken removes the stored token. A missing token is not an error.
func (s *Store) DeleteToken() error {
	err := s.ring.Remove(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
