package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	deviceCodeURL = "https://id.twitch.tv/oauth2/device"
	tokenURL      = "https://id.twitch.tv/oauth2/token"
	validateURL   = "https://id.twitch.tv/oauth2/validate"
)

// EventSub stream.online/offline and channel.update subscriptions need a
// user token but no additional scope.
const requiredScopes = ""

var (
	ErrAuthorizationPending = errors.New("authorization pending")
	ErrSlowDown             = errors.New("slow down")
	ErrAccessDenied         = errors.New("access denied by user")
	ErrExpiredCode          = errors.New("device code expired")
)

// DeviceCodeResponse is the response to the device code request.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse is the response to a successful token poll.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// ValidateResponse identifies the user behind an access token.
type ValidateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`
}

// DeviceFlow drives the OAuth device-code grant.
type DeviceFlow struct {
	clientID   string
	httpClient *http.Client
}

// NewDeviceFlow creates a device flow handler for the application.
func NewDeviceFlow(clientID string) *DeviceFlow {
	return &DeviceFlow{
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// RequestDeviceCode starts the flow and returns the code the user must
// enter.
func (d *DeviceFlow) RequestDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	form := url.Values{}
	form.Set("client_id", d.clientID)
	if requiredScopes != "" {
		form.Set("scopes", requiredScopes)
	}

	var dcr DeviceCodeResponse
	if err := d.postForm(ctx, deviceCodeURL, form, &dcr); err != nil {
		return nil, err
	}
	return &dcr, nil
}

// PollForToken asks once whether the user has approved the device code.
func (d *DeviceFlow) PollForToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", d.clientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		var errResp struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return nil, err
		}
		switch errResp.Message {
		case "authorization_pending":
			return nil, ErrAuthorizationPending
		case "slow_down":
			return nil, ErrSlowDown
		case "access_denied":
			return nil, ErrAccessDenied
		case "expired_token":
			return nil, ErrExpiredCode
		default:
			return nil, fmt.Errorf("token error: %s", errResp.Message)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed: %s", resp.Status)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// WaitForToken polls until the user approves, the code expires, or ctx is
// cancelled.
func (d *DeviceFlow) WaitForToken(ctx context.Context, dcr *DeviceCodeResponse) (*TokenResponse, error) {
	interval := time.Duration(dcr.Interval) * time.Second
	if interval == 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(dcr.ExpiresIn)*time.Second)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrExpiredCode
			}
			return nil, ctx.Err()
		case <-ticker.C:
			tr, err := d.PollForToken(ctx, dcr.DeviceCode)
			switch {
			case err == nil:
				return tr, nil
			case errors.Is(err, ErrAuthorizationPending):
				continue
			case errors.Is(err, ErrSlowDown):
				interval += 5 * time.Second
				ticker.Reset(interval)
				continue
			default:
				return nil, err
			}
		}
	}
}

// ValidateToken resolves the user behind an access token.
func (d *DeviceFlow) ValidateToken(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation failed: %s", resp.Status)
	}

	var vr ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, err
	}
	return &vr, nil
}

// Authenticate runs the full flow: request a code, hand it to the caller,
// wait for approval, and validate the resulting token.
func (d *DeviceFlow) Authenticate(ctx context.Context, onCode func(userCode, verificationURI string)) (*Token, error) {
	dcr, err := d.RequestDeviceCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}

	if onCode != nil {
		onCode(dcr.UserCode, dcr.VerificationURI)
	}

	tr, err := d.WaitForToken(ctx, dcr)
	if err != nil {
		return nil, fmt.Errorf("waiting for token: %w", err)
	}

	vr, err := d.ValidateToken(ctx, tr.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("validating token: %w", err)
	}

	return &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Scopes:       strings.Fields(tr.Scope),
		UserID:       vr.UserID,
		UserLogin:    vr.Login,
	}, nil
}

func (d *DeviceFlow) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
