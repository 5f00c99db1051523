package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func swapTokenURL(t *testing.T, url string) {
	t.Helper()
	original := tokenURL
	tokenURL = url
	t.Cleanup(func() { tokenURL = original })
}

func TestWaitForTokenPollsUntilApproved(t *testing.T) {
	var pollCount int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&pollCount, 1)
		if count < 4 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"status":  400,
				"message": "authorization_pending",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "test_token",
			"refresh_token": "test_refresh",
			"expires_in":    14400,
			"token_type":    "bearer",
		})
	}))
	defer server.Close()
	swapTokenURL(t, server.URL)

	flow := NewDeviceFlow("test_client_id")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := flow.WaitForToken(ctx, &DeviceCodeResponse{
		DeviceCode: "test_device_code",
		ExpiresIn:  1800,
		Interval:   1,
	})
	if err != nil {
		t.Fatalf("WaitForToken failed: %v", err)
	}
	if token.AccessToken != "test_token" {
		t.Errorf("access token %q", token.AccessToken)
	}
	if n := atomic.LoadInt32(&pollCount); n < 4 {
		t.Errorf("expected at least 4 polls, got %d", n)
	}
}

func TestWaitForTokenHonorsSlowDown(t *testing.T) {
	var pollCount int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&pollCount, 1)
		if count == 1 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"status":  400,
				"message": "slow_down",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test_token",
			"expires_in":   14400,
			"token_type":   "bearer",
		})
	}))
	defer server.Close()
	swapTokenURL(t, server.URL)

	flow := NewDeviceFlow("test_client_id")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	token, err := flow.WaitForToken(ctx, &DeviceCodeResponse{
		DeviceCode: "test_device_code",
		ExpiresIn:  1800,
		Interval:   1,
	})
	if err != nil {
		t.Fatalf("WaitForToken failed: %v", err)
	}
	if token.AccessToken != "test_token" {
		t.Errorf("access token %q", token.AccessToken)
	}
	// After slow_down the interval grows from 1 s to 6 s, so the second
	// poll cannot land before ~7 s total.
	if elapsed := time.Since(start); elapsed < 6*time.Second {
		t.Errorf("second poll came too early after slow_down: %v", elapsed)
	}
}

func TestWaitForTokenDeniedStopsPolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  400,
			"message": "access_denied",
		})
	}))
	defer server.Close()
	swapTokenURL(t, server.URL)

	flow := NewDeviceFlow("test_client_id")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := flow.WaitForToken(ctx, &DeviceCodeResponse{
		DeviceCode: "test_device_code",
		ExpiresIn:  1800,
		Interval:   1,
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestWaitForTokenExpiredCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  400,
			"message": "authorization_pending",
		})
	}))
	defer server.Close()
	swapTokenURL(t, server.URL)

	flow := NewDeviceFlow("test_client_id")

	// The code expires before the first poll interval elapses, so the
	// deadline is what ends the wait.
	_, err := flow.WaitForToken(context.Background(), &DeviceCodeResponse{
		DeviceCode: "test_device_code",
		ExpiresIn:  1,
		Interval:   3,
	})
	if !errors.Is(err, ErrExpiredCode) {
		t.Fatalf("expected ErrExpiredCode, got %v", err)
	}
}

func TestTokenValidity(t *testing.T) {
	expired := &Token{AccessToken: "t", ExpiresAt: time.Now().Add(-time.Hour)}
	if expired.IsValid() {
		t.Error("expired token reported valid")
	}

	live := &Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}
	if !live.IsValid() {
		t.Error("live token reported invalid")
	}

	empty := &Token{ExpiresAt: time.Now().Add(time.Hour)}
	if empty.IsValid() {
		t.Error("empty token reported valid")
	}
}
