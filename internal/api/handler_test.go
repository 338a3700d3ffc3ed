package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/seren/internal/session"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "session not found")

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "session not found" {
		t.Errorf("Expected error message, got %v", got["error"])
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	h := &SessionHandler{}

	cases := []struct {
		err  error
		want int
	}{
		{session.ErrQuotaExceeded, http.StatusTooManyRequests},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrSessionCompleted, http.StatusConflict},
		{session.ErrInvalidSession, http.StatusBadRequest},
		{session.ErrUpstreamUnavailable, http.StatusBadGateway},
		{errors.New("something unexpected"), http.StatusInternalServerError},
		// Wrapped sentinels must still map.
		{fmt.Errorf("%w: connection refused", session.ErrUpstreamUnavailable), http.StatusBadGateway},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.writeServiceError(w, tc.err)
		if w.Result().StatusCode != tc.want {
			t.Errorf("error %v: expected status %d, got %d", tc.err, tc.want, w.Result().StatusCode)
		}
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("user-1") {
		t.Fatal("fourth request within window should be denied")
	}

	// A different key has its own allowance.
	if !rl.Allow("user-2") {
		t.Fatal("unrelated key must not be throttled")
	}

	time.Sleep(250 * time.Millisecond)
	if !rl.Allow("user-1") {
		t.Fatal("request after window expiry should be allowed")
	}
}
