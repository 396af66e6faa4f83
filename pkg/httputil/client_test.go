package httputil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wonny/flof/backend/pkg/logger"
)

func TestNew(t *testing.T) {
	client := New(logger.NewNop())
	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.httpClient == nil {
		t.Error("Expected http.Client to be initialized")
	}

	if client.retryConfig.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", client.retryConfig.MaxRetries)
	}
}

func TestNewWithTimeout(t *testing.T) {
	timeout := 5 * time.Second
	client := NewWithTimeout(logger.NewNop(), timeout)

	if client.httpClient.Timeout != timeout {
		t.Errorf("Expected timeout=%v, got %v", timeout, client.httpClient.Timeout)
	}
}

func TestWithRetryAndDisable(t *testing.T) {
	client := New(logger.NewNop()).WithRetry(5, 2*time.Second)

	if client.retryConfig.MaxRetries != 5 {
		t.Errorf("Expected MaxRetries=5, got %d", client.retryConfig.MaxRetries)
	}
	if client.retryConfig.InitialDelay != 2*time.Second {
		t.Errorf("Expected InitialDelay=2s, got %v", client.retryConfig.InitialDelay)
	}

	client.DisableRetry()
	if client.retryConfig.Enabled {
		t.Error("Expected retry to be disabled")
	}
}

func TestGetBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<table></table>`))
	}))
	defer server.Close()

	body, err := New(logger.NewNop()).GetBody(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GET request failed: %v", err)
	}
	if string(body) != "<table></table>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGetBodyNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(logger.NewNop()).DisableRetry().GetBody(context.Background(), server.URL)
	if err == nil {
		t.Error("Expected error for 404 response")
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(logger.NewNop()).WithRetry(3, 10*time.Millisecond)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Request failed after retries: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(logger.NewNop()).WithRetry(5, time.Second).Get(ctx, server.URL)
	if err == nil {
		t.Error("Expected context error while waiting to retry")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{201, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			got := IsRetryableError(tt.statusCode)
			if got != tt.want {
				t.Errorf("IsRetryableError(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestDefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != defaultUserAgent {
			t.Errorf("Expected User-Agent %q, got %q", defaultUserAgent, got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Expected Accept header, got %q", got)
		}
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := New(logger.NewNop()).DisableRetry().WithHeader("Accept", "application/json")
	if _, err := client.GetBody(context.Background(), server.URL); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestGetBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer server.Close()

	client := New(logger.NewNop()).DisableRetry().WithMaxBodyBytes(32)
	if _, err := client.GetBody(context.Background(), server.URL); err == nil {
		t.Error("Expected error for oversized body")
	}

	client.WithMaxBodyBytes(64)
	if body, err := client.GetBody(context.Background(), server.URL); err != nil || len(body) != 64 {
		t.Errorf("Expected 64 byte body, got %d (%v)", len(body), err)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header string
		want   time.Duration
		ok     bool
	}{
		{"seconds", http.StatusTooManyRequests, "2", 2 * time.Second, true},
		{"capped", http.StatusTooManyRequests, "120", 10 * time.Second, true},
		{"missing", http.StatusTooManyRequests, "", 0, false},
		{"http date ignored", http.StatusTooManyRequests, "Wed, 21 Oct 2026 07:28:00 GMT", 0, false},
		{"not 429", http.StatusServiceUnavailable, "5", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			got, ok := retryAfter(resp, 10*time.Second)
			if ok != tt.ok || got != tt.want {
				t.Errorf("retryAfter() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
