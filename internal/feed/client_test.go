package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Token"); got != "secret" {
			t.Errorf("X-Token = %q, want secret", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		_, _ = w.Write([]byte(`{"price": 42.5}`))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	resp := client.Get(context.Background(), server.URL, map[string]string{"X-Token": "secret"}, time.Second)
	if resp.Err != nil {
		t.Fatalf("Get() error = %v", resp.Err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	doc, err := resp.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := doc.(map[string]any)["price"]; got != 42.5 {
		t.Errorf("price = %v, want 42.5", got)
	}
}

func TestResponse_Decode(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		wantErr string
	}{
		{"server error", Response{StatusCode: 503, Body: []byte(`{}`)}, "unexpected status 503"},
		{"not json", Response{StatusCode: 200, Body: []byte(`<html>`)}, "decode body"},
		{"empty body", Response{StatusCode: 200}, "decode body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resp.Decode()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	resp := NewClient().Get(context.Background(), server.URL, nil, 50*time.Millisecond)
	if resp.Err == nil {
		t.Fatal("Get() expected timeout error, got nil")
	}
}

func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient()

	var reused int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reused++
			}
		},
	}

	const requests = 5
	for i := 0; i < requests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if resp := client.Get(ctx, server.URL, nil, 5*time.Second); resp.Err != nil {
			t.Fatalf("request %d failed: %v", i, resp.Err)
		}
	}

	if reused < requests-2 {
		t.Errorf("reused %d connections out of %d requests, want at least %d", reused, requests, requests-2)
	}
}

func TestClient_CloseNil(t *testing.T) {
	var client *Client
	client.Close()
}
