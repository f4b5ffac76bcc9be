package core

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsDefaultRoute(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"", true},
		{"none", true},
		{"2001:db8::1", false},
		{"127.0.0.1", false},
	}
	for _, tt := range tests {
		if got := IsDefaultRoute(tt.addr); got != tt.want {
			t.Errorf("IsDefaultRoute(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestGetHTTPClient_InvalidAddress(t *testing.T) {
	if _, err := GetHTTPClient("not-an-ip", time.Second); err == nil {
		t.Error("expected error for invalid source address")
	}
}

func TestGetHTTPClient_Timeout(t *testing.T) {
	client, err := GetHTTPClient(DefaultRoute, 42*time.Second)
	if err != nil {
		t.Fatalf("GetHTTPClient() error = %v", err)
	}
	if client.Timeout != 42*time.Second {
		t.Errorf("Timeout = %v, want 42s", client.Timeout)
	}
}

func TestGetStreamingHTTPClient(t *testing.T) {
	if _, err := GetStreamingHTTPClient("not-an-ip", time.Second); err == nil {
		t.Error("expected error for invalid source address")
	}

	client, err := GetStreamingHTTPClient(DefaultRoute, 7*time.Second)
	if err != nil {
		t.Fatalf("GetStreamingHTTPClient() error = %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want none", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T", client.Transport)
	}
	if transport.ResponseHeaderTimeout != 7*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 7s", transport.ResponseHeaderTimeout)
	}
}

func TestGetHTTPClient_BindsLoopback(t *testing.T) {
	var remote string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remote = r.RemoteAddr
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := GetHTTPClient("127.0.0.1", 5*time.Second)
	if err != nil {
		t.Fatalf("GetHTTPClient() error = %v", err)
	}
	defer client.CloseIdleConnections()

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if remote == "" || remote[:len("127.0.0.1")] != "127.0.0.1" {
		t.Errorf("server saw remote %q, want 127.0.0.1", remote)
	}
}
