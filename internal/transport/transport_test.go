package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/novaos/novaos/internal/ssrf"
)

func reqFor(t *testing.T, srv *httptest.Server, path string, maxBytes int64) *ssrf.TransportRequirements {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return &ssrf.TransportRequirements{
		ConnectToIP:      u.Hostname(),
		Port:             port,
		UseTLS:           false,
		Hostname:         u.Hostname(),
		RequestPath:      path,
		MaxResponseBytes: maxBytes,
		ConnectTimeoutMs: 2000,
		ReadTimeoutMs:    2000,
	}
}

func TestFetchReturnsBodyAndEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ev, body, err := Fetch(context.Background(), reqFor(t, srv, "/quote", 1<<16))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if ev.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", ev.StatusCode)
	}
	if ev.ConnectedIP != reqFor(t, srv, "/quote", 1<<16).ConnectToIP {
		t.Fatalf("evidence connectedIP does not match pinned IP")
	}
}

func TestFetchTruncatesAtMaxResponseBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	ev, body, err := Fetch(context.Background(), reqFor(t, srv, "/", 4))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(body) != 4 {
		t.Fatalf("expected body truncated to 4 bytes, got %d", len(body))
	}
	if !ev.Truncated {
		t.Fatal("expected Truncated=true")
	}
}

func TestFetchReportsRedirectWithoutFollowing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://evil.example/steal")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	ev, body, err := Fetch(context.Background(), reqFor(t, srv, "/", 1<<16))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected no body on redirect hop, got %d bytes", len(body))
	}
	if ev.RedirectLocation != "http://evil.example/steal" {
		t.Fatalf("expected redirect location captured, got %q", ev.RedirectLocation)
	}
}
