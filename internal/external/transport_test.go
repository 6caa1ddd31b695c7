package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPClient_Timeouts(t *testing.T) {
	client := NewHTTPClient(TransportConfig{
		ConnectTimeout:    2 * time.Second,
		InactivityTimeout: 90 * time.Second,
		MaxRedirects:      5,
	})

	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if tr.TLSHandshakeTimeout != 2*time.Second {
		t.Errorf("expected TLS handshake timeout 2s, got %v", tr.TLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != 90*time.Second {
		t.Errorf("expected response header timeout 90s, got %v", tr.ResponseHeaderTimeout)
	}
	if client.Timeout != 0 {
		t.Errorf("expected no overall timeout, got %v", client.Timeout)
	}
}

func TestNewHTTPClient_RedirectLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	client := NewHTTPClient(TransportConfig{ConnectTimeout: time.Second, InactivityTimeout: time.Second, MaxRedirects: 2})
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/", nil)
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestCheckRedirect(t *testing.T) {
	check := CheckRedirect(1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if err := check(req, make([]*http.Request, 1)); err != nil {
		t.Errorf("expected the first redirect to be followed, got %v", err)
	}
	if err := check(req, make([]*http.Request, 2)); !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("expected ErrTooManyRedirects, got %v", err)
	}
}
