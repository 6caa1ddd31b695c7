package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string { return p.name }

func (p stubProbe) Check(context.Context) error { return p.err }

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		probes     []HealthProbe
		wantStatus int
		wantBody   string
	}{
		{"no probes", nil, http.StatusOK, "healthy"},
		{"all healthy", []HealthProbe{stubProbe{name: "a"}, stubProbe{name: "b"}}, http.StatusOK, "healthy"},
		{"one failing", []HealthProbe{stubProbe{name: "a"}, stubProbe{name: "b", err: errors.New("down")}}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			srv.HealthProbes = tt.probes

			rec := httptest.NewRecorder()
			srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("expected status %q, got %q", tt.wantBody, resp.Status)
			}
		})
	}
}

func TestHandleHealth_FailingProbeMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.HealthProbes = []HealthProbe{stubProbe{name: "archive_dir", err: errors.New("read-only file system")}}

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got := resp.Components["archive_dir"].Message; got != "read-only file system" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestArchiveDirProbe(t *testing.T) {
	dir := t.TempDir()
	if err := (ArchiveDirProbe{Dir: dir}).Check(context.Background()); err != nil {
		t.Fatalf("expected writable dir, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe left %d files behind", len(entries))
	}

	missing := filepath.Join(dir, "missing")
	if err := (ArchiveDirProbe{Dir: missing}).Check(context.Background()); err == nil {
		t.Error("expected an error for a missing dir")
	}
}
