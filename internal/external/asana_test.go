package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"tasknotifier/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAsana(t *testing.T, serverURL string, retries int) *AsanaClient {
	t.Helper()
	return NewAsanaClient(newTestClient(t, fastPolicy(retries)), AsanaClientConfig{
		APIKey:  types.SecretString("key-123"),
		BaseURL: serverURL + "/",
		Logger:  testLogger(),
	})
}

func TestAsanaCreateTask_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"gid":"1201","name":"[TaskNotifier] boom","permalink_url":"https://app.asana.com/0/1/1201"}}`))
	}))
	defer server.Close()

	task, err := newTestAsana(t, server.URL, 0).CreateTask(context.Background(), types.TaskRequest{
		Workspace: "ws-1",
		Name:      "[TaskNotifier] boom",
		Notes:     "details",
		Assignee:  "jane@corp.io",
		Tags:      []string{"t1"},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if task.GID != "1201" || task.PermalinkURL == "" {
		t.Errorf("unexpected task: %+v", task)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/tasks" {
		t.Errorf("expected /tasks, got %q", gotPath)
	}
	data := gotBody["data"]
	if data["workspace"] != "ws-1" || data["name"] != "[TaskNotifier] boom" || data["assignee"] != "jane@corp.io" {
		t.Errorf("unexpected payload: %v", data)
	}
	if _, ok := data["due_on"]; ok {
		t.Error("expected empty fields to be omitted")
	}
}

func TestAsanaCreateTask_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"workspace: Not a recognized ID"}]}`))
	}))
	defer server.Close()

	_, err := newTestAsana(t, server.URL, 2).CreateTask(context.Background(), types.TaskRequest{Workspace: "nope", Name: "x"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamTrackerRejects {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamTrackerRejects, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "Not a recognized ID") {
		t.Errorf("expected tracker message in error, got %q", appErr.Message)
	}
	if appErr.Details["status"] != http.StatusBadRequest {
		t.Errorf("expected status detail, got %v", appErr.Details)
	}
}

func TestAsanaCreateTask_MissingGID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	_, err := newTestAsana(t, server.URL, 0).CreateTask(context.Background(), types.TaskRequest{Name: "x"})
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamTrackerRejects {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamTrackerRejects, code)
	}
}

func TestAsanaCreateTask_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestAsana(t, server.URL, 1).CreateTask(context.Background(), types.TaskRequest{Name: "x"})
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, code)
	}
}

func TestAsanaAttachFile_StreamsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "part_abc.zip.001")
	content := strings.Repeat("zipbytes", 1000)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	var gotName, gotType, gotContent, gotPath string
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotPath = r.URL.Path
		gotLength = r.ContentLength
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotType, gotContent = hdr.Filename, hdr.Header.Get("Content-Type"), string(b)
		w.Write([]byte(`{"data":{"gid":"att-1"}}`))
	}))
	defer server.Close()

	err := newTestAsana(t, server.URL, 1).AttachFile(context.Background(), "1201", path, types.MIMEZip)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotPath != "/tasks/1201/attachments" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotName != "part_abc.zip.001" || gotType != types.MIMEZip {
		t.Errorf("unexpected part header: %q %q", gotName, gotType)
	}
	if gotContent != content {
		t.Errorf("content mismatch: got %d bytes", len(gotContent))
	}
	if gotLength <= int64(len(content)) {
		t.Errorf("expected a declared content length covering the frame, got %d", gotLength)
	}
}

func TestAsanaAttachFile_Errors(t *testing.T) {
	client := newTestAsana(t, "http://127.0.0.1:1", 0)

	if err := client.AttachFile(context.Background(), "", "x", types.MIMEZip); err == nil {
		t.Error("expected error for empty task id")
	}
	err := client.AttachFile(context.Background(), "1", filepath.Join(t.TempDir(), "missing"), types.MIMEZip)
	if code := types.CodeOf(err); code != types.ErrCodeArchiveWrite {
		t.Errorf("expected %s, got %s", types.ErrCodeArchiveWrite, code)
	}
}

func TestMultipartFrame_EscapesFilename(t *testing.T) {
	prefix, suffix, ct, err := multipartFrame(`we"ird.zip`, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prefix), `filename="we\"ird.zip"`) {
		t.Errorf("filename not escaped: %s", prefix)
	}
	if !strings.Contains(string(prefix), "application/octet-stream") {
		t.Errorf("expected default content type: %s", prefix)
	}
	if !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasSuffix(string(suffix), "--\r\n") {
		t.Errorf("unexpected closing boundary %q", suffix)
	}
}
