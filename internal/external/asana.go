package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tasknotifier/internal/redact"
	"tasknotifier/internal/types"
)

// asanaAPIBase is the default tracker base URL. Overridable in tests via
// AsanaClientConfig.BaseURL.
const asanaAPIBase = "https://app.asana.com/api/1.0"

// AsanaClientConfig holds the configuration for creating an AsanaClient.
type AsanaClientConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Logger  *slog.Logger
}

// asanaEnvelope wraps every request and response body.
type asanaEnvelope struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []asanaError    `json:"errors,omitempty"`
}

type asanaError struct {
	Message string `json:"message"`
	Help    string `json:"help,omitempty"`
}

// AsanaClient implements TaskTracker against the Asana REST API through
// BaseClient.
type AsanaClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewAsanaClient creates an AsanaClient on top of base.
func NewAsanaClient(base *BaseClient, cfg AsanaClientConfig) *AsanaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = asanaAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AsanaClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// CreateTask POSTs {"data": req} to /tasks.
func (c *AsanaClient) CreateTask(ctx context.Context, req types.TaskRequest) (*types.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize task", err)
	}
	body, err := json.Marshal(asanaEnvelope{Data: data})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize task", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create task request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	c.logger.InfoContext(ctx, "creating tracker task",
		"workspace", req.Workspace,
		"assignee", redact.MaskIdentity(req.Assignee),
		"projects", len(req.Projects),
	)

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "CreateTask")
	}

	var env asanaEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamTrackerRejects, "failed to decode task response", err)
	}
	var task types.Task
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &task); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamTrackerRejects, "failed to decode task response", err)
		}
	}
	if task.GID == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamTrackerRejects,
			"tracker returned no task id", nil, map[string]any{"errors": messages(env.Errors)})
	}

	c.logger.InfoContext(ctx, "tracker task created", "task_gid", task.GID)
	return &task, nil
}

// AttachFile uploads path as multipart field "file" to
// /tasks/{taskID}/attachments. The file is streamed from disk on every
// attempt; it is never held in memory.
func (c *AsanaClient) AttachFile(ctx context.Context, taskID, path, mime string) error {
	if taskID == "" {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "task id is required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return types.NewAppError(types.ErrCodeArchiveWrite, "attachment is not readable", err)
	}

	name := filepath.Base(path)
	prefix, suffix, contentType, err := multipartFrame(name, mime)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build multipart frame", err)
	}

	endpoint := fmt.Sprintf("%s/tasks/%s/attachments", c.baseURL, url.PathEscape(taskID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create attachment request", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(prefix), f, bytes.NewReader(suffix)), f}, nil
	}
	httpReq.ContentLength = int64(len(prefix)) + info.Size() + int64(len(suffix))
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	c.authorize(httpReq)

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, "AttachFile")
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.InfoContext(ctx, "attachment uploaded",
		"task_gid", taskID,
		"file", name,
		"bytes", info.Size(),
	)
	return nil
}

func (c *AsanaClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
}

// handleErrorResponse maps a 4xx tracker response (429 is handled by
// BaseClient) to an AppError carrying the tracker's own messages.
func (c *AsanaClient) handleErrorResponse(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env asanaEnvelope
	msgs := []string{}
	if json.Unmarshal(raw, &env) == nil {
		msgs = messages(env.Errors)
	}
	if len(msgs) == 0 && len(raw) > 0 {
		msgs = append(msgs, strings.TrimSpace(string(raw)))
	}

	c.logger.Warn("tracker rejected request",
		"operation", op,
		"status", resp.StatusCode,
		"errors", msgs,
	)

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamTrackerRejects,
		fmt.Sprintf("%s: tracker returned %d: %s", op, resp.StatusCode, strings.Join(msgs, "; ")),
		nil,
		map[string]any{"status": resp.StatusCode, "errors": msgs},
	)
}

func messages(errs []asanaError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			out = append(out, e.Message)
		}
	}
	return out
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartFrame returns the bytes that go before and after the file
// content of a single-part form upload.
func multipartFrame(filename, mime string) (prefix, suffix []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)
	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", err
	}
	prefix = bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}
	return prefix, bytes.Clone(buf.Bytes()), mw.FormDataContentType(), nil
}

var _ TaskTracker = (*AsanaClient)(nil)
