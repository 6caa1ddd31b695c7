package types

import (
	"maps"
	"slices"
	"time"
)

// Top-level sections of the report namespace produced by ExceptionContext.Map.
const (
	SectionBasicInfo     = "basic_info"
	SectionExceptionData = "exception_data"
	SectionRequestData   = "request_data"
	SectionParameters    = "parameters"
	SectionSession       = "session"
	SectionCookies       = "cookies"
	SectionHeaders       = "headers"
	SectionData          = "data"
)

// RequestSnapshot is the subset of an HTTP request that is worth reporting.
type RequestSnapshot struct {
	URL        string `json:"url"`
	HTTPMethod string `json:"http_method"`
	RemoteIP   string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	Referrer   string `json:"referrer"`
}

// ExceptionContext is the snapshot gathered for one notification.
//
// It is built once by the collector and never mutated afterwards. Map
// returns a fresh mapping on every call so downstream stages (redaction,
// rendering) can transform it freely.
type ExceptionContext struct {
	ErrorClass string
	Message    string
	Backtrace  []string
	Cause      *string
	Fields     map[string]any

	Server    string
	ProcessID int
	Timestamp time.Time
	System    map[string]any

	Request    *RequestSnapshot
	Parameters map[string]any
	Session    map[string]any
	Cookies    map[string]any
	Headers    map[string]any

	Extra     map[string]any
	Overrides map[string]any
}

// Map flattens the context into the report namespace.
// Merge order: computed sections < data section < top-level overrides.
func (c *ExceptionContext) Map() map[string]any {
	out := map[string]any{}

	basic := map[string]any{
		"server":     c.Server,
		"process_id": c.ProcessID,
		"timestamp":  c.Timestamp.UTC().Format(time.RFC3339),
	}
	for k, v := range c.System {
		basic[k] = v
	}
	out[SectionBasicInfo] = basic

	exc := map[string]any{
		"error_class": c.ErrorClass,
		"message":     c.Message,
	}
	if len(c.Backtrace) > 0 {
		exc["backtrace"] = slices.Clone(c.Backtrace)
	}
	if c.Cause != nil {
		exc["cause"] = *c.Cause
	}
	for k, v := range c.Fields {
		if _, taken := exc[k]; !taken {
			exc[k] = v
		}
	}
	out[SectionExceptionData] = exc

	if c.Request != nil {
		out[SectionRequestData] = map[string]any{
			"url":         c.Request.URL,
			"http_method": c.Request.HTTPMethod,
			"ip_address":  c.Request.RemoteIP,
			"user_agent":  c.Request.UserAgent,
			"referrer":    c.Request.Referrer,
		}
	}

	setSection(out, SectionParameters, c.Parameters)
	setSection(out, SectionSession, c.Session)
	setSection(out, SectionCookies, c.Cookies)
	setSection(out, SectionHeaders, c.Headers)
	setSection(out, SectionData, c.Extra)

	for k, v := range c.Overrides {
		out[k] = v
	}

	return out
}

func setSection(out map[string]any, name string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	out[name] = maps.Clone(m)
}

// TaskRequest is the body of a create-task call against the tracker.
// Empty fields are omitted from the wire payload.
type TaskRequest struct {
	Workspace      string   `json:"workspace"`
	Name           string   `json:"name"`
	Notes          string   `json:"notes,omitempty"`
	HTMLNotes      string   `json:"html_notes,omitempty"`
	Assignee       string   `json:"assignee,omitempty"`
	AssigneeStatus string   `json:"assignee_status,omitempty"`
	DueAt          string   `json:"due_at,omitempty"`
	DueOn          string   `json:"due_on,omitempty"`
	Hearted        bool     `json:"hearted,omitempty"`
	Hearts         []string `json:"hearts,omitempty"`
	Projects       []string `json:"projects,omitempty"`
	Followers      []string `json:"followers,omitempty"`
	Memberships    []string `json:"memberships,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// Task is a created remote task.
type Task struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}
