// Package report renders a redacted exception namespace into a report and
// packs the report into archive parts small enough to upload.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"tasknotifier/internal/types"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	defaultReportTemplate = "templates/exception_details.html.tmpl"
	defaultNotesTemplate  = "templates/notes.txt.tmpl"
	notesFrames           = 5
)

// Report is one rendered report. Extension comes from the template name
// (exception_details.html.tmpl renders "html").
type Report struct {
	Body      []byte
	Extension string
}

// reportData is the namespace templates are executed against.
type reportData struct {
	Title       string
	ErrorClass  string
	Message     string
	Cause       string
	Backtrace   []string
	TopFrames   []string
	Request     map[string]any
	Fieldsets   []Fieldset
	Params      map[string]any
	GeneratedAt string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	Clock  types.Clock
	Logger types.Logger
}

// Renderer executes report templates. It holds no per-report state and is
// safe for concurrent use.
type Renderer struct {
	report *template.Template
	notes  *texttemplate.Template
	clock  types.Clock
	logger types.Logger
}

// NewRenderer parses the embedded templates.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}

	reportSrc, err := templateFS.ReadFile(defaultReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read %s: %w", defaultReportTemplate, err)
	}
	report, err := template.New(filepath.Base(defaultReportTemplate)).Funcs(htmlFuncs).Parse(string(reportSrc))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse %s: %w", defaultReportTemplate, err)
	}

	notesSrc, err := templateFS.ReadFile(defaultNotesTemplate)
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read %s: %w", defaultNotesTemplate, err)
	}
	notes, err := texttemplate.New(filepath.Base(defaultNotesTemplate)).Funcs(textFuncs).Parse(string(notesSrc))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse %s: %w", defaultNotesTemplate, err)
	}

	return &Renderer{report: report, notes: notes, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Render renders params with the template at templatePath. A blank path
// selects the embedded HTML report. A non-blank path that does not name a
// readable file is a configuration error; there is no silent fallback.
func (r *Renderer) Render(params map[string]any, templatePath string) (*Report, error) {
	if strings.TrimSpace(templatePath) == "" {
		return r.execute(r.report.Execute, "html", params)
	}
	return r.RenderFile(templatePath, params)
}

// RenderFile renders params with an explicit template file. Files whose
// first suffix is .html or .htm are executed with html/template.
func (r *Renderer) RenderFile(path string, params map[string]any) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil {
			err = fs.ErrInvalid
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigTemplateMissing,
			"report template does not exist", err, map[string]any{"path": path})
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigTemplateMissing,
			"report template is not readable", err, map[string]any{"path": path})
	}

	ext := Extension(path)
	name := filepath.Base(path)
	if ext == "html" || ext == "htm" {
		t, err := template.New(name).Funcs(htmlFuncs).Parse(string(src))
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeRenderTemplateParse,
				"failed to parse report template", err, map[string]any{"path": path})
		}
		return r.execute(t.Execute, ext, params)
	}

	t, err := texttemplate.New(name).Funcs(textFuncs).Parse(string(src))
	if err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeRenderTemplateParse,
			"failed to parse report template", err, map[string]any{"path": path})
	}
	return r.execute(t.Execute, ext, params)
}

// RenderNotes renders the plain-text task body.
func (r *Renderer) RenderNotes(params map[string]any) (string, error) {
	rep, err := r.execute(r.notes.Execute, "txt", params)
	if err != nil {
		return "", err
	}
	return string(rep.Body), nil
}

func (r *Renderer) execute(exec func(w io.Writer, data any) error, ext string, params map[string]any) (*Report, error) {
	var buf bytes.Buffer
	if err := exec(&buf, r.data(params)); err != nil {
		return nil, types.NewAppError(types.ErrCodeRenderExecute, "failed to render report", err)
	}
	return &Report{Body: buf.Bytes(), Extension: ext}, nil
}

func (r *Renderer) data(params map[string]any) reportData {
	exc, _ := asMap(params[types.SectionExceptionData])
	req, _ := asMap(params[types.SectionRequestData])

	d := reportData{
		ErrorClass:  stringValue(exc["error_class"]),
		Message:     stringValue(exc["message"]),
		Cause:       stringValue(exc["cause"]),
		Backtrace:   stringSlice(exc["backtrace"]),
		Request:     req,
		Fieldsets:   Fieldsets(params),
		Params:      params,
		GeneratedAt: r.clock.Now().UTC().Format(time.RFC3339),
	}
	d.TopFrames = d.Backtrace[:min(len(d.Backtrace), notesFrames)]
	d.Title = strings.TrimSpace(fmt.Sprintf("%s: %s", d.ErrorClass, d.Message))
	return d
}

// Extension returns the first suffix segment of a template file name:
// "details.html.tmpl" gives "html", "notes" and "notes.tmpl" give "txt".
func Extension(path string) string {
	base := filepath.Base(path)
	_, rest, ok := strings.Cut(base, ".")
	if !ok || rest == "" {
		return "txt"
	}
	ext, _, _ := strings.Cut(rest, ".")
	if ext = strings.ToLower(ext); ext == "tmpl" {
		return "txt"
	}
	return ext
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// stringSlice accepts both []string and the []any produced by a JSON
// round trip through the incident queue.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, stringValue(e))
		}
		return out
	}
	return []string{}
}
