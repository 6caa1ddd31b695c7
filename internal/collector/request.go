package collector

import (
	"context"
	"maps"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	dataKey
)

// WithSession attaches session values to ctx. Go has no framework-wide
// session object, so handlers or auth middleware publish what they have.
func WithSession(ctx context.Context, session map[string]any) context.Context {
	return context.WithValue(ctx, sessionKey, maps.Clone(session))
}

// WithData adds free-form report data to ctx. Repeated calls merge, later
// keys win.
func WithData(ctx context.Context, data map[string]any) context.Context {
	merged := maps.Clone(dataFromContext(ctx))
	if merged == nil {
		merged = make(map[string]any, len(data))
	}
	maps.Copy(merged, data)
	return context.WithValue(ctx, dataKey, merged)
}

func sessionFromContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(sessionKey).(map[string]any)
	return m
}

func dataFromContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(dataKey).(map[string]any)
	return m
}

// sensitiveHeaders never reach the report. Cookies are reported separately.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"Set-Cookie":          {},
	"X-Api-Key":           {},
	"X-Csrf-Token":        {},
}

func requestURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parameters merges route params, the query string, and an already-parsed
// form body. The body is never read here: a handler that did not parse it
// still owns it.
func parameters(r *http.Request) map[string]any {
	out := map[string]any{}
	if r.URL != nil {
		addValues(out, r.URL.Query())
	}
	if r.PostForm != nil {
		addValues(out, r.PostForm)
	}
	if r.MultipartForm != nil {
		addValues(out, r.MultipartForm.Value)
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k == "" || k == "*" || i >= len(rctx.URLParams.Values) {
				continue
			}
			out[k] = rctx.URLParams.Values[i]
		}
	}
	return out
}

func addValues(out map[string]any, vals map[string][]string) {
	for k, vs := range vals {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
}

func cookies(r *http.Request) map[string]any {
	out := map[string]any{}
	for _, c := range r.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func headers(r *http.Request) map[string]any {
	out := map[string]any{}
	for name, vs := range r.Header {
		if _, skip := sensitiveHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		out[name] = strings.Join(vs, ", ")
	}
	return out
}
