package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nao1215/onionharvest/internal/secret"
)

// Mask replaces redacted values.
const Mask = "[REDACTED]"

// sensitiveKeys are attribute keys whose value is always masked.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"snippet":             true,
	"secret_value":        true,
}

// sensitiveKeywords mask an attribute when its key contains one of them.
// "key" alone is not on the list: "keys" counts findings.
var sensitiveKeywords = []string{"password", "passwd", "secret", "token", "credential", "session"}

// RedactingHandler wraps an slog.Handler and removes secrets from attributes
// before they reach it.
//
// Values are redacted in place where possible: a URL keeps its host and path
// but loses its password and sensitive query parameters, and free text keeps
// everything except the values the secret classifiers match. Harvested
// findings must be logged by kind and origin; a "snippet" attribute is
// always masked.
type RedactingHandler struct {
	handler slog.Handler
	scanner *secret.Scanner
}

// HandlerOption configures a RedactingHandler.
type HandlerOption func(*RedactingHandler)

// WithScanner sets the scanner used to find secrets in free text.
func WithScanner(s *secret.Scanner) HandlerOption {
	return func(h *RedactingHandler) {
		if s != nil {
			h.scanner = s
		}
	}
}

// NewRedactingHandler wraps handler. A nil handler wraps slog.Default's handler.
func NewRedactingHandler(handler slog.Handler, opts ...HandlerOption) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &RedactingHandler{handler: handler, scanner: secret.NewScanner()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled delegates to the wrapped handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle redacts the record's attributes and passes it on.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs redacts attrs once and adds them to the wrapped handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(redacted), scanner: h.scanner}
}

// WithGroup opens a group on the wrapped handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), scanner: h.scanner}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, Mask)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if r := h.redactString(s); r != s {
			return slog.String(a.Key, r)
		}
	case slog.KindAny:
		// fetch errors carry the request URL
		if err, ok := a.Value.Any().(error); ok && err != nil {
			s := err.Error()
			if r := h.redactString(s); r != s {
				return slog.String(a.Key, r)
			}
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if sensitiveKeys[key] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// redactString redacts URLs word by word, then masks classifier matches.
func (h *RedactingHandler) redactString(s string) string {
	if strings.Contains(s, "://") {
		fields := strings.Fields(s)
		for _, f := range fields {
			trimmed := strings.Trim(f, `"'()<>,:`)
			if r := redactURL(trimmed); r != trimmed {
				s = strings.Replace(s, trimmed, r, 1)
			}
		}
	}

	for _, m := range h.scanner.Scan(s) {
		if m.Value == "" || strings.Contains(m.Value, Mask) {
			continue
		}
		s = strings.ReplaceAll(s, m.Value, Mask)
	}
	return s
}

// redactURL removes the password and the values of sensitive query
// parameters from raw. Anything that is not an absolute URL is returned as is.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	changed := false
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), Mask)
		changed = true
	}
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isSensitiveKey(name) || strings.Contains(strings.ToLower(name), "key") {
				q.Set(name, Mask)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	if !changed {
		return raw
	}
	// url.URL.String escapes the mask brackets
	return strings.ReplaceAll(u.String(), url.QueryEscape(Mask), Mask)
}

// NewSecureLogger returns a text logger that redacts secrets. With verbose
// the level is Debug, otherwise Warn.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewRedactingHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON lines output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewRedactingHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
