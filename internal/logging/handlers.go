package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns the session attributes stamped on every record,
// such as the session id and the current estimate.
type ContextProvider func() []slog.Attr

// fanout delivers each record to every sink that accepts its level.
type fanout []slog.Handler

func newFanout(sinks ...slog.Handler) fanout {
	out := make(fanout, 0, len(sinks))
	for _, h := range sinks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers to every enabled sink even after one fails and joins the
// failures into the returned error.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// sessionHandler appends the provider's attributes to each record. A key
// the caller already logged explicitly wins over the provider's value.
type sessionHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func newSessionHandler(inner slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return inner
	}
	return &sessionHandler{inner: inner, provider: provider}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := h.provider()
	if len(extra) == 0 {
		return h.inner.Handle(ctx, r)
	}

	logged := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		logged[a.Key] = true
		return true
	})
	for _, a := range extra {
		if !logged[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &sessionHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
