package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// SessionSource reports where the tick loop is. *bot.Bot satisfies it.
type SessionSource interface {
	SessionID() string
	CurrentTick() int
}

// sessionRef is shared by a handler and every handler derived from it, so a
// session attached after loggers were handed out still reaches them.
type sessionRef struct {
	src atomic.Pointer[SessionSource]
}

func (r *sessionRef) load() SessionSource {
	if p := r.src.Load(); p != nil {
		return *p
	}
	return nil
}

// sessionHandler fans each record out to the sinks (console, file, graylog,
// otel) and stamps it with the session id and tick of the attached source.
type sessionHandler struct {
	sinks   []slog.Handler
	session *sessionRef
}

func newSessionHandler(session *sessionRef, sinks ...slog.Handler) *sessionHandler {
	valid := make([]slog.Handler, 0, len(sinks))
	for _, h := range sinks {
		if h != nil {
			valid = append(valid, h)
		}
	}
	return &sessionHandler{sinks: valid, session: session}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every enabled sink. A failing sink does not keep the
// record from the others; sink errors are joined.
func (h *sessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if src := h.session.load(); src != nil {
		if id := src.SessionID(); id != "" {
			r.AddAttrs(slog.String("session", id))
		}
		r.AddAttrs(slog.Int("tick", src.CurrentTick()))
	}

	var errs []error
	for _, s := range h.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *sessionHandler) derive(f func(slog.Handler) slog.Handler) *sessionHandler {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = f(s)
	}
	return &sessionHandler{sinks: sinks, session: h.session}
}
