package logging

import (
	"context"
	"log/slog"
)

// mirrorHandler writes each record to the primary handler and copies it to
// the JSON mirror file. Either side may be filtered by its own level.
type mirrorHandler struct {
	primary slog.Handler
	mirror  slog.Handler
}

// newMirrorHandler returns primary alone when there is no mirror.
func newMirrorHandler(primary, mirror slog.Handler) slog.Handler {
	switch {
	case primary == nil && mirror == nil:
		return NoopHandler{}
	case mirror == nil:
		return primary
	case primary == nil:
		return mirror
	}
	return &mirrorHandler{primary: primary, mirror: mirror}
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.mirror.Enabled(ctx, level)
}

func (h *mirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.primary.Enabled(ctx, record.Level) {
		err = h.primary.Handle(ctx, record.Clone())
	}
	if h.mirror.Enabled(ctx, record.Level) {
		if mirrorErr := h.mirror.Handle(ctx, record); mirrorErr != nil && err == nil {
			err = mirrorErr
		}
	}
	return err
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &mirrorHandler{primary: h.primary.WithAttrs(attrs), mirror: h.mirror.WithAttrs(attrs)}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{primary: h.primary.WithGroup(name), mirror: h.mirror.WithGroup(name)}
}
