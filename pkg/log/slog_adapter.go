package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints protocol events through an slog.Logger, one line per
// event. Packets and state changes go out at the adapter level; drops and
// errors at Warn.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter returns an adapter logging at slog.LevelDebug.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of a that logs routine events at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	c := *a
	c.level = level
	return &c
}

// Log writes event if the logger is enabled for its level.
func (a *SlogAdapter) Log(event Event) {
	level := a.level
	if event.Drop != nil || event.Error != nil {
		level = max(level, slog.LevelWarn)
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	if event.Interface != "" {
		attrs = append(attrs, slog.String("iface", event.Interface))
	}
	attrs = append(attrs,
		slog.String("dir", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	)
	if event.Peer != 0 {
		attrs = append(attrs, slog.String("peer", event.Peer.String()))
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node", event.NodeID))
	}
	if s := event.Summary(); s != "" {
		attrs = append(attrs, slog.String("event", s))
	}
	if sc := event.StateChange; sc != nil && sc.Reason != "" {
		attrs = append(attrs, slog.String("reason", sc.Reason))
	}
	if e := event.Error; e != nil && e.Context != "" {
		attrs = append(attrs, slog.String("op", e.Context))
	}

	a.logger.LogAttrs(ctx, level, "protocol "+event.Label(), attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
