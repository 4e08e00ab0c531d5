package unpin

import (
	"context"
	"log/slog"

	"lsmversion/pkg/types"
)

// Sink tells the version authority which versions this node holds.
type Sink interface {
	Pin(ctx context.Context, id types.VersionID) error
	Unpin(ctx context.Context, id types.VersionID) error
	Close() error
}

// LogSink only logs. Used when the node runs without a version authority.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Pin(_ context.Context, id types.VersionID) error {
	s.logger.Info("version pinned", "version_id", id)
	return nil
}

func (s *LogSink) Unpin(_ context.Context, id types.VersionID) error {
	s.logger.Info("version unpinned", "version_id", id)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
