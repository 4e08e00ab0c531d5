package localversion

import (
	"log/slog"

	"lsmversion/pkg/metrics"
)

type Option func(*LocalVersion)

func WithLogger(logger *slog.Logger) Option {
	return func(lv *LocalVersion) {
		if logger != nil {
			lv.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(lv *LocalVersion) {
		lv.metrics = m
	}
}
