package main

import (
	"log/slog"
	"os"
	"strings"

	"lsmversion/pkg/config"
	"lsmversion/pkg/types"
	"lsmversion/pkg/unpin"

	"github.com/google/uuid"
)

// initLogger sets up the global slog.Logger (JSON or text).
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.Logger.Level) {
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	return logger
}

// nodeID falls back to a random id so two unnamed nodes never share pins.
func nodeID(cfg *config.Config) types.NodeID {
	if cfg.Unpin.NodeID != "" {
		return types.NodeID(cfg.Unpin.NodeID)
	}
	return types.NodeID(uuid.NewString())
}

func initSink(cfg *config.Config, node types.NodeID, logger *slog.Logger) (unpin.Sink, error) {
	if cfg.Unpin.Sink != config.SinkZookeeper {
		return unpin.NewLogSink(logger), nil
	}
	return unpin.NewZKSink(cfg.Unpin.ZKServers, cfg.Unpin.ZKRoot, node, logger)
}
