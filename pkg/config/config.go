package config

import (
	"fmt"
	"strings"
	"time"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/types"
)

// Config is the root configuration of a node.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger" validate:"required"`
	Server  ServerConfig  `yaml:"http-server" validate:"required"`
	Unpin   UnpinConfig   `yaml:"unpin" validate:"required"`
	Version VersionConfig `yaml:"version"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

const (
	SinkLog       = "log"
	SinkZookeeper = "zookeeper"
)

type UnpinConfig struct {
	Sink        string        `yaml:"sink" validate:"oneof=log zookeeper"`
	ZKServers   []string      `yaml:"zk_servers"`
	ZKRoot      string        `yaml:"zk_root"`
	NodeID      string        `yaml:"node_id"`
	Timeout     time.Duration `yaml:"timeout"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// VersionConfig seeds the version pinned before the first authority update.
type VersionConfig struct {
	InitialID                types.VersionID `yaml:"initial_id"`
	InitialMaxCommittedEpoch types.Epoch     `yaml:"initial_max_committed_epoch"`
	Levels                   int             `yaml:"levels" validate:"min=1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		Unpin: UnpinConfig{
			Sink:        SinkLog,
			ZKRoot:      "/lsmversion",
			Timeout:     5 * time.Second,
			StopTimeout: 10 * time.Second,
		},
		Version: VersionConfig{
			InitialID: 1,
			Levels:    7,
		},
	}
}

// Validate checks the rules declared in the validate tags.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Logger.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logger.level %q: %w", c.Logger.Level, dberrors.ErrInvalidArgument)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("http-server.port %d: %w", c.Server.Port, dberrors.ErrInvalidArgument)
	}

	switch c.Unpin.Sink {
	case SinkLog:
	case SinkZookeeper:
		if len(c.Unpin.ZKServers) == 0 {
			return fmt.Errorf("unpin.zk_servers is empty: %w", dberrors.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unpin.sink %q: %w", c.Unpin.Sink, dberrors.ErrInvalidArgument)
	}

	if c.Version.Levels < 1 {
		return fmt.Errorf("version.levels %d: %w", c.Version.Levels, dberrors.ErrInvalidArgument)
	}

	return nil
}
