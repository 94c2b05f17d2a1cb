// Package config resolves the effective capture configuration from a YAML
// file, TSPROBE_ environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"tsprobe/internal/decoder"
	"tsprobe/internal/logging"
	sinkkafka "tsprobe/sink/kafka"
	srckafka "tsprobe/source/kafka"
)

const SupportedSchema = "v1"

// EnvPrefix selects environment overrides. Nesting uses "__", so
// TSPROBE_CAPTURE__BUFFER_SIZE sets capture.buffer_size.
const EnvPrefix = "TSPROBE_"

const (
	// FileChunk is one transport packet.
	FileChunk = 188
	// NetworkChunk is the usual payload of one TS-over-IP datagram.
	NetworkChunk = 7 * 188

	DefaultPeriod      = time.Second
	DefaultJoinTimeout = 2 * time.Second
)

type Config struct {
	SchemaVersion string        `koanf:"schema_version" yaml:"schema_version"`
	Source        SourceConfig  `koanf:"source" yaml:"source"`
	Output        OutputConfig  `koanf:"output" yaml:"output"`
	Capture       CaptureConfig `koanf:"capture" yaml:"capture"`
	Summary       SummaryConfig `koanf:"summary" yaml:"summary"`
	Log           LogConfig     `koanf:"log" yaml:"log"`
	Server        ServerConfig  `koanf:"server" yaml:"server"`
}

type SourceConfig struct {
	Kind        string          `koanf:"kind" yaml:"kind"` // file|udp|tcp|kafka
	Path        string          `koanf:"path" yaml:"path,omitempty"`
	Address     string          `koanf:"address" yaml:"address,omitempty"`
	ReadTimeout time.Duration   `koanf:"read_timeout" yaml:"read_timeout,omitempty"`
	ReadBuffer  int             `koanf:"read_buffer" yaml:"read_buffer,omitempty"`
	Kafka       srckafka.Config `koanf:"kafka" yaml:"kafka,omitempty"`
}

type OutputConfig struct {
	Kind  string           `koanf:"kind" yaml:"kind,omitempty"` // none when empty, else file|stdout|kafka
	Path  string           `koanf:"path" yaml:"path,omitempty"`
	Kafka sinkkafka.Config `koanf:"kafka" yaml:"kafka,omitempty"`
}

type CaptureConfig struct {
	// BufferSize is the read chunk; 0 picks FileChunk or NetworkChunk.
	BufferSize int `koanf:"buffer_size" yaml:"buffer_size"`
	// MemoryLimit caps bytes held by buffers; 0 is unlimited.
	MemoryLimit int64 `koanf:"memory_limit" yaml:"memory_limit"`
	// RetryBackoff sleeps between transient read retries; 0 busy-polls.
	RetryBackoff time.Duration `koanf:"retry_backoff" yaml:"retry_backoff"`
	// JoinTimeout bounds shutdown while the source is blocked in a read.
	JoinTimeout time.Duration `koanf:"join_timeout" yaml:"join_timeout"`
}

type SummaryConfig struct {
	Enabled bool          `koanf:"enabled" yaml:"enabled"`
	Mode    string        `koanf:"mode" yaml:"mode"`
	Format  string        `koanf:"format" yaml:"format"`
	File    string        `koanf:"file" yaml:"file,omitempty"` // stdout when empty
	Period  time.Duration `koanf:"period" yaml:"period"`
	History int           `koanf:"history" yaml:"history,omitempty"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
	JSON  bool   `koanf:"json" yaml:"json"`
}

type ServerConfig struct {
	GRPCPort    int `koanf:"grpc_port" yaml:"grpc_port"`       // 0 disables
	MetricsPort int `koanf:"metrics_port" yaml:"metrics_port"` // 0 disables
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges the YAML file at path (optional, may be missing) with env vars
// and flags, fills defaults and validates the result.
func Load(path string, f Flags) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config: schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	envKey := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ApplyFlags(f); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Capture.BufferSize == 0 {
		c.Capture.BufferSize = FileChunk
		if c.Source.Kind != "file" {
			c.Capture.BufferSize = NetworkChunk
		}
	}
	if c.Capture.JoinTimeout == 0 {
		c.Capture.JoinTimeout = DefaultJoinTimeout
	}
	if c.Summary.Mode == "" {
		c.Summary.Mode = decoder.Bandwidth.String()
	}
	if c.Summary.Format == "" {
		c.Summary.Format = string(decoder.FormatText)
	}
	if c.Summary.Period == 0 {
		c.Summary.Period = DefaultPeriod
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Output.Kind == "" && c.Output.Path != "" {
		c.Output.Kind = "file"
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "":
		errs = append(errs, errors.New("no source given (use --file or --ipaddress)"))
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for kind file"))
		}
	case "udp", "tcp":
		if c.Source.Address == "" {
			errs = append(errs, fmt.Errorf("source.address is required for kind %s", c.Source.Kind))
		}
	case "kafka":
	default:
		errs = append(errs, fmt.Errorf("source.kind %q unknown (want file|udp|tcp|kafka)", c.Source.Kind))
	}

	switch c.Output.Kind {
	case "", "stdout", "kafka":
	case "file":
		if c.Output.Path == "" {
			errs = append(errs, errors.New("output.path is required for kind file"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.kind %q unknown (want file|stdout|kafka)", c.Output.Kind))
	}
	if c.Output.Kind == "stdout" && c.Summary.Enabled && c.Summary.File == "" {
		errs = append(errs, errors.New("summary.file is required when output goes to stdout"))
	}

	if c.Capture.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_size must be positive, got %d", c.Capture.BufferSize))
	}
	if c.Capture.MemoryLimit < 0 || c.Capture.RetryBackoff < 0 || c.Capture.JoinTimeout < 0 {
		errs = append(errs, errors.New("capture durations and memory_limit must not be negative"))
	}
	if _, err := decoder.ParseMode(c.Summary.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := decoder.ParseFormat(c.Summary.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Summary.Period <= 0 {
		errs = append(errs, fmt.Errorf("summary.period must be positive, got %s", c.Summary.Period))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logging converts the log section for logging.Configure.
func (c Config) Logging() logging.Options {
	return logging.Options{Level: c.Log.Level, JSON: c.Log.JSON}
}

// YAML renders the effective configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.Source.Kafka.SASLPass != "" {
		c.Source.Kafka.SASLPass = "********"
	}
	return yamlv3.Marshal(c)
}
