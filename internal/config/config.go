// Package config loads sectionquery configuration from YAML with
// environment overrides and struct-tag validation
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nainya/sectionquery/internal/logger"
	"github.com/nainya/sectionquery/pkg/document"
	"github.com/nainya/sectionquery/pkg/query"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SECTIONQUERY_"

// ErrInvalid wraps validation failures
var ErrInvalid = errors.New("invalid config")

// Config is the full service configuration
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Watch  WatchConfig  `yaml:"watch"`
}

// EngineConfig sizes the locator, the caches and the batch pool
type EngineConfig struct {
	ChunkSize         int `yaml:"chunk_size" validate:"min=1"`
	ProbeSize         int `yaml:"probe_size" validate:"min=1"`
	MaxSectionEntries int `yaml:"max_section_entries" validate:"min=0"`
	MaxResultEntries  int `yaml:"max_result_entries" validate:"min=0"`
	BatchConcurrency  int `yaml:"batch_concurrency" validate:"min=1,max=256"`
}

// StoreConfig points the file store at a document root. An empty root
// resolves document ids as plain paths.
type StoreConfig struct {
	Root string `yaml:"root"`
}

// ServerConfig holds listener addresses
type ServerConfig struct {
	GrpcAddr          string `yaml:"grpc_addr" validate:"required,hostname_port"`
	ObservabilityAddr string `yaml:"observability_addr" validate:"omitempty,hostname_port"`
	Reflection        bool   `yaml:"reflection"`
}

// LogConfig mirrors logger.Config for the fields a file can set
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error disabled"`
	Pretty bool   `yaml:"pretty"`
}

// WatchConfig enables cache invalidation on file changes
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Engine: EngineConfig{
			ChunkSize:        document.DefaultChunkSize,
			ProbeSize:        document.DefaultProbeSize,
			BatchConcurrency: query.DefaultBatchConcurrency,
		},
		Server: ServerConfig{
			GrpcAddr:          ":50051",
			ObservabilityAddr: ":9090",
			Reflection:        true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from SECTIONQUERY_* variables. Malformed
// numbers are reported instead of ignored.
func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("ROOT", &cfg.Store.Root)
	str("GRPC_ADDR", &cfg.Server.GrpcAddr)
	str("OBSERVABILITY_ADDR", &cfg.Server.ObservabilityAddr)
	str("LOG_LEVEL", &cfg.Log.Level)
	flag("LOG_PRETTY", &cfg.Log.Pretty)
	flag("REFLECTION", &cfg.Server.Reflection)
	num("CHUNK_SIZE", &cfg.Engine.ChunkSize)
	num("PROBE_SIZE", &cfg.Engine.ProbeSize)
	num("MAX_SECTION_ENTRIES", &cfg.Engine.MaxSectionEntries)
	num("MAX_RESULT_ENTRIES", &cfg.Engine.MaxResultEntries)
	num("BATCH_CONCURRENCY", &cfg.Engine.BatchConcurrency)
	flag("WATCH", &cfg.Watch.Enabled)
	if v, ok := os.LookupEnv(EnvPrefix + "WATCH_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sWATCH_DEBOUNCE: %w", EnvPrefix, err))
		} else {
			cfg.Watch.Debounce = d
		}
	}

	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks every struct tag and reports all failures at once
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(msgs...))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// LoggerConfig returns the logger settings
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}

// EngineOptions translates the engine section into query options
func (c Config) EngineOptions() []query.Option {
	return []query.Option{
		query.WithChunkSize(c.Engine.ChunkSize),
		query.WithProbeSize(c.Engine.ProbeSize),
		query.WithMaxSectionEntries(c.Engine.MaxSectionEntries),
		query.WithMaxResultEntries(c.Engine.MaxResultEntries),
		query.WithBatchConcurrency(c.Engine.BatchConcurrency),
	}
}
