package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources []SourceConfig `yaml:"sources" mapstructure:"sources"`
	Fetch   FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Buffer  BufferConfig   `yaml:"buffer" mapstructure:"buffer"`
	Export  ExportConfig   `yaml:"export" mapstructure:"export"`
	Store   StoreConfig    `yaml:"store" mapstructure:"store"`
	Server  ServerConfig   `yaml:"server" mapstructure:"server"`
	Log     LogConfig      `yaml:"log" mapstructure:"log"`
}

// SourceConfig describes one marker set and where its rows come from.
// Exactly one of SheetID, URL or Path is expected.
type SourceConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Label      string `yaml:"label" mapstructure:"label"`
	Kind       string `yaml:"kind" mapstructure:"kind"`
	Filterable *bool  `yaml:"filterable,omitempty" mapstructure:"filterable"`
	SheetID    string `yaml:"sheet_id,omitempty" mapstructure:"sheet_id"`
	URL        string `yaml:"url,omitempty" mapstructure:"url"`
	Path       string `yaml:"path,omitempty" mapstructure:"path"`
	SheetName  string `yaml:"sheet_name,omitempty" mapstructure:"sheet_name"`
	Encoding   string `yaml:"encoding,omitempty" mapstructure:"encoding"`
	LatColumn  string `yaml:"lat_column,omitempty" mapstructure:"lat_column"`
	LonColumn  string `yaml:"lon_column,omitempty" mapstructure:"lon_column"`
}

// IsFilterable reports whether the buffer filter should search this source.
// Student sources are filterable unless configured otherwise.
func (s SourceConfig) IsFilterable() bool {
	if s.Filterable != nil {
		return *s.Filterable
	}
	return s.Kind == "student"
}

// FetchConfig configures sheet downloads.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BufferConfig configures the buffer filter defaults.
type BufferConfig struct {
	DefaultRadiusMiles float64 `yaml:"default_radius_miles" mapstructure:"default_radius_miles"`
}

// ExportConfig configures where exports go.
type ExportConfig struct {
	Filename string   `yaml:"filename" mapstructure:"filename"`
	Sink     string   `yaml:"sink" mapstructure:"sink"`
	Dir      string   `yaml:"dir" mapstructure:"dir"`
	S3       S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SessionIdleMins int      `yaml:"session_idle_mins" mapstructure:"session_idle_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultSources are the dashboard's production sheets.
func DefaultSources() []map[string]any {
	return []map[string]any{
		{"name": "office", "label": "Offices", "kind": "office", "sheet_id": "108nlOCTbbCDhZxO53zF-B13VGaDXOdJbrjIgpygz1ys"},
		{"name": "stripe", "label": "Stripe Students", "kind": "student", "sheet_id": "176DPR5eamz3K4dN5xLy9CYYEscxc0I7N49ZtlTRke5o"},
		{"name": "enrollware", "label": "Enrollware Students", "kind": "student", "sheet_id": "1NUYtyLyPppreqoFPRfinCphl8u_6Fv6t95s--6LMT0Y"},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STUDENTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources", DefaultSources())
	v.SetDefault("fetch.user_agent", "student-map/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("buffer.default_radius_miles", 20.0)
	v.SetDefault("export.filename", "students_in_buffer.csv")
	v.SetDefault("export.sink", "file")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.secure", true)
	v.SetDefault("store.driver", "none")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_idle_mins", 120)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Source
// definitions are checked in every mode since a bad one only shows up later
// as an empty layer.
func (c *Config) Validate(mode string) error {
	var errs []string

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("sources[%d] duplicates name %q", i, s.Name))
		}
		seen[s.Name] = true

		switch s.Kind {
		case "student", "office":
		default:
			errs = append(errs, fmt.Sprintf("source %q kind must be student or office", s.Name))
		}

		n := 0
		for _, loc := range []string{s.SheetID, s.URL, s.Path} {
			if loc != "" {
				n++
			}
		}
		if n != 1 {
			errs = append(errs, fmt.Sprintf("source %q must set exactly one of sheet_id, url, path", s.Name))
		}
	}

	switch c.Store.Driver {
	case "none", "":
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "buffer":
		switch c.Export.Sink {
		case "file":
		case "s3":
			if c.Export.S3.Endpoint == "" || c.Export.S3.Bucket == "" {
				errs = append(errs, "export.s3.endpoint and export.s3.bucket are required for the s3 sink")
			}
		default:
			errs = append(errs, fmt.Sprintf("export.sink %q is not supported", c.Export.Sink))
		}
	case "load":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
