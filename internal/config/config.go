package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Index    IndexConfig    `yaml:"index" mapstructure:"index"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CatalogConfig configures the STAC imagery catalog.
type CatalogConfig struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	Collection  string        `yaml:"collection" mapstructure:"collection"`
	Sign        bool          `yaml:"sign" mapstructure:"sign"`
	TokenURL    string        `yaml:"token_url" mapstructure:"token_url"`
	MaxItems    int           `yaml:"max_items" mapstructure:"max_items"`
	PageSize    int           `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures retries of transient catalog failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the catalog circuit breaker. A zero threshold
// disables the breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// BoundaryConfig locates the district boundary file.
type BoundaryConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	NameField string `yaml:"name_field" mapstructure:"name_field"`
	// Format is "shapefile", "geojson" or empty to infer from the extension.
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchConfig configures band fetching.
type FetchConfig struct {
	Scale       float64     `yaml:"scale" mapstructure:"scale"`
	TileWorkers int         `yaml:"tile_workers" mapstructure:"tile_workers"`
	Bands       BandsConfig `yaml:"bands" mapstructure:"bands"`
}

// BandsConfig maps spectral bands to catalog asset keys.
type BandsConfig struct {
	Red  string `yaml:"red" mapstructure:"red"`
	NIR  string `yaml:"nir" mapstructure:"nir"`
	SWIR string `yaml:"swir" mapstructure:"swir"`
}

// IndexConfig holds the sprawl classification thresholds.
type IndexConfig struct {
	BuiltUpThreshold    float64 `yaml:"built_up_threshold" mapstructure:"built_up_threshold"`
	VegetationThreshold float64 `yaml:"vegetation_threshold" mapstructure:"vegetation_threshold"`
}

// AnalysisConfig holds per-run defaults for the analyze command and API.
type AnalysisConfig struct {
	DateRange     string  `yaml:"date_range" mapstructure:"date_range"`
	MaxCloudCover float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from config.yaml (if present), then overlays
// environment variables with the SPRAWL_ prefix.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("catalog.url", "https://planetarycomputer.microsoft.com/api/stac/v1")
	v.SetDefault("catalog.collection", "sentinel-2-l2a")
	v.SetDefault("catalog.sign", true)
	v.SetDefault("catalog.token_url", "https://planetarycomputer.microsoft.com/api/sas/v1/token")
	v.SetDefault("catalog.max_items", 500)
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.timeout_secs", 120)
	v.SetDefault("catalog.rate_per_sec", 10)
	v.SetDefault("catalog.retry.max_attempts", 3)
	v.SetDefault("catalog.retry.initial_backoff_ms", 500)
	v.SetDefault("catalog.retry.max_backoff_ms", 10000)
	v.SetDefault("catalog.circuit.failure_threshold", 5)
	v.SetDefault("catalog.circuit.reset_timeout_secs", 30)

	v.SetDefault("boundary.path", "data/districts.shp")
	v.SetDefault("boundary.name_field", "d_name")
	v.SetDefault("boundary.format", "")

	v.SetDefault("fetch.scale", 0.2)
	v.SetDefault("fetch.tile_workers", 4)
	v.SetDefault("fetch.bands.red", "B04")
	v.SetDefault("fetch.bands.nir", "B08")
	v.SetDefault("fetch.bands.swir", "B11")

	v.SetDefault("index.built_up_threshold", 0.05)
	v.SetDefault("index.vegetation_threshold", 0.3)

	v.SetDefault("analysis.date_range", "2023-01-01/2023-05-30")
	v.SetDefault("analysis.max_cloud_cover", 10)
	v.SetDefault("analysis.timeout_secs", 600)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sprawl.db")

	v.SetDefault("server.port", 8080)

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

// Validate checks the settings required by mode ("analyze", "runs" or
// "serve") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze", "serve":
		errs = append(errs, c.validateAnalysis()...)
		errs = append(errs, c.validateStore()...)
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAnalysis() []string {
	var errs []string
	if c.Catalog.URL == "" {
		errs = append(errs, "catalog.url is required")
	}
	if c.Catalog.Collection == "" {
		errs = append(errs, "catalog.collection is required")
	}
	if c.Boundary.Path == "" {
		errs = append(errs, "boundary.path is required")
	}
	switch c.Boundary.Format {
	case "", "shapefile", "geojson":
	default:
		errs = append(errs, "boundary.format must be shapefile or geojson")
	}
	if c.Fetch.Scale <= 0 || c.Fetch.Scale > 1 {
		errs = append(errs, "fetch.scale must be in (0, 1]")
	}
	if c.Fetch.TileWorkers < 1 || c.Fetch.TileWorkers > 32 {
		errs = append(errs, "fetch.tile_workers must be between 1 and 32")
	}
	if c.Fetch.Bands.Red == "" || c.Fetch.Bands.NIR == "" || c.Fetch.Bands.SWIR == "" {
		errs = append(errs, "fetch.bands.red, nir and swir are required")
	}
	if c.Analysis.MaxCloudCover < 0 || c.Analysis.MaxCloudCover > 100 {
		errs = append(errs, "analysis.max_cloud_cover must be between 0 and 100")
	}
	if c.Analysis.TimeoutSecs < 0 {
		errs = append(errs, "analysis.timeout_secs must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	case "":
		return nil
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
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
