package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Mode values select between the serving host and the interactive preview host.
const (
	ModeServing = "serving"
	ModePreview = "preview"
)

// Tenant resolver kinds accepted by TenantsConfig.Resolver.
const (
	ResolverFolder = "folder"
	ResolverStatic = "static"
	ResolverSQLite = "sqlite"
)

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TenantsConfig selects where the authoritative site list comes from.
type TenantsConfig struct {
	Resolver string   `mapstructure:"resolver"`
	Static   []string `mapstructure:"static"`
	DB       string   `mapstructure:"db"`
}

// RetryConfig drives the exponential backoff used for context creation.
// The wait before retry i (zero based) is Base * Multiplier^i.
type RetryConfig struct {
	Base        time.Duration `mapstructure:"base"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// LifecycleConfig holds the timeouts and pool sizes of the context lifecycle.
type LifecycleConfig struct {
	InitTimeout     time.Duration `mapstructure:"init_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxAccessors    int           `mapstructure:"max_accessors"`
	QueueSize       int           `mapstructure:"queue_size"`
	Workers         int           `mapstructure:"workers"`
	WorkQueue       int           `mapstructure:"work_queue"`
	CreateOnStart   bool          `mapstructure:"create_on_start"`
	Concurrent      bool          `mapstructure:"concurrent"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// WatchConfig configures the preview-mode change watcher and rebuild debouncer.
type WatchConfig struct {
	Paths     []string      `mapstructure:"paths"`
	Exclude   []string      `mapstructure:"exclude"`
	Interval  time.Duration `mapstructure:"interval"`
	Threshold int           `mapstructure:"threshold"`
}

// Config holds all runtime configuration for an engine process.
// Values are populated from .engine.yaml, ENGINE_* env vars, and CLI flags.
type Config struct {
	SitesRoot     string          `mapstructure:"sites_root"`
	Mode          string          `mapstructure:"mode"`
	DefaultSite   string          `mapstructure:"default_site"`
	FallbackSite  string          `mapstructure:"fallback_site"`
	Listen        string          `mapstructure:"listen"`
	TelemetryPath string          `mapstructure:"telemetry_path"`
	MaxSites      int             `mapstructure:"max_sites"`
	Log           LogConfig       `mapstructure:"log"`
	Tenants       TenantsConfig   `mapstructure:"tenants"`
	Lifecycle     LifecycleConfig `mapstructure:"lifecycle"`
	Watch         WatchConfig     `mapstructure:"watch"`
}

// SetDefaults registers built-in defaults on v for every key Load understands.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sites_root", "sites")
	v.SetDefault("mode", ModeServing)
	v.SetDefault("default_site", "")
	v.SetDefault("fallback_site", "_fallback")
	v.SetDefault("listen", ":8080")
	v.SetDefault("telemetry_path", "")
	v.SetDefault("max_sites", 0)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "CONSOLE")

	v.SetDefault("tenants.resolver", ResolverFolder)
	v.SetDefault("tenants.static", []string{})
	v.SetDefault("tenants.db", ".engine/sites.db")

	v.SetDefault("lifecycle.init_timeout", 30*time.Second)
	v.SetDefault("lifecycle.shutdown_timeout", 10*time.Second)
	v.SetDefault("lifecycle.max_accessors", 256)
	v.SetDefault("lifecycle.queue_size", 32)
	v.SetDefault("lifecycle.workers", 4)
	v.SetDefault("lifecycle.work_queue", 64)
	v.SetDefault("lifecycle.create_on_start", true)
	v.SetDefault("lifecycle.concurrent", true)
	v.SetDefault("lifecycle.sync_interval", time.Minute)
	v.SetDefault("lifecycle.retry.base", 500*time.Millisecond)
	v.SetDefault("lifecycle.retry.multiplier", 2.0)
	v.SetDefault("lifecycle.retry.max_attempts", 5)

	v.SetDefault("watch.paths", []string{"config/**", "scripts/**", "templates/**", "site/**"})
	v.SetDefault("watch.exclude", []string{".git/**"})
	v.SetDefault("watch.interval", 2*time.Second)
	v.SetDefault("watch.threshold", 5)
}

// Load reads configuration from v, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Preview reports whether the engine runs as an interactive preview host.
func (c Config) Preview() bool {
	return c.Mode == ModePreview
}
