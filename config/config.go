package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the Argus auditing service.
type Config struct {
	Audit struct {
		// EnabledEventTypes restricts processing to the listed event types.
		// Empty means all types are processed.
		EnabledEventTypes []string `mapstructure:"enabled_event_types"`

		// MinSeverityStorage gates retention in the in-memory buffer.
		MinSeverityStorage string `mapstructure:"min_severity_storage" validate:"oneof=info low medium high critical"`

		// MinSeverityAlert gates forwarding to the real-time alert sink.
		MinSeverityAlert string `mapstructure:"min_severity_alert" validate:"oneof=info low medium high critical"`

		// MaxEventsInMemory bounds the in-memory event buffer.
		MaxEventsInMemory int `mapstructure:"max_events_in_memory" validate:"gt=0"`

		SensitiveActions   []string `mapstructure:"sensitive_actions"`
		SensitiveResources []string `mapstructure:"sensitive_resources"`

		// SensitivityPolicyFile optionally points to a YAML policy file
		// whose actions/resources are merged with the inline lists.
		SensitivityPolicyFile string `mapstructure:"sensitivity_policy_file"`

		ActionVerificationRequired bool `mapstructure:"action_verification_required"`
		AnomalyDetectionEnabled    bool `mapstructure:"anomaly_detection_enabled"`
		BehaviorBaselineEnabled    bool `mapstructure:"behavior_baseline_enabled"`

		// FlushInterval is the audit-batch flush tick.
		FlushInterval time.Duration `mapstructure:"flush_interval" validate:"gt=0"`

		// RateLimitSweepInterval is the rate-limit table cleanup tick.
		RateLimitSweepInterval time.Duration `mapstructure:"ratelimit_sweep_interval" validate:"gt=0"`

		// BaselineSampleRate is the fraction of baseline updates that
		// trigger a persistence write. Sampling amortizes I/O cost against
		// staleness risk.
		BaselineSampleRate float64 `mapstructure:"baseline_sample_rate" validate:"gte=0,lte=1"`
	} `mapstructure:"audit"`

	Sinks struct {
		// AlertURL receives real-time alert POSTs.
		AlertURL string `mapstructure:"alert_url"`
		// AuditURL receives periodic batched audit-log POSTs.
		AuditURL string `mapstructure:"audit_url"`
		// Timeout bounds each outbound request. Zero uses the built-in
		// client timeout.
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"sinks"`

	Storage struct {
		// SQLitePath is the baseline store database file. Empty disables
		// durable baseline persistence.
		SQLitePath string `mapstructure:"sqlite_path"`
		// BaselineCacheSize is the LRU read cache size in the store.
		BaselineCacheSize int `mapstructure:"baseline_cache_size" validate:"gt=0"`
	} `mapstructure:"storage"`

	API struct {
		Port      int `mapstructure:"port" validate:"gt=0,lte=65535"`
		RateLimit struct {
			Limit  int           `mapstructure:"limit"`
			Window time.Duration `mapstructure:"window"`
			Burst  int           `mapstructure:"burst"`
			Redis  struct {
				Enabled  bool   `mapstructure:"enabled"`
				Addr     string `mapstructure:"addr"`
				Password string `mapstructure:"password"`
				DB       int    `mapstructure:"db"`
				PoolSize int    `mapstructure:"pool_size"`
			} `mapstructure:"redis"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`
}

// setDefaults registers the default value for every knob.
func setDefaults() {
	viper.SetDefault("audit.enabled_event_types", []string{})
	viper.SetDefault("audit.min_severity_storage", "info")
	viper.SetDefault("audit.min_severity_alert", "high")
	viper.SetDefault("audit.max_events_in_memory", 1000)
	viper.SetDefault("audit.sensitive_actions", []string{})
	viper.SetDefault("audit.sensitive_resources", []string{})
	viper.SetDefault("audit.sensitivity_policy_file", "")
	viper.SetDefault("audit.action_verification_required", true)
	viper.SetDefault("audit.anomaly_detection_enabled", true)
	viper.SetDefault("audit.behavior_baseline_enabled", true)
	viper.SetDefault("audit.flush_interval", 60*time.Second)
	viper.SetDefault("audit.ratelimit_sweep_interval", time.Hour)
	viper.SetDefault("audit.baseline_sample_rate", 0.1)

	viper.SetDefault("sinks.alert_url", "http://localhost:8080/api/security/alerts")
	viper.SetDefault("sinks.audit_url", "http://localhost:8080/api/security/audit-logs")
	viper.SetDefault("sinks.timeout", 10*time.Second)

	viper.SetDefault("storage.sqlite_path", "./data/argus.db")
	viper.SetDefault("storage.baseline_cache_size", 1024)

	viper.SetDefault("api.port", 8081)
	viper.SetDefault("api.rate_limit.limit", 100)
	viper.SetDefault("api.rate_limit.window", time.Minute)
	viper.SetDefault("api.rate_limit.burst", 100)
	viper.SetDefault("api.rate_limit.redis.enabled", false)
	viper.SetDefault("api.rate_limit.redis.addr", "localhost:6379")
	viper.SetDefault("api.rate_limit.redis.password", "")
	viper.SetDefault("api.rate_limit.redis.db", 0)
	viper.SetDefault("api.rate_limit.redis.pool_size", 10)

	viper.SetDefault("log.level", "info")
}

// Load reads configuration from the given file (optional), environment
// variables prefixed with ARGUS_, and built-in defaults, in that order of
// precedence.
func Load(configPath string) (*Config, error) {
	viper.Reset()
	setDefaults()

	viper.SetEnvPrefix("ARGUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		viper.SetConfigName("argus")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		// A missing config file is fine: defaults and env cover everything.
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints on the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
