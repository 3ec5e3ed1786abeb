package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries all process configuration. Values are read from the
// environment with the MESA_ prefix, optionally overlaid by a config file.
type Config struct {
	Environment string `mapstructure:"environment"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	WebhookRateLimit  int           `mapstructure:"webhook_rate_limit"`
	WebhookRateWindow time.Duration `mapstructure:"webhook_rate_window"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ProcessorConfig selects the payment-processor strategy once per process.
// Mode "stripe" requires a secret key; mode "local" simulates instrument
// storage for development and test environments.
type ProcessorConfig struct {
	Mode          string        `mapstructure:"mode"`
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	ChargeTimeout time.Duration `mapstructure:"charge_timeout"`
}

// BillingConfig holds the policy values the subscription lifecycle depends
// on. Retry exhaustion and trial length are configuration, not constants.
type BillingConfig struct {
	TrialDays       int    `mapstructure:"trial_days"`
	RetryLimit      int    `mapstructure:"retry_limit"`
	DefaultCurrency string `mapstructure:"default_currency"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	ExporterEndpoint string  `mapstructure:"exporter_endpoint"`
	ExporterProtocol string  `mapstructure:"exporter_protocol"`
	SamplingRatio    float64 `mapstructure:"sampling_ratio"`
}

// SchedulerConfig drives the periodic billing sweeps. CronSpec uses the
// standard five-field cron syntax.
type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CronSpec           string        `mapstructure:"cron_spec"`
	BatchSize          int           `mapstructure:"batch_size"`
	TrialReminderAhead time.Duration `mapstructure:"trial_reminder_ahead"`
}

type BootstrapConfig struct {
	EnsureDemoTenant bool `mapstructure:"ensure_demo_tenant"`
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from the environment and an optional config file
// pointed at by MESA_CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mesa")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.webhook_rate_limit", 120)
	v.SetDefault("http.webhook_rate_window", time.Minute)
	v.SetDefault("database.dsn", "host=localhost user=mesa dbname=mesa sslmode=disable")
	v.SetDefault("processor.mode", "local")
	v.SetDefault("processor.charge_timeout", 10*time.Second)
	v.SetDefault("billing.trial_days", 14)
	v.SetDefault("billing.retry_limit", 3)
	v.SetDefault("billing.default_currency", "USD")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron_spec", "*/15 * * * *")
	v.SetDefault("scheduler.batch_size", 200)
	v.SetDefault("scheduler.trial_reminder_ahead", 72*time.Hour)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter_protocol", "http")
	v.SetDefault("tracing.sampling_ratio", 0.1)
	v.SetDefault("bootstrap.ensure_demo_tenant", false)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
