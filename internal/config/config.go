// Package config defines the importer configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then overridden by environment variables.
type Config struct {
	Warehouse WarehouseConfig `toml:"warehouse"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Notify    NotifyConfig    `toml:"notify"`
	Import    ImportConfig    `toml:"import"`
	Sources   SourcesConfig   `toml:"sources"`
	LogLevel  string          `toml:"log_level"`
}

// WarehouseConfig holds the PostgreSQL connection parameters.
type WarehouseConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it runs are not locked and rate limits are per process. SharedRateGate
// spaces requests across every process using the same Redis. Namespace
// prefixes every key.
type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	MaxRetries     int    `toml:"max_retries"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	SharedRateGate bool   `toml:"shared_rate_gate"`
	Namespace      string `toml:"namespace"`
}

// S3Config holds the raw payload mirror settings.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetricsConfig controls the Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

// NotifyConfig holds chat channels for run reports. Events selects which
// outcomes are sent (import_failed, import_truncated,
// import_skipped_records, import_done).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ImportConfig holds run-level settings.
type ImportConfig struct {
	// ClientName is the clients.name used when --client is not given.
	ClientName      string   `toml:"client_name"`
	LockTTL         duration `toml:"lock_ttl"`
	WriteRetryDelay duration `toml:"write_retry_delay"`
}

// SourcesConfig groups the per-marketplace sections.
type SourcesConfig struct {
	Ozon OzonConfig `toml:"ozon"`
	WB   WBConfig   `toml:"wb"`
}

// RetryConfig is the marketplace call retry schedule.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
	Jitter      float64  `toml:"jitter"`
}

// OzonConfig holds the Ozon Seller API settings.
type OzonConfig struct {
	BaseURL            string      `toml:"base_url"`
	ClientID           string      `toml:"client_id"`
	APIKey             string      `toml:"api_key"`
	MinInterval        duration    `toml:"min_interval"`
	RequestTimeout     duration    `toml:"request_timeout"`
	InsecureSkipVerify bool        `toml:"insecure_skip_verify"`
	PageSize           int         `toml:"page_size"`
	ReturnsPageSize    int         `toml:"returns_page_size"`
	OffsetCeiling      int         `toml:"offset_ceiling"`
	IncludeFBO         bool        `toml:"include_fbo"`
	Retry              RetryConfig `toml:"retry"`
}

// WBConfig holds the Wildberries API settings. The statistics and content
// hosts are throttled separately. ClientID is the seller id; WB does not
// require it and it is only logged.
type WBConfig struct {
	StatisticsURL      string      `toml:"statistics_url"`
	ContentURL         string      `toml:"content_url"`
	APIKey             string      `toml:"api_key"`
	ClientID           string      `toml:"client_id"`
	MinInterval        duration    `toml:"min_interval"`
	ContentMinInterval duration    `toml:"content_min_interval"`
	RequestTimeout     duration    `toml:"request_timeout"`
	InsecureSkipVerify bool        `toml:"insecure_skip_verify"`
	SalesPageSize      int         `toml:"sales_page_size"`
	ReportPageSize     int         `toml:"report_page_size"`
	CardsPageSize      int         `toml:"cards_page_size"`
	Retry              RetryConfig `toml:"retry"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding such as "5m" or "200ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func defaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   duration{time.Second},
		MaxDelay:    duration{time.Minute},
		Jitter:      0.2,
	}
}

// Defaults returns a Config populated with working defaults for everything
// except credentials and the warehouse address.
func Defaults() Config {
	return Config{
		Warehouse: WarehouseConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
			PoolMinConns: 0,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   4,
			MaxRetries: 3,
			Namespace:  "mpimport",
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "mpimport/",
			UseSSL: true,
		},
		Metrics: MetricsConfig{
			Job: "mpimport",
		},
		Notify: NotifyConfig{
			Events: []string{"import_failed", "import_truncated"},
		},
		Import: ImportConfig{
			LockTTL:         duration{2 * time.Hour},
			WriteRetryDelay: duration{500 * time.Millisecond},
		},
		Sources: SourcesConfig{
			Ozon: OzonConfig{
				BaseURL:         "https://api-seller.ozon.ru",
				MinInterval:     duration{200 * time.Millisecond},
				RequestTimeout:  duration{60 * time.Second},
				PageSize:        1000,
				ReturnsPageSize: 500,
				OffsetCeiling:   80000,
				IncludeFBO:      true,
				Retry:           defaultRetry(),
			},
			WB: WBConfig{
				StatisticsURL:      "https://statistics-api.wildberries.ru",
				ContentURL:         "https://content-api.wildberries.ru",
				MinInterval:        duration{60 * time.Second},
				ContentMinInterval: duration{600 * time.Millisecond},
				RequestTimeout:     duration{60 * time.Second},
				SalesPageSize:      80000,
				ReportPageSize:     100000,
				CardsPageSize:      100,
				Retry:              defaultRetry(),
			},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Credentials are checked per
// run by RequireCredentials.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Warehouse.DSN == "" {
		if c.Warehouse.Host == "" {
			errs = append(errs, "warehouse: host must not be empty (or set DATABASE_URL)")
		}
		if c.Warehouse.Port < 1 || c.Warehouse.Port > 65535 {
			errs = append(errs, fmt.Sprintf("warehouse: port must be 1-65535, got %d", c.Warehouse.Port))
		}
		if c.Warehouse.Database == "" {
			errs = append(errs, "warehouse: database must not be empty")
		}
	}
	if c.Warehouse.PoolMaxConns < 1 {
		errs = append(errs, "warehouse: pool_max_conns must be >= 1")
	}
	if c.Warehouse.PoolMinConns < 0 {
		errs = append(errs, "warehouse: pool_min_conns must be >= 0")
	}
	if c.Warehouse.PoolMinConns > c.Warehouse.PoolMaxConns {
		errs = append(errs, "warehouse: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Import.LockTTL.Duration <= 0 {
		errs = append(errs, "import: lock_ttl must be > 0")
	}

	o := c.Sources.Ozon
	if o.BaseURL == "" {
		errs = append(errs, "sources.ozon: base_url must not be empty")
	}
	if o.PageSize < 1 || o.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("sources.ozon: page_size must be 1-1000, got %d", o.PageSize))
	}
	if o.OffsetCeiling < 0 {
		errs = append(errs, "sources.ozon: offset_ceiling must be >= 0")
	}
	errs = append(errs, validateRetry("sources.ozon", o.Retry)...)

	w := c.Sources.WB
	if w.StatisticsURL == "" || w.ContentURL == "" {
		errs = append(errs, "sources.wb: statistics_url and content_url must not be empty")
	}
	if w.SalesPageSize < 1 || w.ReportPageSize < 1 || w.CardsPageSize < 1 {
		errs = append(errs, "sources.wb: page sizes must be >= 1")
	}
	errs = append(errs, validateRetry("sources.wb", w.Retry)...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRetry(section string, r RetryConfig) []string {
	var errs []string
	if r.MaxAttempts < 1 {
		errs = append(errs, section+".retry: max_attempts must be >= 1")
	}
	if r.BaseDelay.Duration < 0 || r.MaxDelay.Duration < r.BaseDelay.Duration {
		errs = append(errs, section+".retry: need 0 <= base_delay <= max_delay")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		errs = append(errs, section+".retry: jitter must be within 0..1")
	}
	return errs
}

// RequireCredentials reports missing API credentials for src. The error
// wraps domain.ErrMissingCreds.
func (c *Config) RequireCredentials(src domain.SourceCode) error {
	var missing []string
	switch src {
	case domain.SourceOzon:
		if c.Sources.Ozon.ClientID == "" {
			missing = append(missing, "OZON_CLIENT_ID")
		}
		if c.Sources.Ozon.APIKey == "" {
			missing = append(missing, "OZON_API_KEY")
		}
	case domain.SourceWB:
		if c.Sources.WB.APIKey == "" {
			missing = append(missing, "WB_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown source %q", src)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: %s: %w: %s", src, domain.ErrMissingCreds, strings.Join(missing, ", "))
	}
	return nil
}
