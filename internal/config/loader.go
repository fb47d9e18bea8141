package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path on top of the built-in
// defaults, then applies environment overrides. A missing file is not an
// error: defaults plus environment are a complete configuration. The
// returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the marketplace credential variables, the
// standard libpq variables and MPIMPORT_* overrides. Set variables win over
// the file.
func applyEnvOverrides(cfg *Config) {
	// ── Credentials ──
	setStr(&cfg.Sources.Ozon.ClientID, "OZON_CLIENT_ID")
	setStr(&cfg.Sources.Ozon.APIKey, "OZON_API_KEY")
	setStr(&cfg.Sources.WB.APIKey, "WB_API_KEY")
	setStr(&cfg.Sources.WB.ClientID, "WB_CLIENT_ID")

	// ── Warehouse (libpq names first, MPIMPORT_* last) ──
	setStr(&cfg.Warehouse.DSN, "DATABASE_URL")
	setStr(&cfg.Warehouse.Host, "PGHOST")
	setInt(&cfg.Warehouse.Port, "PGPORT")
	setStr(&cfg.Warehouse.Database, "PGDATABASE")
	setStr(&cfg.Warehouse.User, "PGUSER")
	setStr(&cfg.Warehouse.Password, "PGPASSWORD")
	setStr(&cfg.Warehouse.SSLMode, "PGSSLMODE")
	setStr(&cfg.Warehouse.DSN, "MPIMPORT_WAREHOUSE_DSN")
	setInt(&cfg.Warehouse.PoolMaxConns, "MPIMPORT_WAREHOUSE_POOL_MAX_CONNS")
	setInt(&cfg.Warehouse.PoolMinConns, "MPIMPORT_WAREHOUSE_POOL_MIN_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MPIMPORT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MPIMPORT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MPIMPORT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MPIMPORT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MPIMPORT_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.SharedRateGate, "MPIMPORT_REDIS_SHARED_RATE_GATE")
	setStr(&cfg.Redis.Namespace, "MPIMPORT_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MPIMPORT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MPIMPORT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MPIMPORT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MPIMPORT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MPIMPORT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MPIMPORT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MPIMPORT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "MPIMPORT_S3_FORCE_PATH_STYLE")

	// ── Metrics ──
	setStr(&cfg.Metrics.PushgatewayURL, "MPIMPORT_METRICS_PUSHGATEWAY_URL")
	setStr(&cfg.Metrics.Job, "MPIMPORT_METRICS_JOB")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MPIMPORT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MPIMPORT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MPIMPORT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MPIMPORT_NOTIFY_EVENTS")

	// ── Import ──
	setStr(&cfg.Import.ClientName, "MPIMPORT_CLIENT_NAME")
	setDuration(&cfg.Import.LockTTL, "MPIMPORT_LOCK_TTL")

	// ── Sources ──
	setStr(&cfg.Sources.Ozon.BaseURL, "MPIMPORT_OZON_BASE_URL")
	setDuration(&cfg.Sources.Ozon.MinInterval, "MPIMPORT_OZON_MIN_INTERVAL")
	setDuration(&cfg.Sources.Ozon.RequestTimeout, "MPIMPORT_OZON_REQUEST_TIMEOUT")
	setBool(&cfg.Sources.Ozon.InsecureSkipVerify, "MPIMPORT_OZON_INSECURE_SKIP_VERIFY")
	setStr(&cfg.Sources.WB.StatisticsURL, "MPIMPORT_WB_STATISTICS_URL")
	setStr(&cfg.Sources.WB.ContentURL, "MPIMPORT_WB_CONTENT_URL")
	setDuration(&cfg.Sources.WB.MinInterval, "MPIMPORT_WB_MIN_INTERVAL")
	setDuration(&cfg.Sources.WB.RequestTimeout, "MPIMPORT_WB_REQUEST_TIMEOUT")
	setBool(&cfg.Sources.WB.InsecureSkipVerify, "MPIMPORT_WB_INSECURE_SKIP_VERIFY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MPIMPORT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
