package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VYBE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VYBE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.CreatorAddress, "VYBE_LEDGER_CREATOR_ADDRESS")
	setStr(&cfg.Ledger.OracleAddress, "VYBE_LEDGER_ORACLE_ADDRESS")
	setStr(&cfg.Ledger.Netting, "VYBE_LEDGER_NETTING")

	// ── Database ──
	setStr(&cfg.Database.DSN, "VYBE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VYBE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VYBE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VYBE_DATABASE_NAME")
	setStr(&cfg.Database.User, "VYBE_DATABASE_USER")
	setStr(&cfg.Database.Password, "VYBE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VYBE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "VYBE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "VYBE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "VYBE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VYBE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VYBE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VYBE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VYBE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VYBE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VYBE_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLSecs, "VYBE_REDIS_CACHE_TTL_SECS")
	setInt(&cfg.Redis.StreamMaxLen, "VYBE_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VYBE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VYBE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VYBE_S3_REGION")
	setStr(&cfg.S3.Bucket, "VYBE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VYBE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VYBE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VYBE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VYBE_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.ClientID, "VYBE_ORACLE_CLIENT_ID")
	setStr(&cfg.Oracle.ClientSecret, "VYBE_ORACLE_CLIENT_SECRET")
	setStr(&cfg.Oracle.AccessToken, "VYBE_ORACLE_ACCESS_TOKEN")
	setStr(&cfg.Oracle.TokenURL, "VYBE_ORACLE_TOKEN_URL")
	setStr(&cfg.Oracle.APIBaseURL, "VYBE_ORACLE_API_BASE_URL")
	setDuration(&cfg.Oracle.ResolveInterval, "VYBE_ORACLE_RESOLVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VYBE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VYBE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "VYBE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "VYBE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "VYBE_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSecs, "VYBE_SERVER_RATE_WINDOW_SECS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VYBE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VYBE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VYBE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VYBE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VYBE_MODE")
	setStr(&cfg.LogLevel, "VYBE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
