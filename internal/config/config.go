// Package config reads runtime settings from QUESTLOG_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/questlog/internal/backup"
	"github.com/dukerupert/questlog/internal/middleware"
	"github.com/dukerupert/questlog/internal/progression"
	"github.com/dukerupert/questlog/internal/push"
)

type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	LogFormat     string
	SessionTTL    time.Duration
	SecureCookies bool
	// WSOrigins are extra origin patterns allowed to open /ws.
	WSOrigins []string
	// TrustedProxies gates X-Forwarded-For and CF-Connecting-IP. Nil trusts none.
	TrustedProxies *middleware.ProxyTrust

	PolicyConfig progression.PolicyConfig
	Policy       progression.Policy

	Backup backup.Config
	Push   push.Config
}

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads settings through getenv, applying defaults for unset values.
func LoadFrom(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:      env("QUESTLOG_PORT", "8080"),
		DBPath:    env("QUESTLOG_DB_PATH", "questlog.db"),
		LogLevel:  env("QUESTLOG_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(env("QUESTLOG_LOG_FORMAT", "text")),
		PolicyConfig: progression.PolicyConfig{
			Reward:    strings.ToLower(env("QUESTLOG_REWARD_POLICY", "hybrid")),
			Threshold: strings.ToLower(env("QUESTLOG_THRESHOLD", "fixed")),
			Remainder: strings.ToLower(env("QUESTLOG_LEVELUP_REMAINDER", "carry")),
		},
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("QUESTLOG_LOG_FORMAT: must be text or json, got %q", cfg.LogFormat)
	}

	if v := env("QUESTLOG_THRESHOLD_BASE", ""); v != "" {
		base, err := strconv.Atoi(v)
		if err != nil || base <= 0 {
			return Config{}, fmt.Errorf("QUESTLOG_THRESHOLD_BASE: must be a positive integer, got %q", v)
		}
		cfg.PolicyConfig.ThresholdBase = base
	}

	policy, err := progression.NewPolicy(cfg.PolicyConfig)
	if err != nil {
		return Config{}, fmt.Errorf("progression policy: %w", err)
	}
	cfg.Policy = policy

	ttl, err := time.ParseDuration(env("QUESTLOG_SESSION_TTL", "720h"))
	if err != nil {
		return Config{}, fmt.Errorf("QUESTLOG_SESSION_TTL: %w", err)
	}
	if ttl <= 0 {
		return Config{}, fmt.Errorf("QUESTLOG_SESSION_TTL: must be positive, got %s", ttl)
	}
	cfg.SessionTTL = ttl

	secure, err := strconv.ParseBool(env("QUESTLOG_SECURE_COOKIES", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("QUESTLOG_SECURE_COOKIES: %w", err)
	}
	cfg.SecureCookies = secure

	if v := env("QUESTLOG_WS_ORIGINS", ""); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.WSOrigins = append(cfg.WSOrigins, origin)
			}
		}
	}

	if v := env("QUESTLOG_TRUSTED_PROXIES", ""); v != "" {
		trust, err := middleware.ParseTrustedProxies(strings.Split(v, ","))
		if err != nil {
			return Config{}, fmt.Errorf("QUESTLOG_TRUSTED_PROXIES: %w", err)
		}
		cfg.TrustedProxies = trust
	}

	if err := loadBackup(&cfg, env); err != nil {
		return Config{}, err
	}

	cfg.Push = push.Config{
		VAPIDPublicKey:  env("QUESTLOG_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: env("QUESTLOG_VAPID_PRIVATE_KEY", ""),
		Subscriber:      env("QUESTLOG_VAPID_SUBJECT", "noreply@questlog.local"),
	}
	if (cfg.Push.VAPIDPublicKey == "") != (cfg.Push.VAPIDPrivateKey == "") {
		return Config{}, fmt.Errorf("QUESTLOG_VAPID_PUBLIC_KEY and QUESTLOG_VAPID_PRIVATE_KEY must be set together")
	}

	return cfg, nil
}

func loadBackup(cfg *Config, env func(key, def string) string) error {
	cfg.Backup = backup.Config{
		S3: backup.S3Config{
			Endpoint:  env("QUESTLOG_BACKUP_S3_ENDPOINT", ""),
			Bucket:    env("QUESTLOG_BACKUP_S3_BUCKET", ""),
			Region:    env("QUESTLOG_BACKUP_S3_REGION", "us-east-1"),
			AccessKey: env("QUESTLOG_BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: env("QUESTLOG_BACKUP_S3_SECRET_KEY", ""),
			Prefix:    strings.Trim(env("QUESTLOG_BACKUP_S3_PREFIX", "questlog"), "/"),
		},
		Passphrase: env("QUESTLOG_BACKUP_PASSPHRASE", ""),
	}

	interval, err := time.ParseDuration(env("QUESTLOG_BACKUP_INTERVAL", "24h"))
	if err != nil {
		return fmt.Errorf("QUESTLOG_BACKUP_INTERVAL: %w", err)
	}
	if interval < time.Minute {
		return fmt.Errorf("QUESTLOG_BACKUP_INTERVAL: must be at least 1m, got %s", interval)
	}
	cfg.Backup.Interval = interval

	retention, err := time.ParseDuration(env("QUESTLOG_BACKUP_RETENTION", "720h"))
	if err != nil {
		return fmt.Errorf("QUESTLOG_BACKUP_RETENTION: %w", err)
	}
	if retention < 0 {
		return fmt.Errorf("QUESTLOG_BACKUP_RETENTION: must not be negative, got %s", retention)
	}
	cfg.Backup.Retention = retention

	if cfg.Backup.S3.Bucket != "" && cfg.Backup.Passphrase == "" {
		return fmt.Errorf("QUESTLOG_BACKUP_PASSPHRASE is required when QUESTLOG_BACKUP_S3_BUCKET is set")
	}
	return nil
}
