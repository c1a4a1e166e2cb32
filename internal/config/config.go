package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	DBDriver          string
	DBDSN             string
	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret     string
	JWTTTLMinutes int

	PasswordMinLength int
	PasswordMaxLength int

	OTPTTLSeconds int

	NotifySender string
	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string

	DefaultRadiusKm float64
	MaxRadiusKm     float64

	JanitorIntervalMinutes int
	JanitorGraceMinutes    int

	CORSAllowedOrigins []string
	TrustProxy         bool

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	LogLevel string
	LogDev   bool
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		DBDriver:                 strings.ToLower(env("APP_DB_DRIVER", "sqlite")),
		DBDSN:                    env("APP_DB_DSN", ""),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		JWTSecret:                env("JWT_SECRET", "CHANGE_ME_PRODUCTION_JWT_SECRET"),
		JWTTTLMinutes:            envInt("JWT_TTL_MINUTES", 60),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		OTPTTLSeconds:            envInt("OTP_TTL_SECONDS", 300),
		NotifySender:             strings.ToLower(env("NOTIFY_SENDER", "log")),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPFrom:                 env("SMTP_FROM", "no-reply@popout.app"),
		DefaultRadiusKm:          envFloat("NEARBY_DEFAULT_RADIUS_KM", 5),
		MaxRadiusKm:              envFloat("NEARBY_MAX_RADIUS_KM", 100),
		JanitorIntervalMinutes:   envInt("JANITOR_INTERVAL_MINUTES", 5),
		JanitorGraceMinutes:      envInt("JANITOR_GRACE_MINUTES", 30),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		TrustProxy:               envBool("TRUST_PROXY", false),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogDev:                   envBool("LOG_DEV", false),
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "pgx", "postgres":
		cfg.DBDriver = "pgx"
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return Config{}, fmt.Errorf("APP_DB_DSN is required for driver %q", cfg.DBDriver)
		}
	case "mysql":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return Config{}, fmt.Errorf("APP_DB_DSN is required for driver %q", cfg.DBDriver)
		}
	default:
		return Config{}, fmt.Errorf("APP_DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.JWTTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" ||
		cfg.JWTSecret == "CHANGE_ME_PRODUCTION_JWT_SECRET" ||
		len(cfg.JWTSecret) < 24 {
		return Config{}, fmt.Errorf("JWT_SECRET must be set to a strong non-default value (>=24 chars)")
	}
	if cfg.PasswordMinLength < 8 {
		return Config{}, fmt.Errorf("password min length must be >= 8")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}
	if cfg.OTPTTLSeconds <= 0 {
		return Config{}, fmt.Errorf("OTP_TTL_SECONDS must be positive")
	}
	switch cfg.NotifySender {
	case "log", "smtp":
	default:
		return Config{}, fmt.Errorf("NOTIFY_SENDER must be one of: log, smtp")
	}
	if cfg.NotifySender == "smtp" && cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid SMTP port")
	}
	if cfg.DefaultRadiusKm <= 0 || cfg.MaxRadiusKm < cfg.DefaultRadiusKm {
		return Config{}, fmt.Errorf("invalid nearby radius config")
	}
	if cfg.JanitorIntervalMinutes <= 0 || cfg.JanitorGraceMinutes < 0 {
		return Config{}, fmt.Errorf("invalid janitor config")
	}
	return cfg, nil
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLSeconds) * time.Second
}

func (c Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalMinutes) * time.Minute
}

func (c Config) JanitorGrace() time.Duration {
	return time.Duration(c.JanitorGraceMinutes) * time.Minute
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
