// Package config загружает конфигурацию сервера: значения по умолчанию,
// затем YAML файл, затем переменные окружения SALESNAV_*.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock backends
const (
	LockBackendSQLite   = "sqlite"
	LockBackendPostgres = "postgres"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "SALESNAV_"

// Config корневая конфигурация сервера
type Config struct {
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Locks     LocksConfig     `yaml:"locks"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig параметры HTTP сервера
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustedProxies IP или CIDR обратных прокси, чьим X-Forwarded-For можно верить
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DBConfig параметры основной базы SQLite
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig параметры аутентификации
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	LoginRateLimit  int           `yaml:"login_rate_limit"`  // попыток входа с одного IP
	LoginRateWindow time.Duration `yaml:"login_rate_window"` // окно для login_rate_limit
}

// LocksConfig параметры блокировок страниц
type LocksConfig struct {
	Backend              string        `yaml:"backend"`
	PostgresDSN          string        `yaml:"postgres_dsn"`
	TTL                  time.Duration `yaml:"ttl"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	RequireForBulkUpdate bool          `yaml:"require_for_bulk_update"`
}

// BootstrapConfig администратор, создаваемый при пустой таблице пользователей
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminName     string `yaml:"admin_name"`
	AdminPassword string `yaml:"admin_password"`
}

// Default returns configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		DB:  DBConfig{Path: "salesnav.db"},
		Log: LogConfig{Level: "info"},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			LoginRateLimit:  5,
			LoginRateWindow: time.Minute,
		},
		Locks: LocksConfig{
			Backend:       LockBackendSQLite,
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Bootstrap: BootstrapConfig{AdminName: "Administrator"},
	}
}

// Load builds configuration from defaults, the optional YAML file at path
// and environment overrides read through lookup.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv переопределяет значения из переменных окружения
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_ADDRESS":           &c.Server.Address,
		"DB_PATH":                  &c.DB.Path,
		"LOG_LEVEL":                &c.Log.Level,
		"JWT_SECRET":               &c.Auth.JWTSecret,
		"LOCK_BACKEND":             &c.Locks.Backend,
		"LOCK_POSTGRES_DSN":        &c.Locks.PostgresDSN,
		"BOOTSTRAP_ADMIN_EMAIL":    &c.Bootstrap.AdminEmail,
		"BOOTSTRAP_ADMIN_NAME":     &c.Bootstrap.AdminName,
		"BOOTSTRAP_ADMIN_PASSWORD": &c.Bootstrap.AdminPassword,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":    &c.Auth.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":   &c.Auth.RefreshTokenTTL,
		"LOCK_TTL":            &c.Locks.TTL,
		"LOCK_SWEEP_INTERVAL": &c.Locks.SweepInterval,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = nil
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				c.Server.TrustedProxies = append(c.Server.TrustedProxies, item)
			}
		}
	}

	if v, ok := lookup(EnvPrefix + "LOCK_REQUIRE_FOR_BULK_UPDATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sLOCK_REQUIRE_FOR_BULK_UPDATE: %w", EnvPrefix, err)
		}
		c.Locks.RequireForBulkUpdate = b
	}

	return nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("server.trusted_proxies: invalid address %q", proxy))
		}
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("auth token TTLs must be positive"))
	}
	if c.Auth.LoginRateLimit <= 0 || c.Auth.LoginRateWindow <= 0 {
		errs = append(errs, errors.New("auth login rate limit must be positive"))
	}
	if c.Locks.TTL <= 0 {
		errs = append(errs, errors.New("locks.ttl must be positive"))
	}
	if c.Locks.SweepInterval <= 0 {
		errs = append(errs, errors.New("locks.sweep_interval must be positive"))
	}

	switch c.Locks.Backend {
	case LockBackendSQLite:
	case LockBackendPostgres:
		if c.Locks.PostgresDSN == "" {
			errs = append(errs, errors.New("locks.postgres_dsn is required for postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown locks.backend %q", c.Locks.Backend))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	bootstrap := c.Bootstrap
	if (bootstrap.AdminEmail == "") != (bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("bootstrap.admin_email and bootstrap.admin_password must be set together"))
	}

	return errors.Join(errs...)
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ParseLevel converts a level name to slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
