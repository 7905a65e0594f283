package confs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultSecretKey = "mysecret"

// Config is built once at startup and passed to every component that needs
// it. Business code never reads the environment itself.
type Config struct {
	Env      string         `yaml:"env"`
	Addr     string         `yaml:"addr"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Auth     AuthConfig     `yaml:"auth"`
	Health   HealthConfig   `yaml:"health"`
	Query    QueryConfig    `yaml:"query"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type LogConfig struct {
	Format string `yaml:"format"` // json | text
	Level  string `yaml:"level"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres | sqlite
	URL        string `yaml:"url"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

type CacheConfig struct {
	RedisURL   string        `yaml:"redis_url"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

type AuthConfig struct {
	SecretKey         string        `yaml:"secret_key"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	MinPasswordLength int           `yaml:"min_password_length"`
}

type HealthConfig struct {
	OfflineThreshold time.Duration `yaml:"offline_threshold"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

type QueryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Env:  "development",
		Addr: "0.0.0.0:8000",
		Log:  LogConfig{Format: "text", Level: "info"},
		Database: DatabaseConfig{
			Driver:     "postgres",
			SQLitePath: "telemetry.db",
		},
		Cache: CacheConfig{DefaultTTL: time.Hour},
		Auth: AuthConfig{
			SecretKey:         defaultSecretKey,
			TokenTTL:          30 * time.Minute,
			MinPasswordLength: 8,
		},
		Health: HealthConfig{
			OfflineThreshold: 10 * time.Second,
			CacheTTL:         5 * time.Minute,
		},
		Query: QueryConfig{CacheTTL: time.Minute},
		MQTT:  MQTTConfig{Topic: "telemetry/+/readings", ClientID: "telemetry-server"},
	}
}

// LoadConfig layers defaults, an optional YAML file, a .env file if present
// and the process environment, in that order.
func LoadConfig(path string) (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not load .env", "error", err)
		}
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("TELEMETRY_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	dur := func(dst *time.Duration, key string) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str(&c.Env, "APP_ENV")
	str(&c.Addr, "ADDR")
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Addr = "0.0.0.0:" + port
	}
	str(&c.Log.Format, "LOG_FORMAT")
	str(&c.Log.Level, "LOG_LEVEL")

	str(&c.Database.Driver, "DB_DRIVER")
	str(&c.Database.URL, "DB_URL", "DATABASE_URL")
	str(&c.Database.Host, "DB_HOST")
	str(&c.Database.Port, "DB_PORT")
	str(&c.Database.User, "DB_USER")
	str(&c.Database.Password, "DB_PASSWORD")
	str(&c.Database.Name, "DB_NAME")
	str(&c.Database.SQLitePath, "SQLITE_PATH")

	str(&c.Cache.RedisURL, "REDIS_URL")
	dur(&c.Cache.DefaultTTL, "CACHE_DEFAULT_TTL")

	str(&c.Auth.SecretKey, "SECRET_KEY")
	dur(&c.Auth.TokenTTL, "TOKEN_TTL")
	if v, ok := lookup("MIN_PASSWORD_LENGTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MIN_PASSWORD_LENGTH: %w", err))
		} else {
			c.Auth.MinPasswordLength = n
		}
	}

	dur(&c.Health.OfflineThreshold, "OFFLINE_THRESHOLD")
	dur(&c.Health.CacheTTL, "HEALTH_CACHE_TTL")
	dur(&c.Query.CacheTTL, "QUERY_CACHE_TTL")

	str(&c.MQTT.BrokerURL, "MQTT_BROKER_URL")
	str(&c.MQTT.Topic, "MQTT_TOPIC")
	str(&c.MQTT.ClientID, "MQTT_CLIENT_ID")

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		d := c.Database
		if d.URL == "" && (d.Host == "" || d.Port == "" || d.User == "" || d.Password == "" || d.Name == "") {
			errs = append(errs, errors.New("missing required database configuration: DB_URL or (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite driver requires SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY must not be empty"))
	} else if c.IsProduction() && c.Auth.SecretKey == defaultSecretKey {
		errs = append(errs, errors.New("SECRET_KEY must be set in production"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Auth.MinPasswordLength < 1 {
		errs = append(errs, errors.New("MIN_PASSWORD_LENGTH must be at least 1"))
	}
	if c.Health.OfflineThreshold <= 0 || c.Health.CacheTTL <= 0 {
		errs = append(errs, errors.New("health threshold and cache TTL must be positive"))
	}
	if c.Query.CacheTTL <= 0 || c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
