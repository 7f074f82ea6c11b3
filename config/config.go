// Package config loads the storefront configuration from a YAML file with
// STOREFRONT_* environment overrides.
package config

import (
	"os"
	"strings"
	"time"

	cstr "github.com/agentuity/go-storefront/string"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Storage and event drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Environment variables that override the file.
const (
	EnvEndpoint         = "STOREFRONT_REALTIME_ENDPOINT"
	EnvOrigin           = "STOREFRONT_REALTIME_ORIGIN"
	EnvHandshakeTimeout = "STOREFRONT_HANDSHAKE_TIMEOUT"
	EnvStorageDriver    = "STOREFRONT_STORAGE_DRIVER"
	EnvStoragePath      = "STOREFRONT_STORAGE_PATH"
	EnvStoragePrefix    = "STOREFRONT_STORAGE_PREFIX"
	EnvQueryTimeout     = "STOREFRONT_QUERY_TIMEOUT"
	EnvEventsDriver     = "STOREFRONT_EVENTS_DRIVER"
	EnvRedisURL         = "STOREFRONT_REDIS_URL"
	EnvShutdownTimeout  = "STOREFRONT_SHUTDOWN_TIMEOUT"
)

// Duration is a time.Duration that reads "90s", "1h30m" or "2d" from YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	return str2duration.String(time.Duration(d))
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func parseDuration(s string) (Duration, error) {
	v, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return Duration(v), nil
}

type Realtime struct {
	Endpoint         string   `yaml:"endpoint"`
	Origin           string   `yaml:"origin,omitempty"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
}

type Storage struct {
	Driver       string   `yaml:"driver"`
	Path         string   `yaml:"path,omitempty"`
	Prefix       string   `yaml:"prefix,omitempty"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

type Events struct {
	Driver string `yaml:"driver"`
}

type Config struct {
	Realtime        Realtime          `yaml:"realtime"`
	Storage         Storage           `yaml:"storage"`
	Events          Events            `yaml:"events"`
	RedisURL        cstr.MaskedString `yaml:"redis_url,omitempty"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Realtime: Realtime{HandshakeTimeout: Duration(10 * time.Second)},
		Storage: Storage{
			Driver:       DriverSQLite,
			Path:         "storefront.db",
			Prefix:       "storefront",
			QueryTimeout: Duration(5 * time.Second),
		},
		Events:          Events{Driver: DriverMemory},
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

// Load reads path over the defaults, then applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return errors.Wrap(err, key)
		}
		*dst = d
		return nil
	}
	str(EnvEndpoint, &c.Realtime.Endpoint)
	str(EnvOrigin, &c.Realtime.Origin)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvStoragePath, &c.Storage.Path)
	str(EnvStoragePrefix, &c.Storage.Prefix)
	str(EnvEventsDriver, &c.Events.Driver)
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.RedisURL = cstr.MaskedString(v)
	}
	if err := dur(EnvHandshakeTimeout, &c.Realtime.HandshakeTimeout); err != nil {
		return err
	}
	if err := dur(EnvQueryTimeout, &c.Storage.QueryTimeout); err != nil {
		return err
	}
	return dur(EnvShutdownTimeout, &c.ShutdownTimeout)
}

// Validate checks that the configuration can be used to build an app.
func (c Config) Validate() error {
	if c.Realtime.Endpoint == "" {
		return errors.Newf("realtime endpoint is required (set realtime.endpoint or %s)", EnvEndpoint)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return errors.Newf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case DriverMemory, DriverRedis:
	default:
		return errors.Newf("unknown events driver %q", c.Events.Driver)
	}
	if (c.Storage.Driver == DriverRedis || c.Events.Driver == DriverRedis) && c.RedisURL == "" {
		return errors.Newf("redis_url is required by the redis driver (or set %s)", EnvRedisURL)
	}
	return nil
}
