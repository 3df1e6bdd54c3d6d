// Package config loads fieldmission settings from defaults, an optional YAML
// file, a .env file and FIELDMISSION_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FIELDMISSION_"

// Config holds the runtime settings of the client and its tooling.
type Config struct {
	APIBaseURL          string
	ProbeURL            string
	ProbeInterval       time.Duration
	GeocoderURL         string
	SearchDebounce      time.Duration
	SearchLimit         int
	SearchRatePerSecond float64
	RequestTimeout      time.Duration
	LocationTimeout     time.Duration
	LocationMaxAge      time.Duration

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	BlobDriver  string
	BlobRoot    string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	LogLevel         string
	LogFormat        string
	MetricsNamespace string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIBaseURL:          "https://demo.ngi-gps.com/apimobile/v1.0",
		ProbeURL:            "https://www.google.com",
		ProbeInterval:       10 * time.Second,
		GeocoderURL:         "https://nominatim.openstreetmap.org",
		SearchDebounce:      500 * time.Millisecond,
		SearchLimit:         10,
		SearchRatePerSecond: 5,
		RequestTimeout:      15 * time.Second,
		LocationTimeout:     15 * time.Second,
		LocationMaxAge:      60 * time.Second,
		StorageDriver:       "sqlite",
		SQLitePath:          "data/fieldmission.db",
		BlobDriver:          "fs",
		BlobRoot:            "data/photos",
		S3Region:            "us-east-1",
		LogLevel:            "info",
		LogFormat:           "text",
		MetricsNamespace:    "fieldmission",
	}
}

type binding struct {
	key   string
	apply func(c *Config, v string) error
}

func str(set func(c *Config, v string)) func(*Config, string) error {
	return func(c *Config, v string) error { set(c, v); return nil }
}

func dur(set func(c *Config, d time.Duration)) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		set(c, d)
		return nil
	}
}

var bindings = []binding{
	{"api_base_url", str(func(c *Config, v string) { c.APIBaseURL = strings.TrimRight(v, "/") })},
	{"probe_url", str(func(c *Config, v string) { c.ProbeURL = v })},
	{"probe_interval", dur(func(c *Config, d time.Duration) { c.ProbeInterval = d })},
	{"geocoder_url", str(func(c *Config, v string) { c.GeocoderURL = strings.TrimRight(v, "/") })},
	{"search_debounce", dur(func(c *Config, d time.Duration) { c.SearchDebounce = d })},
	{"search_limit", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.SearchLimit = n
		return nil
	}},
	{"search_rate_per_second", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.SearchRatePerSecond = f
		return nil
	}},
	{"request_timeout", dur(func(c *Config, d time.Duration) { c.RequestTimeout = d })},
	{"location_timeout", dur(func(c *Config, d time.Duration) { c.LocationTimeout = d })},
	{"location_max_age", dur(func(c *Config, d time.Duration) { c.LocationMaxAge = d })},
	{"storage_driver", str(func(c *Config, v string) { c.StorageDriver = strings.ToLower(v) })},
	{"sqlite_path", str(func(c *Config, v string) { c.SQLitePath = v })},
	{"postgres_dsn", str(func(c *Config, v string) { c.PostgresDSN = v })},
	{"blob_driver", str(func(c *Config, v string) { c.BlobDriver = strings.ToLower(v) })},
	{"blob_fs_root", str(func(c *Config, v string) { c.BlobRoot = v })},
	{"blob_s3_bucket", str(func(c *Config, v string) { c.S3Bucket = v })},
	{"blob_s3_region", str(func(c *Config, v string) { c.S3Region = v })},
	{"blob_s3_endpoint", str(func(c *Config, v string) { c.S3Endpoint = v })},
	{"blob_s3_path_style", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.S3PathStyle = b
		return nil
	}},
	{"log_level", str(func(c *Config, v string) { c.LogLevel = v })},
	{"log_format", str(func(c *Config, v string) { c.LogFormat = strings.ToLower(v) })},
	{"metrics_namespace", str(func(c *Config, v string) { c.MetricsNamespace = v })},
}

// Load resolves the configuration. path names an optional YAML file; when empty
// FIELDMISSION_CONFIG is consulted. A missing .env file is ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	// #nosec G304 -- operator supplied configuration path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	known := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		known[b.key] = struct{}{}
		v, ok := raw[b.key]
		if !ok || v == nil {
			continue
		}
		if err := b.apply(c, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config %s: %w", b.key, err)
		}
	}
	var unknown []string
	for k := range raw {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(unknown, ", "))
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, b := range bindings {
		name := EnvPrefix + strings.ToUpper(b.key)
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Validate reports inconsistent settings.
func (c Config) Validate() error {
	var problems []string
	switch c.StorageDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			problems = append(problems, "postgres storage requires postgres_dsn")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage driver %q", c.StorageDriver))
	}
	switch c.BlobDriver {
	case "fs", "memory":
	case "s3":
		if c.S3Bucket == "" {
			problems = append(problems, "s3 blob driver requires blob_s3_bucket")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob driver %q", c.BlobDriver))
	}
	if c.SearchDebounce <= 0 {
		problems = append(problems, "search_debounce must be positive")
	}
	if c.SearchLimit <= 0 {
		problems = append(problems, "search_limit must be positive")
	}
	if c.APIBaseURL == "" {
		problems = append(problems, "api_base_url is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}
