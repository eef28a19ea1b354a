// Package config loads service settings from defaults, an optional YAML file and
// the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    int    `yaml:"port"`
		Env     string `yaml:"env"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Log struct {
		Dir   string `yaml:"dir"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	Paths struct {
		Videos string `yaml:"videos"`
		Public string `yaml:"public"`
		State  string `yaml:"state"`
	} `yaml:"paths"`
	Browser struct {
		Mode     string `yaml:"mode"`
		Headless bool   `yaml:"headless"`
		Image    string `yaml:"image"`
		Install  bool   `yaml:"install"`
	} `yaml:"browser"`
	Storage struct {
		Driver          string        `yaml:"driver"`
		Region          string        `yaml:"region"`
		Bucket          string        `yaml:"bucket"`
		Endpoint        string        `yaml:"endpoint"`
		AccessKeyID     string        `yaml:"access_key_id"`
		SecretAccessKey string        `yaml:"secret_access_key"`
		URLExpiration   time.Duration `yaml:"url_expiration"`
	} `yaml:"storage"`
	RateLimit struct {
		PerHour int `yaml:"per_hour"`
		Burst   int `yaml:"burst"`
	} `yaml:"rate_limit"`
	Capture struct {
		MaxConcurrent int64 `yaml:"max_concurrent"`
	} `yaml:"capture"`
}

func Default() *Config {
	c := &Config{}
	c.Server.Port = 3000
	c.Server.Env = "production"
	c.Server.BaseURL = "http://localhost:3000"
	c.Log.Dir = "logs"
	c.Log.Level = "info"
	c.Paths.Videos = "videos"
	c.Paths.Public = "public/videos"
	c.Browser.Mode = "local"
	c.Browser.Headless = true
	c.Browser.Image = "browserless/chrome:latest"
	c.Storage.Driver = "s3"
	c.Storage.Region = "us-east-1"
	c.Storage.URLExpiration = 24 * time.Hour
	c.RateLimit.PerHour = 100
	c.RateLimit.Burst = 10
	c.Capture.MaxConcurrent = 4
	return c
}

// Load builds the configuration. A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// IsDevelopment reports whether error details may be shown to clients
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Server.Port))
	}
	switch c.Browser.Mode {
	case "local", "container":
	default:
		problems = append(problems, fmt.Sprintf("browser mode %q must be local or container", c.Browser.Mode))
	}
	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Bucket == "" {
			problems = append(problems, "AWS_BUCKET_NAME is required for the s3 storage driver")
		}
	case "local":
	default:
		problems = append(problems, fmt.Sprintf("storage driver %q must be s3 or local", c.Storage.Driver))
	}
	if c.Storage.URLExpiration <= 0 {
		problems = append(problems, "url expiration must be positive")
	}
	if c.RateLimit.PerHour <= 0 || c.RateLimit.Burst <= 0 {
		problems = append(problems, "rate limit and burst must be positive")
	}
	if c.Capture.MaxConcurrent <= 0 {
		problems = append(problems, "max concurrent captures must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	integer("PORT", &c.Server.Port)
	str("APP_ENV", &c.Server.Env)
	str("BASE_URL", &c.Server.BaseURL)
	str("LOG_DIR", &c.Log.Dir)
	str("LOG_LEVEL", &c.Log.Level)
	str("VIDEOS_DIR", &c.Paths.Videos)
	str("PUBLIC_DIR", &c.Paths.Public)
	str("STATE_DIR", &c.Paths.State)
	str("BROWSER_MODE", &c.Browser.Mode)
	str("BROWSER_IMAGE", &c.Browser.Image)
	if v, ok := lookup("BROWSER_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("BROWSER_HEADLESS: %v", err))
		} else {
			c.Browser.Headless = b
		}
	}
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("AWS_REGION", &c.Storage.Region)
	str("AWS_BUCKET_NAME", &c.Storage.Bucket)
	str("AWS_ENDPOINT_URL", &c.Storage.Endpoint)
	str("AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	if v, ok := lookup("URL_EXPIRATION"); ok && v != "" {
		d, err := parseExpiration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("URL_EXPIRATION: %v", err))
		} else {
			c.Storage.URLExpiration = d
		}
	}
	integer("RATE_LIMIT_PER_HOUR", &c.RateLimit.PerHour)
	integer("RATE_LIMIT_BURST", &c.RateLimit.Burst)
	var maxConcurrent int
	integer("MAX_CONCURRENT_CAPTURES", &maxConcurrent)
	if maxConcurrent != 0 {
		c.Capture.MaxConcurrent = int64(maxConcurrent)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseExpiration accepts a Go duration ("12h") or plain seconds ("3600")
func parseExpiration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
