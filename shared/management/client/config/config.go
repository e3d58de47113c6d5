package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/status"
	"github.com/netbirdio/peerctl/util"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
	DefaultCacheTTL      = 5 * time.Second
)

// Environment variables read by FromEnv. Durations are milliseconds or Go duration strings.
const (
	EnvURL               = "WG_URL"
	EnvPassword          = "WG_PASSWORD"
	EnvTimeout           = "WG_TIMEOUT"
	EnvRetryAttempts     = "WG_RETRY_ATTEMPTS"
	EnvRetryDelay        = "WG_RETRY_DELAY"
	EnvCacheTTL          = "WG_CACHE_TTL"
	EnvSessionTTL        = "WG_SESSION_TTL"
	EnvRequestsPerSecond = "WG_REQUESTS_PER_SECOND"
)

// Config holds everything needed to reach the service
type Config struct {
	URL           string
	Password      string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// CacheTTL is the lifetime of a fetched collection. Non-positive disables caching.
	CacheTTL time.Duration
	// SessionTTL expires the local session state. 0 means the session never expires locally.
	SessionTTL        time.Duration
	RequestsPerSecond float64

	// set by SetRetryAttempts so an explicit zero survives SetDefaults
	retrySet bool
}

// fileConfig is the JSON layout of a config file. Durations use time.ParseDuration syntax.
type fileConfig struct {
	URL               string   `json:"url"`
	Password          string   `json:"password"`
	Timeout           string   `json:"timeout"`
	RetryAttempts     *int     `json:"retryAttempts"`
	RetryDelay        string   `json:"retryDelay"`
	CacheTTL          string   `json:"cacheTTL"`
	SessionTTL        string   `json:"sessionTTL"`
	RequestsPerSecond *float64 `json:"requestsPerSecond"`
}

// Default returns a Config with every default applied and no URL
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills the zero valued fields. CacheTTL is only defaulted when it is exactly zero.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts == 0 && !c.retrySet {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// SetRetryAttempts sets the attempt count, keeping an explicit 0 through SetDefaults
func (c *Config) SetRetryAttempts(attempts int) {
	c.RetryAttempts = attempts
	c.retrySet = true
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.URL) == "" {
		result = multierror.Append(result, status.NewConfigurationError("service URL is required"))
	} else if u, err := url.Parse(c.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		result = multierror.Append(result, status.NewConfigurationError("invalid service URL %q", c.URL))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, status.NewConfigurationError("timeout must be positive, got %s", c.Timeout))
	}
	if c.RetryAttempts < 0 {
		result = multierror.Append(result, status.NewConfigurationError("retry attempts must not be negative, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		result = multierror.Append(result, status.NewConfigurationError("retry delay must not be negative, got %s", c.RetryDelay))
	}
	if c.SessionTTL < 0 {
		result = multierror.Append(result, status.NewConfigurationError("session TTL must not be negative, got %s", c.SessionTTL))
	}
	if c.RequestsPerSecond < 0 {
		result = multierror.Append(result, status.NewConfigurationError("requests per second must not be negative, got %v", c.RequestsPerSecond))
	}

	return result.ErrorOrNil()
}

// LoadEnvFiles loads .env files from the working directory when they exist.
// Variables already present in the process environment win.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.Warnf("failed to load %s: %v", file, err)
			continue
		}
		log.Debugf("loaded env file %s", file)
	}
}

// FromEnv builds a Config from the WG_* environment variables after loading .env
func FromEnv() (*Config, error) {
	LoadEnvFiles()

	rawURL, ok := os.LookupEnv(EnvURL)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return nil, status.NewConfigurationError("%s is not set", EnvURL)
	}

	c := &Config{URL: rawURL, Password: os.Getenv(EnvPassword)}

	var result *multierror.Error
	collect := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	collect(envMillis(EnvTimeout, &c.Timeout))
	collect(envMillis(EnvRetryDelay, &c.RetryDelay))
	collect(envMillis(EnvCacheTTL, &c.CacheTTL))
	if os.Getenv(EnvCacheTTL) != "" && c.CacheTTL == 0 {
		// explicit 0 disables caching instead of selecting the default
		c.CacheTTL = -1
	}
	collect(envMillis(EnvSessionTTL, &c.SessionTTL))

	if value := os.Getenv(EnvRetryAttempts); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			collect(status.NewConfigurationError("%s: invalid integer %q", EnvRetryAttempts, value))
		} else {
			c.SetRetryAttempts(n)
		}
	}
	if value := os.Getenv(EnvRequestsPerSecond); value != "" {
		rps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			collect(status.NewConfigurationError("%s: invalid number %q", EnvRequestsPerSecond, value))
		} else {
			c.RequestsPerSecond = rps
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func envMillis(key string, target *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := ParseDuration(value)
	if err != nil {
		return status.NewConfigurationError("%s: %v", key, err)
	}
	*target = d
	return nil
}

// ParseDuration reads a plain integer as milliseconds and anything else with time.ParseDuration
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q, use milliseconds or a value like 1.5s", value)
	}
	return d, nil
}

// ReadFile reads a JSON config file, {{ .VAR }} references are replaced from the environment. Missing fields keep their zero value, call SetDefaults afterwards.
func ReadFile(path string) (*Config, error) {
	if !util.FileExists(path) {
		return nil, status.NewConfigurationError("config file %s does not exist", path)
	}

	fc := &fileConfig{}
	if _, err := util.ReadJsonWithEnvSub(path, fc); err != nil {
		return nil, status.NewConfigurationError("read config file %s: %v", path, err)
	}

	c := &Config{URL: fc.URL, Password: fc.Password}

	var result *multierror.Error
	for _, d := range []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"timeout", fc.Timeout, &c.Timeout},
		{"retryDelay", fc.RetryDelay, &c.RetryDelay},
		{"cacheTTL", fc.CacheTTL, &c.CacheTTL},
		{"sessionTTL", fc.SessionTTL, &c.SessionTTL},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			result = multierror.Append(result, status.NewConfigurationError("%s: %v", d.name, err))
			continue
		}
		*d.target = parsed
	}
	if fc.RetryAttempts != nil {
		c.SetRetryAttempts(*fc.RetryAttempts)
	}
	if fc.RequestsPerSecond != nil {
		c.RequestsPerSecond = *fc.RequestsPerSecond
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge overlays the non-zero fields of other onto c
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.URL != "" {
		c.URL = other.URL
	}
	if other.Password != "" {
		c.Password = other.Password
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
	if other.RetryAttempts != 0 || other.retrySet {
		c.SetRetryAttempts(other.RetryAttempts)
	}
	if other.RetryDelay != 0 {
		c.RetryDelay = other.RetryDelay
	}
	if other.CacheTTL != 0 {
		c.CacheTTL = other.CacheTTL
	}
	if other.SessionTTL != 0 {
		c.SessionTTL = other.SessionTTL
	}
	if other.RequestsPerSecond != 0 {
		c.RequestsPerSecond = other.RequestsPerSecond
	}
}

func (c *Config) String() string {
	password := ""
	if c.Password != "" {
		password = "****"
	}
	return fmt.Sprintf("url=%s password=%s timeout=%s retries=%d delay=%s cache=%s session=%s rps=%v",
		c.URL, password, c.Timeout, c.RetryAttempts, c.RetryDelay, c.CacheTTL, c.SessionTTL, c.RequestsPerSecond)
}
