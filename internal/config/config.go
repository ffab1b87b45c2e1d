// Package config loads the fbupload command configuration from flags, environment and config file
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdragon300/fbupload"
	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

const EnvPrefix = "FBUPLOAD"

// Keys are both viper keys and command line flag names
const (
	KeyAccessToken = "access-token"
	KeyAppSecret   = "app-secret"
	KeyAPIVersion  = "api-version"
	KeyGraphURL    = "graph-url"
	KeyChunkSize   = "chunk-size"
	KeyMaxTries    = "max-tries"
	KeyHTTPTimeout = "http-timeout"
	KeyHTTPRetries = "http-retries"
	KeyDebug       = "debug"
	KeyConfigFile  = "config"
)

type Config struct {
	AccessToken string
	AppSecret   string
	APIVersion  string
	GraphURL    string
	// ChunkSize is 0 if the server decides the chunk boundaries
	ChunkSize   int64
	MaxTries    int
	HTTPTimeout time.Duration
	HTTPRetries int
	Debug       bool
}

// New returns a viper instance with defaults set, reading FBUPLOAD_* environment variables
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIVersion, fbupload.DefaultAPIVersion)
	v.SetDefault(KeyGraphURL, fbupload.DefaultGraphURL)
	v.SetDefault(KeyChunkSize, "")
	v.SetDefault(KeyMaxTries, fbupload.DefaultMaxTransferTries)
	v.SetDefault(KeyHTTPTimeout, 5*time.Minute)
	v.SetDefault(KeyHTTPRetries, 2)
	v.SetDefault(KeyDebug, false)
	return v
}

// Load reads the config file, if it's set, and builds Config
func Load(v *viper.Viper) (*Config, error) {
	if f := v.GetString(KeyConfigFile); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", f, err)
		}
	}

	cfg := &Config{
		AccessToken: v.GetString(KeyAccessToken),
		AppSecret:   v.GetString(KeyAppSecret),
		APIVersion:  v.GetString(KeyAPIVersion),
		GraphURL:    v.GetString(KeyGraphURL),
		MaxTries:    v.GetInt(KeyMaxTries),
		HTTPTimeout: v.GetDuration(KeyHTTPTimeout),
		HTTPRetries: v.GetInt(KeyHTTPRetries),
		Debug:       v.GetBool(KeyDebug),
	}

	var err error
	if cfg.ChunkSize, err = ParseChunkSize(v.GetString(KeyChunkSize)); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseChunkSize parses a human-readable size like "4MB" (binary units). Empty string means zero.
func ParseChunkSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size %q: %w", s, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("chunk size %q is negative", s)
	}
	return size, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.AccessToken == "" {
		errs = append(errs, errors.New("access token is not set"))
	}
	if c.GraphURL == "" {
		errs = append(errs, errors.New("graph url is not set"))
	}
	if c.MaxTries < 0 {
		errs = append(errs, fmt.Errorf("max tries %d is negative", c.MaxTries))
	}
	if c.HTTPRetries < 0 {
		errs = append(errs, fmt.Errorf("http retries %d is negative", c.HTTPRetries))
	}
	return errors.Join(errs...)
}
