// Package config reads process settings from the environment, optionally
// layered over a YAML file.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the engine. Precedence is defaults, then the
// file named by CONFIG_FILE, then individual environment variables.
type Config struct {
	APIBaseURL            string        `yaml:"api_base_url"`
	ListenPort            string        `yaml:"listen_port"`
	TokenRefreshInterval  time.Duration `yaml:"token_refresh_interval"`
	RemoteTimeout         time.Duration `yaml:"remote_timeout"`
	ReconcileWorkers      int           `yaml:"reconcile_workers"`
	ReconcileBuffer       int           `yaml:"reconcile_buffer"`
	ReconcileHandoff      time.Duration `yaml:"reconcile_handoff_timeout"`
	ExpireOverdue         bool          `yaml:"expire_overdue"`
	RedisConnectionString string        `yaml:"redis_connection_string"`
	CredentialsFile       string        `yaml:"credentials_file"`
	Debug                 bool          `yaml:"debug"`
}

// Default returns the built-in settings. APIBaseURL has no default.
func Default() Config {
	return Config{
		ListenPort:           "8080",
		TokenRefreshInterval: 4 * time.Minute,
		RemoteTimeout:        15 * time.Second,
		ReconcileWorkers:     4,
		ReconcileBuffer:      64,
		ReconcileHandoff:     15 * time.Millisecond,
	}
}

// Load builds the configuration from CONFIG_FILE and the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if v, ok := os.LookupEnv("API_BASE_URL"); ok {
		cfg.APIBaseURL = v
	}
	if v, ok := os.LookupEnv("LISTEN_PORT"); ok && v != "" {
		cfg.ListenPort = v
	}
	if v, ok := os.LookupEnv("REDIS_CONNECTION_STRING"); ok {
		cfg.RedisConnectionString = v
	}
	if v, ok := os.LookupEnv("CREDENTIALS_FILE"); ok {
		cfg.CredentialsFile = v
	}

	var errs []error
	errs = append(errs,
		envDur("TOKEN_REFRESH_INTERVAL", &cfg.TokenRefreshInterval),
		envDur("REMOTE_TIMEOUT", &cfg.RemoteTimeout),
		envDur("RECONCILE_HANDOFF_TIMEOUT", &cfg.ReconcileHandoff),
		envInt("RECONCILE_WORKERS", &cfg.ReconcileWorkers),
		envInt("RECONCILE_BUFFER", &cfg.ReconcileBuffer),
		envBool("EXPIRE_OVERDUE", &cfg.ExpireOverdue),
		envBool("DEBUG", &cfg.Debug),
	)
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return errors.New("missing API_BASE_URL")
	}
	if c.TokenRefreshInterval <= 0 {
		return errors.New("invalid TOKEN_REFRESH_INTERVAL: must be greater than zero")
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("invalid REMOTE_TIMEOUT: must be greater than zero")
	}
	if c.ReconcileWorkers <= 0 {
		return errors.New("invalid RECONCILE_WORKERS: must be greater than zero")
	}
	if c.ReconcileBuffer < 0 {
		return errors.New("invalid RECONCILE_BUFFER: must not be negative")
	}
	if c.ReconcileHandoff < 0 {
		return errors.New("invalid RECONCILE_HANDOFF_TIMEOUT: must not be negative")
	}
	return nil
}

// RedisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true"
// form used by hosted caches.
func RedisOptions(conn string) (*redis.Options, error) {
	if strings.TrimSpace(conn) == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDur(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
