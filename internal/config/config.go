// Package config loads scan-check settings from an optional YAML file and
// environment variables, environment winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/scan-check/internal/classifier"
)

// Transport names.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	LogLevel   string           `yaml:"log_level"`
}

type ClassifierConfig struct {
	Transport  string `yaml:"transport"`
	Endpoint   string `yaml:"endpoint"`
	GRPCAddr   string `yaml:"grpc_addr"`
	GRPCMethod string `yaml:"grpc_method"`
	// RequestTimeout of zero waits for the classifier indefinitely.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	DatabaseDSN string        `yaml:"database_dsn"`
	RedisAddr   string        `yaml:"redis_addr"`
	PreviewTTL  time.Duration `yaml:"preview_ttl"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTAudience string `yaml:"jwt_audience"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			Transport:  TransportHTTP,
			Endpoint:   classifier.DefaultEndpoint,
			GRPCMethod: classifier.DefaultGRPCMethod,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			PreviewTTL: time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Classifier.Transport = getEnv("SCANCHECK_TRANSPORT", c.Classifier.Transport)
	c.Classifier.Endpoint = getEnv("SCANCHECK_ENDPOINT", c.Classifier.Endpoint)
	c.Classifier.GRPCAddr = getEnv("SCANCHECK_GRPC_ADDR", c.Classifier.GRPCAddr)
	c.Classifier.GRPCMethod = getEnv("SCANCHECK_GRPC_METHOD", c.Classifier.GRPCMethod)
	c.Server.Listen = getEnv("SCANCHECK_LISTEN", c.Server.Listen)
	c.Storage.DatabaseDSN = getEnv("DATABASE_DSN", c.Storage.DatabaseDSN)
	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTAudience = getEnv("JWT_AUDIENCE", c.Auth.JWTAudience)
	c.LogLevel = getEnv("SCANCHECK_LOG_LEVEL", c.LogLevel)

	if raw := os.Getenv("SCANCHECK_REQUEST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid SCANCHECK_REQUEST_TIMEOUT: %w", err)
		}
		c.Classifier.RequestTimeout = d
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Classifier.Transport {
	case TransportHTTP:
		if c.Classifier.Endpoint == "" {
			return errors.New("classifier.endpoint is required for the http transport")
		}
	case TransportGRPC:
		if c.Classifier.GRPCAddr == "" {
			return errors.New("classifier.grpc_addr is required for the grpc transport")
		}
	default:
		return fmt.Errorf("invalid classifier.transport: %q", c.Classifier.Transport)
	}

	if c.Classifier.RequestTimeout < 0 {
		return fmt.Errorf("invalid classifier.request_timeout: %s", c.Classifier.RequestTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid server.shutdown_timeout: %s", c.Server.ShutdownTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
