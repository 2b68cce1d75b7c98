// Package config provides configuration parsing for the geostorm server.
//
// Settings come from, in order of precedence:
//  1. Command-line flags
//  2. Environment variables (optionally seeded from a .env file, see ENV_FILE)
//  3. A YAML file named by -config-file or CONFIG_FILE
//  4. Default values
//
// Example:
//
//	cfg := config.ParseFlags()
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/geostorm/pkg/storage"
	"github.com/HatiCode/geostorm/pkg/tls"
)

// Model backends.
const (
	ModelArtifact = "artifact"
	ModelBYOM     = "byom"
)

// Artifact sources.
const (
	SourceFile   = "file"
	SourceMemory = "memory"
	SourceRedis  = "redis"
	SourceBolt   = "bolt"
)

// Config holds all server configuration.
type Config struct {
	Listen          string        `yaml:"listen"`
	GRPCListen      string        `yaml:"grpcListen"`
	LogFormat       string        `yaml:"logFormat"`
	LogLevel        string        `yaml:"logLevel"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Model       string `yaml:"model"`
	ModelSource string `yaml:"modelSource"`
	ModelPath   string `yaml:"modelPath"`
	ModelName   string `yaml:"modelName"`

	BYOMURL       string        `yaml:"byomURL"`
	BYOMTimeout   time.Duration `yaml:"byomTimeout"`
	BYOMValuePath string        `yaml:"byomValuePath"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	BoltPath      string `yaml:"boltPath"`

	MaxUploadBytes int64   `yaml:"maxUploadBytes"`
	RateLimit      float64 `yaml:"rateLimit"`
	RateBurst      int     `yaml:"rateBurst"`

	TLS tls.Config `yaml:"tls"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:          ":8080",
		LogFormat:       "text",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Model:           ModelArtifact,
		ModelSource:     SourceFile,
		ModelPath:       "artifacts/geomagnetic_model.json",
		ModelName:       "geomagnetic",
		BYOMTimeout:     5 * time.Second,
		BYOMValuePath:   "prediction",
		RedisAddr:       "localhost:6379",
		BoltPath:        "geostorm.db",
		MaxUploadBytes:  10 << 20,
		RateBurst:       20,
	}
}

// ParseFlags parses os.Args and the environment into a Config, exiting the
// process on invalid configuration.
func ParseFlags() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Load builds a validated Config from args and the environment.
func Load(args []string) (*Config, error) {
	if err := loadEnvFile(argValue(args, "env-file", os.Getenv("ENV_FILE"))); err != nil {
		return nil, err
	}

	base := Defaults()
	if path := argValue(args, "config-file", os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &base); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	flags := flag.NewFlagSet("geostorm", flag.ContinueOnError)

	flags.String("config-file", "", "YAML configuration file")
	flags.String("env-file", "", ".env file to load into the environment")

	flags.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", base.Listen), "HTTP listen address")
	flags.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", base.GRPCListen), "gRPC listen address (empty disables gRPC)")
	flags.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", base.LogFormat), "Log format: text or json")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", base.LogLevel), "Log level: debug, info, warn, error")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SHUTDOWN_TIMEOUT", base.ShutdownTimeout), "Graceful shutdown timeout")

	flags.StringVar(&cfg.Model, "model", getEnv("MODEL", base.Model), "Model backend: artifact or byom")
	flags.StringVar(&cfg.ModelSource, "model-source", getEnv("MODEL_SOURCE", base.ModelSource), "Artifact source: file, memory, redis or bolt")
	flags.StringVar(&cfg.ModelPath, "model-path", getEnv("MODEL_PATH", base.ModelPath), "Artifact file path (model-source=file|memory)")
	flags.StringVar(&cfg.ModelName, "model-name", getEnv("MODEL_NAME", base.ModelName), "Artifact name in the store (model-source=memory|redis|bolt)")

	flags.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", base.BYOMURL), "BYOM service URL (required when model=byom)")
	flags.DurationVar(&cfg.BYOMTimeout, "byom-timeout", getEnvDuration("BYOM_TIMEOUT", base.BYOMTimeout), "BYOM request timeout")
	flags.StringVar(&cfg.BYOMValuePath, "byom-value-path", getEnv("BYOM_VALUE_PATH", base.BYOMValuePath), "gjson path of the prediction in BYOM responses")

	flags.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", base.RedisAddr), "Redis server address")
	flags.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", base.RedisPassword), "Redis password")
	flags.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", base.RedisDB), "Redis database number")
	flags.StringVar(&cfg.BoltPath, "bolt-path", getEnv("BOLT_PATH", base.BoltPath), "bbolt database file")

	flags.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", getEnvInt64("MAX_UPLOAD_BYTES", base.MaxUploadBytes), "Maximum request body size")
	flags.Float64Var(&cfg.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT", base.RateLimit), "Requests per second (0 disables limiting)")
	flags.IntVar(&cfg.RateBurst, "rate-burst", getEnvInt("RATE_BURST", base.RateBurst), "Rate limiter burst")

	flags.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", base.TLS.Enabled), "Enable mTLS for the HTTP and gRPC servers and BYOM calls")
	flags.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", base.TLS.CertFile), "TLS certificate file")
	flags.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", base.TLS.KeyFile), "TLS private key file")
	flags.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", base.TLS.CAFile), "TLS CA certificate file")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	switch c.Model {
	case ModelArtifact:
		switch c.ModelSource {
		case SourceFile:
			if c.ModelPath == "" {
				return errors.New("model path is required when model-source=file")
			}
		case SourceMemory:
			if c.ModelPath == "" {
				return errors.New("model path is required when model-source=memory")
			}
			if err := storage.ValidateName(c.ModelName); err != nil {
				return err
			}
		case SourceRedis:
			if c.RedisAddr == "" {
				return errors.New("redis address is required when model-source=redis")
			}
			if err := storage.ValidateName(c.ModelName); err != nil {
				return err
			}
		case SourceBolt:
			if c.BoltPath == "" {
				return errors.New("bolt path is required when model-source=bolt")
			}
			if err := storage.ValidateName(c.ModelName); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid model source %q (must be file, memory, redis or bolt)", c.ModelSource)
		}
	case ModelBYOM:
		if c.BYOMURL == "" {
			return errors.New("byom url is required when model=byom")
		}
		if c.BYOMTimeout <= 0 {
			return errors.New("byom timeout must be > 0")
		}
	default:
		return fmt.Errorf("invalid model %q (must be artifact or byom)", c.Model)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be > 0")
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be > 0")
	}

	return c.TLS.Validate()
}

func loadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// argValue returns the value of -name or --name in args, or def. It lets
// file-based settings be resolved before the full flag set is defined.
func argValue(args []string, name, def string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		trimmed := strings.TrimPrefix(strings.TrimPrefix(a, "-"), "-")
		if trimmed == a {
			continue
		}
		if v, ok := strings.CutPrefix(trimmed, name+"="); ok {
			return v
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var i int64
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
