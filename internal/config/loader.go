package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from, lowest priority first: defaults, base.yaml,
// <environment>.yaml, local.yaml (development only), then environment
// variables.
type Loader struct {
	basePath    string
	environment Environment
	sources     []string
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	if env == "" {
		env = Development
	}
	return &Loader{basePath: basePath, environment: env}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	l.sources = nil
	cfg := l.defaultConfig()
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load local config: %w", err)
		}
	}

	l.loadEnvironmentVariables(cfg)
	l.sources = append(l.sources, "environment")
	cfg.LoadedFrom = l.sources

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays name.yaml or name.yml onto cfg.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		err = decodeYAML(file, cfg)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

func decodeYAML(r io.Reader, cfg *Config) error {
	err := yaml.NewDecoder(r).Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (l *Loader) loadEnvironmentVariables(cfg *Config) {
	// Server configuration
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if port := parseInt(val); port > 0 {
			cfg.Server.Port = port
		}
	}

	// Storage
	if val := os.Getenv("STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("TABLE_NAME"); val != "" {
		cfg.Storage.TableName = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.Storage.Region = val
	}
	if val := os.Getenv("DYNAMODB_ENDPOINT"); val != "" {
		cfg.Storage.Endpoint = val
	}
	if val := os.Getenv("SQLITE_PATH"); val != "" {
		cfg.Storage.SQLitePath = val
	}
	if val := os.Getenv("ENABLE_BREAKER"); val != "" {
		cfg.Storage.EnableBreaker = parseBool(val)
	}

	// Security
	if val := os.Getenv("ENABLE_AUTH"); val != "" {
		cfg.Security.EnableAuth = parseBool(val)
	}
	if val := os.Getenv("JWT_SECRET"); val != "" {
		cfg.Security.JWTSecret = val
	}
	if val := os.Getenv("JWT_ISSUER"); val != "" {
		cfg.Security.JWTIssuer = val
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.Security.AllowedOrigins = splitList(val)
	}

	// Observability
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("ENABLE_CLOUDWATCH_METRICS"); val != "" {
		cfg.Metrics.CloudWatch = parseBool(val)
	}
	if val := os.Getenv("CLOUDWATCH_NAMESPACE"); val != "" {
		cfg.Metrics.CloudWatchNamespace = val
	}
	if val := os.Getenv("ENABLE_TRACING"); val != "" {
		cfg.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}

	// Activity events
	if val := os.Getenv("ENABLE_EVENTS"); val != "" {
		cfg.Events.Enabled = parseBool(val)
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		cfg.Events.EventBusName = val
	}
}

func (l *Loader) defaultConfig() *Config {
	cfg := &Config{
		Environment: l.environment,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: WebSocket{
			ReadBufferSize:           1024,
			WriteBufferSize:          1024,
			SendBufferSize:           256,
			MaxConnections:           10000,
			MaxConnectionsPerSubject: 10,
		},
		Storage: Storage{
			Backend:          BackendMemory,
			TableName:        "coauthor-" + strings.ToLower(string(l.environment)),
			Region:           "us-east-1",
			SQLitePath:       "coauthor.db",
			BreakerTimeout:   60 * time.Second,
			BreakerThreshold: 0.8,
		},
		Security: Security{
			JWTIssuer:      "coauthor",
			JWTExpiry:      24 * time.Hour,
			AllowedOrigins: []string{"*"},
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled:             true,
			Namespace:           "coauthor",
			CloudWatchNamespace: "Coauthor",
			PushInterval:        time.Minute,
		},
		Tracing: Tracing{
			ServiceName: "coauthor-backend",
			SampleRate:  0.1,
		},
		Events: Events{
			EventBusName:  "coauthor-events",
			QueueSize:     1000,
			FlushInterval: time.Second,
		},
	}
	if l.environment == Development {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
		cfg.Tracing.SampleRate = 1.0
	}
	return cfg
}

func parseInt(s string) int {
	val, _ := strconv.Atoi(s)
	return val
}

func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvironment reads ENVIRONMENT, defaulting to development.
func GetEnvironment() Environment {
	switch env := Environment(strings.ToLower(os.Getenv("ENVIRONMENT"))); env {
	case Development, Staging, Production:
		return env
	default:
		return Development
	}
}

// Load reads the configuration from CONFIG_DIR (default ./config) for the
// environment named by ENVIRONMENT.
func Load() (*Config, error) {
	return NewLoader(ConfigDir(), GetEnvironment()).Load()
}

// ConfigDir is CONFIG_DIR or ./config.
func ConfigDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}
