// Package config loads the server configuration from layered YAML files
// and environment variables, validates it, and reloads it in development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Config is the complete server configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server"`
	WebSocket   WebSocket   `yaml:"websocket"`
	Storage     Storage     `yaml:"storage"`
	Security    Security    `yaml:"security"`
	Logging     Logging     `yaml:"logging"`
	Metrics     Metrics     `yaml:"metrics"`
	Tracing     Tracing     `yaml:"tracing"`
	Events      Events      `yaml:"events"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host" validate:"required"`
	Port            int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"required"`
}

// Address is host:port.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocket configures the connection hub.
type WebSocket struct {
	ReadBufferSize           int `yaml:"read_buffer_size" validate:"min=0"`
	WriteBufferSize          int `yaml:"write_buffer_size" validate:"min=0"`
	SendBufferSize           int `yaml:"send_buffer_size" validate:"min=1"`
	MaxConnections           int `yaml:"max_connections" validate:"min=0"`
	MaxConnectionsPerSubject int `yaml:"max_connections_per_subject" validate:"min=0"`
}

// Storage selects and configures the record store.
type Storage struct {
	Backend          string        `yaml:"backend" validate:"required,oneof=memory dynamodb sqlite"`
	TableName        string        `yaml:"table_name"`
	Region           string        `yaml:"region"`
	Endpoint         string        `yaml:"endpoint"`
	SQLitePath       string        `yaml:"sqlite_path"`
	EnableBreaker    bool          `yaml:"enable_breaker"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout" validate:"min=0"`
	BreakerThreshold float64       `yaml:"breaker_threshold" validate:"gte=0,lte=1"`
}

// Security configures connection identity.
type Security struct {
	EnableAuth     bool          `yaml:"enable_auth"`
	JWTSecret      string        `yaml:"jwt_secret"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	JWTAudience    []string      `yaml:"jwt_audience"`
	JWTExpiry      time.Duration `yaml:"jwt_expiry" validate:"min=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json console"`
}

// Metrics configures the prometheus collector and the optional CloudWatch
// push.
type Metrics struct {
	Enabled             bool          `yaml:"enabled"`
	Namespace           string        `yaml:"namespace" validate:"required"`
	CloudWatch          bool          `yaml:"cloudwatch"`
	CloudWatchNamespace string        `yaml:"cloudwatch_namespace"`
	PushInterval        time.Duration `yaml:"push_interval" validate:"min=0"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name" validate:"required"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Events configures activity publishing.
type Events struct {
	Enabled       bool          `yaml:"enabled"`
	EventBusName  string        `yaml:"event_bus_name"`
	QueueSize     int           `yaml:"queue_size" validate:"min=1"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"required"`
}

var validate = validator.New()

// Validate checks field tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}

	if c.Security.EnableAuth && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required when auth is enabled")
	}
	switch c.Storage.Backend {
	case BackendDynamoDB:
		if c.Storage.TableName == "" {
			return fmt.Errorf("storage.table_name is required for the dynamodb backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	}
	if c.Events.Enabled && c.Events.EventBusName == "" {
		return fmt.Errorf("events.event_bus_name is required when events are enabled")
	}
	if c.Metrics.CloudWatch && !c.Metrics.Enabled {
		return fmt.Errorf("metrics.cloudwatch requires metrics.enabled")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
