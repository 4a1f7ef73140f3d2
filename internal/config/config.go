// Package config loads server configuration from defaults, a config file,
// RELAYLOADER_* environment variables and command line flags, in increasing
// precedence, and validates it.
package config

import (
	"time"

	"relayloader/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig controls TLS to the database.
type DatabaseTLSConfig struct {
	// Mode is off, skip-verify, verify-ca or verify-full. Empty leaves the
	// driver default.
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`
}

// AuthConfig controls bearer token verification for the viewer.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
	ClockSkew     time.Duration `mapstructure:"clock_skew"`
}

// ServerConfig holds HTTP server and resolver parameters.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	GraphiQLEnabled bool          `mapstructure:"graphiql_enabled"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxLimit caps list and page sizes.
	MaxLimit int `mapstructure:"max_limit"`
	// NestingLimit caps relation depth below a root field. Zero disables it.
	NestingLimit int `mapstructure:"nesting_limit"`
	// LoadersKey is the context namespace of the per-request loaders.
	LoadersKey string `mapstructure:"loaders_key"`

	Auth AuthConfig `mapstructure:"auth"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// OTLPConfig holds OTLP exporter parameters shared by traces and logs.
type OTLPConfig struct {
	Endpoint       string            `mapstructure:"endpoint"`
	Protocol       string            `mapstructure:"protocol"` // grpc, http/protobuf
	Insecure       bool              `mapstructure:"insecure"`
	CAFile         string            `mapstructure:"ca_file"`
	ClientCertFile string            `mapstructure:"client_cert_file"`
	ClientKeyFile  string            `mapstructure:"client_key_file"`
	Headers        map[string]string `mapstructure:"headers"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	Compression    string            `mapstructure:"compression"` // none, gzip
	RetryEnabled   bool              `mapstructure:"retry_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`
	OTLP             OTLPConfig    `mapstructure:"otlp"`
}
