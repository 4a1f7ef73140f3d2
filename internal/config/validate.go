package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateOverrides(result, "naming.plural_overrides", c.Naming.PluralOverrides)
	validateOverrides(result, "naming.singular_overrides", c.Naming.SingularOverrides)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.Host) == "" {
		result.fail("database.host", "host cannot be empty", "")
	}
	if d.Port < 1 || d.Port > 65535 {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}
	if strings.TrimSpace(d.Database) == "" {
		result.fail("database.database", "database name cannot be empty", "")
	}
	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle",
			fmt.Sprintf("max_idle (%d) exceeds max_open (%d)", d.Pool.MaxIdle, d.Pool.MaxOpen),
			"the driver caps idle connections at max_open")
	}
	if d.Pool.MaxLifetime < 0 {
		result.fail("database.pool.max_lifetime", "max_lifetime cannot be negative", "")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	switch t.Mode {
	case "", "off", "skip-verify", "verify-ca", "verify-full":
	default:
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes",
			"set ca_file to the CA certificate")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.MaxLimit < 1 {
		result.fail("server.max_limit", "max_limit must be at least 1", "")
	}
	if s.NestingLimit < 0 {
		result.fail("server.nesting_limit", "nesting_limit cannot be negative", "use 0 to disable the check")
	}
	if s.NestingLimit == 0 {
		result.warn("server.nesting_limit", "relation nesting is unbounded", "set nesting_limit to cap query depth")
	}
	if strings.TrimSpace(s.LoadersKey) == "" {
		result.fail("server.loaders_key", "loaders_key cannot be empty", "")
	}
	for field, d := range map[string]int64{
		"server.read_timeout":     int64(s.ReadTimeout),
		"server.write_timeout":    int64(s.WriteTimeout),
		"server.idle_timeout":     int64(s.IdleTimeout),
		"server.shutdown_timeout": int64(s.ShutdownTimeout),
	} {
		if d < 0 {
			result.fail(field, "timeout cannot be negative", "")
		}
	}
	s.Auth.validate(result)
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCIssuerURL != "" {
		parsed, err := url.Parse(a.OIDCIssuerURL)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			result.fail("server.auth.oidc_issuer_url", fmt.Sprintf("invalid issuer URL %q", a.OIDCIssuerURL),
				"use an https URL")
		}
		if a.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "audience is required with oidc_issuer_url", "")
		}
		if a.JWTSecret != "" {
			result.warn("server.auth.jwt_secret", "jwt_secret is ignored when oidc_issuer_url is set", "")
		}
	}
	if a.JWTSecret != "" && len(a.JWTSecret) < 32 {
		result.warn("server.auth.jwt_secret", "jwt_secret is shorter than 32 bytes", "")
	}
	if a.ClockSkew < 0 {
		result.fail("server.auth.clock_skew", "clock_skew cannot be negative", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio",
			fmt.Sprintf("sample ratio %g is outside 0.0-1.0", o.TraceSampleRatio), "")
	}
	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q", o.Endpoint),
			"use host:port or a full URL")
	}
	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if (o.ClientCertFile == "") != (o.ClientKeyFile == "") {
		result.fail(prefix+".client_cert_file", "both client_cert_file and client_key_file must be set", "")
	}
	if o.Insecure && o.CAFile != "" {
		result.warn(prefix+".ca_file", "ca_file is ignored when insecure is set", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validateOverrides(result *ValidationResult, field string, overrides map[string]string) {
	for from, to := range overrides {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			result.fail(field, fmt.Sprintf("override %q -> %q has an empty side", from, to), "")
		}
	}
}
