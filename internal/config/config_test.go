package config

import (
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
	}{
		{
			name:   "basic DSN",
			config: DatabaseConfig{Host: "localhost", Port: 4000, User: "root", Password: "password", Database: "test"},
		},
		{
			name:   "with special characters in password",
			config: DatabaseConfig{Host: "db.example.com", Port: 3306, User: "admin", Password: "p@ss:w0rd!", Database: "mydb"},
		},
		{
			name:   "empty password",
			config: DatabaseConfig{Host: "localhost", Port: 4000, User: "root", Database: "test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := mysql.ParseDSN(tt.config.DSN())
			require.NoError(t, err)
			assert.Equal(t, tt.config.User, parsed.User)
			assert.Equal(t, tt.config.Password, parsed.Passwd)
			assert.Equal(t, "tcp", parsed.Net)
			assert.Equal(t, net.JoinHostPort(tt.config.Host, strconv.Itoa(tt.config.Port)), parsed.Addr)
			assert.Equal(t, tt.config.Database, parsed.DBName)
			assert.True(t, parsed.ParseTime)
			assert.Equal(t, time.UTC, parsed.Loc)
		})
	}
}

func TestDatabaseConfig_DSNTLS(t *testing.T) {
	base := DatabaseConfig{Host: "localhost", Port: 4000, User: "root", Database: "test"}

	t.Run("no mode leaves the driver default", func(t *testing.T) {
		assert.NotContains(t, base.DSN(), "tls=")
	})

	t.Run("off", func(t *testing.T) {
		d := base
		d.TLS.Mode = "off"
		assert.Contains(t, d.DSN(), "tls=false")
	})

	t.Run("skip-verify", func(t *testing.T) {
		d := base
		d.TLS.Mode = "skip-verify"
		assert.Contains(t, d.DSN(), "tls=skip-verify")
	})

	for _, mode := range []string{"verify-ca", "verify-full"} {
		t.Run(mode, func(t *testing.T) {
			d := base
			d.TLS.Mode = mode
			assert.Contains(t, d.DSN(), "tls="+tlsConfigName)
		})
	}
}

func TestRegisterTLS(t *testing.T) {
	t.Run("no-op without a verify mode", func(t *testing.T) {
		d := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		assert.NoError(t, d.RegisterTLS())
	})

	t.Run("missing CA file", func(t *testing.T) {
		d := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "verify-ca", CAFile: filepath.Join(t.TempDir(), "missing.pem")}}
		err := d.RegisterTLS()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read CA file")
	})

	t.Run("CA file without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
		d := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "verify-full", CAFile: path}}
		err := d.RegisterTLS()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse CA certificate")
	})
}

func TestBuildTLSConfigServerName(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", TLS: DatabaseTLSConfig{Mode: "verify-full"}}
	cfg, err := d.buildTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.ServerName)
	assert.False(t, cfg.InsecureSkipVerify)

	d.TLS.ServerName = "db.internal"
	cfg, err = d.buildTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.ServerName)

	d.TLS.Mode = "verify-ca"
	cfg, err = d.buildTLSConfig()
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.NotNil(t, cfg.VerifyPeerCertificate)
	assert.Error(t, cfg.VerifyPeerCertificate(nil, nil))
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	defineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := load(newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxLimit)
	assert.Equal(t, 5, cfg.Server.NestingLimit)
	assert.Equal(t, "loaders", cfg.Server.LoadersKey)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Minute, cfg.Server.Auth.ClockSkew)
	assert.Equal(t, "relayloader", cfg.Observability.ServiceName)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	assert.Equal(t, 1.0, cfg.Observability.TraceSampleRatio)
	assert.Empty(t, cfg.Observability.OTLP.Headers)

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayloader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: db.internal
  database: blog
server:
  port: 9090
  max_limit: 20
  read_timeout: 3s
naming:
  plural_overrides:
    person: people
`), 0o600))

	t.Setenv("RELAYLOADER_SERVER_PORT", "7070")
	t.Setenv("RELAYLOADER_OBSERVABILITY_OTLP_HEADERS", "x-team=graph, x-env=dev")

	cfg, err := load(newFlagSet(t, "--config", path, "--server.max_limit=50", "--server.nesting_limit=2"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host, "file overrides defaults")
	assert.Equal(t, 7070, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 50, cfg.Server.MaxLimit, "flag overrides file")
	assert.Equal(t, 2, cfg.Server.NestingLimit)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, map[string]string{"person": "people"}, cfg.Naming.PluralOverrides)
	assert.Equal(t, map[string]string{"x-team": "graph", "x-env": "dev"}, cfg.Observability.OTLP.Headers)
}

func TestLoad_SecretFiles(t *testing.T) {
	dir := t.TempDir()
	pwdPath := filepath.Join(dir, "db-password")
	require.NoError(t, os.WriteFile(pwdPath, []byte("hunter2\n"), 0o600))
	secretPath := filepath.Join(dir, "jwt-secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("  signing-secret  "), 0o600))

	t.Setenv("HOME", dir)
	t.Chdir(dir)
	cfg, err := load(newFlagSet(t,
		"--database.password_file", pwdPath,
		"--server.auth.jwt_secret_file", secretPath,
	))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "signing-secret", cfg.Server.Auth.JWTSecret)

	t.Run("explicit password wins", func(t *testing.T) {
		cfg, err := load(newFlagSet(t, "--database.password", "direct", "--database.password_file", pwdPath))
		require.NoError(t, err)
		assert.Equal(t, "direct", cfg.Database.Password)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := load(newFlagSet(t, "--database.password_file", filepath.Join(dir, "nope")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password file")
	})
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing explicit config file", func(t *testing.T) {
		_, err := load(newFlagSet(t, "--config", filepath.Join(dir, "absent.yaml")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "unknown.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  rate_limit_rps: 10\n"), 0o600))
		_, err := load(newFlagSet(t, "--config", path))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal config")
	})

	t.Run("malformed header pairs", func(t *testing.T) {
		t.Setenv("HOME", dir)
		t.Chdir(dir)
		t.Setenv("RELAYLOADER_OBSERVABILITY_OTLP_HEADERS", "novalue")
		_, err := load(newFlagSet(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key=value pair")
	})
}

func TestStringToStringMapHook(t *testing.T) {
	hook := stringToStringMapHookFunc(",", "=").(func(reflect.Type, reflect.Type, interface{}) (interface{}, error))
	mapType := reflect.TypeOf(map[string]string{})

	out, err := hook(reflect.TypeOf(""), mapType, "a=1,b = 2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, out)

	out, err = hook(reflect.TypeOf(""), mapType, "  ")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{}, out)

	out, err = hook(reflect.TypeOf(0), mapType, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	_, err = hook(reflect.TypeOf(""), mapType, "=x")
	assert.Error(t, err)
}
