package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relayloader/internal/blog"
	"relayloader/internal/config"
	"relayloader/internal/datastore"
	"relayloader/internal/dbexec"
	"relayloader/internal/loader"
	"relayloader/internal/logging"
	"relayloader/internal/middleware"
	"relayloader/internal/model"
	"relayloader/internal/naming"
	"relayloader/internal/observability"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	healthCheckTimeout = 2 * time.Second
	connectTimeout     = 10 * time.Second
)

func exporterConfig(cfg *config.Config) observability.Config {
	otlp := cfg.Observability.OTLP
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		Exporter: observability.ExporterConfig{
			Endpoint:       otlp.Endpoint,
			Protocol:       otlp.Protocol,
			Insecure:       otlp.Insecure,
			CAFile:         otlp.CAFile,
			ClientCertFile: otlp.ClientCertFile,
			ClientKeyFile:  otlp.ClientKeyFile,
			Headers:        otlp.Headers,
			Timeout:        otlp.Timeout,
			Compression:    otlp.Compression,
			Retry:          otlp.RetryEnabled,
		},
	}
}

// InitLogger builds the process logger and, when log exports are enabled, the
// OTLP logger provider it also writes to.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Bool("insecure", cfg.Observability.OTLP.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, exporterConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized successfully")

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.LoaderMetrics, *observability.RequestMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(exporterConfig(cfg))
	if err != nil {
		return nil, nil, nil, err
	}
	loaderMetrics, requestMetrics, err := observability.InitMetrics()
	if err != nil {
		_ = meterProvider.Shutdown(context.Background())
		return nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully",
		slog.String("service_name", cfg.Observability.ServiceName),
	)
	return meterProvider, loaderMetrics, requestMetrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(ctx, exporterConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	// verify-ca and verify-full need a registered TLS config before Open.
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			dbStatsReg = nil
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database", cfg.Database.Database),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// buildSchema declares the blog models over a SQL store and derives the
// GraphQL schema from them.
func buildSchema(cfg *config.Config, logger *logging.Logger, db *sql.DB, loaderMetrics *observability.LoaderMetrics) (*model.Registry, *datastore.SQLStore, graphql.Schema, error) {
	models, err := blog.Models()
	if err != nil {
		return nil, nil, graphql.Schema{}, err
	}
	store := datastore.New(dbexec.NewStandardExecutor(db), datastore.WithMetrics(loaderMetrics))

	schema, builder, err := blog.NewSchema(blog.Config{
		Models:       models,
		Store:        store,
		Namer:        naming.New(cfg.Naming, logger.Logger),
		LoadersKey:   cfg.Server.LoadersKey,
		MaxLimit:     cfg.Server.MaxLimit,
		NestingLimit: cfg.Server.NestingLimit,
	})
	if err != nil {
		return nil, nil, graphql.Schema{}, err
	}

	logger.Info("GraphQL schema built",
		slog.Any("models", models.Names()),
		slog.Int("bound_fields", builder.Bindings().Len()),
		slog.Int("max_limit", cfg.Server.MaxLimit),
		slog.Int("nesting_limit", cfg.Server.NestingLimit),
	)
	return models, store, schema, nil
}

func authConfig(cfg *config.Config) middleware.AuthConfig {
	auth := cfg.Server.Auth
	return middleware.AuthConfig{
		OIDCIssuerURL: auth.OIDCIssuerURL,
		OIDCCAFile:    auth.OIDCCAFile,
		HMACSecret:    auth.JWTSecret,
		Issuer:        auth.JWTIssuer,
		Audience:      auth.OIDCAudience,
		ClockSkew:     auth.ClockSkew,
	}
}

// buildGraphQLHandler serves the schema behind the request middleware. The
// chain is:
//
//	request -> logging -> auth -> loaders -> metrics -> graphql
func buildGraphQLHandler(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
	schema graphql.Schema,
	models *model.Registry,
	store loader.Store,
	loaderMetrics *observability.LoaderMetrics,
	requestMetrics *observability.RequestMetrics,
) (http.Handler, error) {
	var h http.Handler = handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	h = middleware.MetricsMiddleware(requestMetrics)(h)

	var loaderOpts []loader.RegistryOption
	if loaderMetrics != nil {
		loaderOpts = append(loaderOpts, loader.WithMetrics(loaderMetrics))
	}
	h = middleware.Loaders(models, store, cfg.Server.LoadersKey, loaderOpts...)(h)

	authMiddleware, err := middleware.AuthMiddleware(ctx, authConfig(cfg))
	if err != nil {
		return nil, err
	}
	h = authMiddleware(h)
	switch {
	case cfg.Server.Auth.OIDCIssuerURL != "":
		logger.Info("bearer tokens verified by OIDC issuer", slog.String("issuer", cfg.Server.Auth.OIDCIssuerURL))
	case cfg.Server.Auth.JWTSecret != "":
		logger.Info("bearer tokens verified with HS256 secret")
	default:
		logger.Warn("authentication disabled; the viewer field always fails")
	}

	return middleware.LoggingMiddleware(logger)(h), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/health", healthHandler(db, healthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, h http.Handler) http.Handler {
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		return h
	}
	logger.Info("HTTP instrumentation enabled")
	return otelhttp.NewHandler(h, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return httpRootSpanName(r)
		}),
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, h http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler reports whether the database answers a ping.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if db == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"not configured"}`)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
