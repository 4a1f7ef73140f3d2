// Package serverapp wires configuration, observability, the database, the
// blog schema and the HTTP server into one lifecycle: New, Init, Start,
// WaitForStop, Shutdown.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"relayloader/internal/config"
	"relayloader/internal/datastore"
	"relayloader/internal/logging"
	"relayloader/internal/model"
	"relayloader/internal/observability"

	"github.com/graphql-go/graphql"
)

// App owns runtime resources for the relayloader server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	loaderMetrics  *observability.LoaderMetrics
	requestMetrics *observability.RequestMetrics

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	models *model.Registry
	store  *datastore.SQLStore
	schema graphql.Schema

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// shutdownContext bounds cleanup by the configured shutdown timeout.
func (a *App) shutdownContext() (context.Context, context.CancelFunc) {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
