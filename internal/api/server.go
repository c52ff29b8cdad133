package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Terminal3D/DLMS-Parser/internal/auth"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/logging"
	"github.com/Terminal3D/DLMS-Parser/internal/ingest"
	"github.com/Terminal3D/DLMS-Parser/internal/pipeline"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusProvider reports whether an optional connection is up.
type StatusProvider interface {
	IsConnected() bool
}

// InfluxStatus reports the metrics sink. *influxdb.Client satisfies it.
type InfluxStatus interface {
	StatusProvider
	WriteErrors() uint64
}

// MQTTStatus reports broker connectivity. *mqtt.Client satisfies it.
type MQTTStatus interface {
	StatusProvider
	Reconnects() uint64
	SubscriptionCount() int
}

// IngestStats exposes MQTT ingest counters for the metrics endpoint.
type IngestStats interface {
	Stats() ingest.Stats
}

// DBStats exposes connection pool statistics. *database.DB satisfies it.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Pipeline *pipeline.Pipeline
	History  history.Repository // nil disables the history endpoints
	MQTT     MQTTStatus         // optional
	InfluxDB InfluxStatus       // optional
	Ingest   IngestStats        // optional
	DB       DBStats            // optional
	Version  string
}

// Server is the HTTP API server for the DLMS parser.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	pipeline  *pipeline.Pipeline
	history   history.Repository
	mqtt      MQTTStatus
	influx    InfluxStatus
	ingest    IngestStats
	db        DBStats
	auth      *auth.Authenticator
	tickets   *ticketStore
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, pipeline)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Security.Auth.Enabled && deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("auth enabled: %w", auth.ErrMissingSecret)
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		pipeline:  deps.Pipeline,
		history:   deps.History,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		ingest:    deps.Ingest,
		db:        deps.DB,
		auth:      auth.NewAuthenticator(deps.Security),
		tickets:   newTicketStore(),
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, or nil before Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches it to the pipeline so decodes are
// broadcast, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)
	s.pipeline.SetHub(s.hub)

	go s.cleanTicketsLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stop broadcasting before the hub closes its clients.
	s.pipeline.SetHub(nil)

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
