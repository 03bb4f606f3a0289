package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/audit"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/history"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the proxy engine surface the API uses.
type Engine interface {
	Snapshot() model.Snapshot
	Commands() []string
	Do(ctx context.Context, name string, args commands.Args) (any, error)
}

// HistoryStore answers history queries.
type HistoryStore interface {
	ListConversations(ctx context.Context, f history.Filter) (*history.ListResult, error)
	ListVoicemail(ctx context.Context, extension string, limit int) ([]history.VoicemailRecord, error)
}

// AuditLog records executed commands and lists them back.
type AuditLog interface {
	Record(e audit.Entry)
	List(ctx context.Context, f audit.Filter) (*audit.ListResult, error)
}

// HealthCheck checks one component. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger
	Engine   Engine

	// History is optional; history endpoints answer 503 without it.
	History HistoryStore

	// Audit is optional; without it commands are not recorded and the
	// command history endpoint answers 503.
	Audit AuditLog

	// AMIStats is optional and feeds the system endpoint.
	AMIStats func() ami.Stats

	// MetricsHandler serves Metrics.Path when metrics are enabled.
	MetricsHandler http.Handler

	// Checks are run by the health endpoint, keyed by component name.
	Checks map[string]HealthCheck

	// ExternalHub, if set, is used instead of a hub owned by the server.
	// The relay needs the hub before the server starts.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP API server of the CTI proxy.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	secCfg         config.SecurityConfig
	metricsCfg     config.MetricsConfig
	logger         *logging.Logger
	engine         Engine
	history        HistoryStore
	audit          AuditLog
	amiStats       func() ami.Stats
	metricsHandler http.Handler
	checks         map[string]HealthCheck
	version        string
	startTime      time.Time

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies. The server is
// not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		metricsCfg:     deps.Metrics,
		logger:         deps.Logger,
		engine:         deps.Engine,
		history:        deps.History,
		audit:          deps.Audit,
		amiStats:       deps.AMIStats,
		metricsHandler: deps.MetricsHandler,
		checks:         deps.Checks,
		version:        deps.Version,
		startTime:      time.Now(),
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the websocket hub, creating it if Start has not yet run.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Handler returns the router. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	s.Hub()
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. A bind
// failure is returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	hub := s.Hub()
	if !s.externalHub {
		go hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
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

// HealthCheck verifies the API server is running.
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
