package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/consultease-core/internal/consultation"
	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
	"github.com/nerrad567/consultease-core/internal/infrastructure/logging"
	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/consultease-core/internal/presence"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bus is the part of the message bus the API uses. *mqtt.Service satisfies it.
type Bus interface {
	Stats() mqtt.Stats
	HealthCheck(ctx context.Context) error
	RegisterHandler(pattern string, handler mqtt.MessageHandler) (mqtt.HandlerID, error)
	UnregisterHandler(id mqtt.HandlerID)
}

// PresenceReader reads stored faculty presence. *presence.SQLiteRepository
// satisfies it.
type PresenceReader interface {
	Get(ctx context.Context, facultyID int) (presence.Presence, error)
	List(ctx context.Context) ([]presence.Presence, error)
	History(ctx context.Context, facultyID int, limit int) ([]presence.HistoryEntry, error)
}

// Consultations sends requests and cancellations to desk units.
// *consultation.Notifier satisfies it.
type Consultations interface {
	SendRequest(ctx context.Context, facultyID int, req consultation.ConsultationRequest) error
	SendCancellationContext(ctx context.Context, facultyID int, c consultation.Cancellation) error
}

// HealthChecker is any component with a health probe, such as the database
// or the InfluxDB client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Logger        *logging.Logger
	Bus           Bus
	Presence      PresenceReader
	Consultations Consultations
	// Checks are reported by /health under their map key. Optional.
	Checks   map[string]HealthChecker
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the HTTP API server for ConsultEase.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	logger        *logging.Logger
	bus           Bus
	presence      PresenceReader
	consultations Consultations
	checks        map[string]HealthChecker
	gatherer      prometheus.Gatherer
	version       string
	startTime     time.Time

	hub      *Hub
	relayIDs []mqtt.HandlerID

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	// Presence and Consultations are optional; their routes answer 503 when unset.

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		bus:           deps.Bus,
		presence:      deps.Presence,
		consultations: deps.Consultations,
		checks:        deps.Checks,
		gatherer:      gatherer,
		version:       deps.Version,
		startTime:     time.Now(),
		hub:           NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, registers the bus handlers that feed it, and
// launches the HTTP listener in a background goroutine. The listener is bound
// before Start returns, so a port conflict is reported here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	// Internal context so Close() can stop the hub independently of the parent.
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.hub.Run(srvCtx)

	if err := s.startRelay(); err != nil {
		s.logger.Warn("websocket relay not subscribed", "error", err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.server, s.listener, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.stopRelay()
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
