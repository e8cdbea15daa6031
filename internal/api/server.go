package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/netfleet-core/internal/audit"
	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/observability"
	"github.com/nerrad567/netfleet-core/internal/orchestrator"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Fleet is the orchestration surface the API drives.
// *orchestrator.Service implements it.
type Fleet interface {
	Get(id ids.DeviceID) (*device.Device, error)
	List() []*device.Device
	Connections() []inventory.ConnectionInfo

	DiscoverDevices(ctx context.Context) ([]ids.DeviceID, error)
	DiscoverAndProvision(ctx context.Context) (*orchestrator.BatchReport, error)
	AdoptDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error)
	MarkProvisioned(ctx context.Context, id ids.DeviceID, model, firmware string) (*device.Device, error)
	SyncInventory(ctx context.Context, id ids.DeviceID) (*device.Device, error)
	ConfigureDevice(ctx context.Context, id ids.DeviceID, ifaces []network.InterfaceConfig, vlans []network.VLANConfig) (*device.Device, error)
	RenameDevice(ctx context.Context, id ids.DeviceID, name string) (*device.Device, error)
	ReportFailure(ctx context.Context, id ids.DeviceID, reason string) (*device.Device, error)
	RecoverDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error)
	DecommissionDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error)
	ReplayEvents(ctx context.Context, id ids.DeviceID) (*device.Device, error)
	ConnectDevices(ctx context.Context, spec topology.ConnectionSpec) (ids.ConnectionID, error)
	DisconnectDevices(ctx context.Context, id ids.ConnectionID) error
}

// HealthChecker is implemented by the infrastructure clients (database,
// MQTT, InfluxDB) reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the server's collaborators. Logger, Fleet and Graph are
// required.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Projection config.ProjectionConfig
	Logger     *logging.Logger
	Fleet      Fleet
	Graph      *topology.Graph
	// Journal feeds the event stream; without it /ws is unavailable.
	Journal journal.Journal
	// Inventory answers address queries; optional.
	Inventory inventory.Inventory
	// Audit records the outcome of mutating calls; optional.
	Audit   audit.Repository
	Metrics *observability.Metrics
	Health  map[string]HealthChecker
	Version string
	// Clock stamps projection metadata; defaults to time.Now.
	Clock func() time.Time
}

// Server is the HTTP API server. Create it with New and start it with Start.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	projCfg   config.ProjectionConfig
	logger    *logging.Logger
	fleet     Fleet
	graph     *topology.Graph
	journal   journal.Journal
	inventory inventory.Inventory
	audit     audit.Repository
	metrics   *observability.Metrics
	health    map[string]HealthChecker
	version   string
	clock     func() time.Time
	started   time.Time

	hub    *Hub
	server *http.Server
	cancel context.CancelFunc
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.Fleet == nil {
		return nil, errors.New("api: fleet is required")
	}
	if deps.Graph == nil {
		return nil, errors.New("api: topology graph is required")
	}
	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		projCfg:   deps.Projection,
		logger:    deps.Logger.Component("api"),
		fleet:     deps.Fleet,
		graph:     deps.Graph,
		journal:   deps.Journal,
		inventory: deps.Inventory,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		health:    deps.Health,
		version:   deps.Version,
		clock:     deps.Clock,
		started:   time.Now(),
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler { return s.buildRouter() }

// Start begins listening in the background. It also starts the WebSocket
// hub's journal feed, which runs until Close or until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.journal != nil {
		go s.hub.Run(srvCtx, s.journal)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("api: listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the event feed and shuts the listener down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api: server not started")
	}
	return nil
}
