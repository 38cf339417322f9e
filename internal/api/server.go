package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/brightears/soundtrack-auto-volume/internal/connection"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/logging"
	"github.com/brightears/soundtrack-auto-volume/internal/soundtrack"
	"github.com/brightears/soundtrack-auto-volume/internal/volume"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceRepository is the device store surface the API uses.
type DeviceRepository interface {
	List(ctx context.Context) ([]device.Device, error)
	GetByID(ctx context.Context, id string) (*device.Device, error)
	GetByIdentity(ctx context.Context, identity string) (*device.Device, error)
	Upsert(ctx context.Context, identity, name string) (*device.Device, error)
	Update(ctx context.Context, d *device.Device) error
	Delete(ctx context.Context, id string) error
}

// ConfigRepository is the zone config store surface the API uses.
type ConfigRepository interface {
	GetByID(ctx context.Context, id string) (*zone.Config, error)
	ListByDevice(ctx context.Context, deviceKey string) ([]zone.Config, error)
	Create(ctx context.Context, c *zone.Config) error
	Update(ctx context.Context, c *zone.Config) error
	Delete(ctx context.Context, id string) error
}

// Gateway is the device socket. It is mounted on the router and used to
// push operator commands to online devices.
type Gateway interface {
	http.Handler
	FactoryReset(identity string) error
	PushAccount(identity, accountID string) error
}

// ControlState exposes and resets per-zone control-loop state.
type ControlState interface {
	State(zoneID string) (volume.State, bool)
	Forget(zoneID string)
}

// ZoneService is the remote zone-control API.
type ZoneService interface {
	SearchAccounts(ctx context.Context, query string) ([]soundtrack.Account, error)
	ListZones(ctx context.Context, accountID string) ([]soundtrack.Zone, error)
	SetVolume(ctx context.Context, zoneID string, volume int) error
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	ZoneDefaults config.ZoneDefaultsConfig
	Logger       *logging.Logger
	Devices      DeviceRepository
	Configs      ConfigRepository
	Registry     *connection.Registry
	Gateway      Gateway
	Control      ControlState

	// ZoneService is optional; the soundtrack routes answer 503 without it.
	ZoneService ZoneService

	// Audit is optional; without it mutations are not recorded.
	Audit AuditLog

	// Checks are reported by /health. A failing check turns the response 503.
	Checks map[string]HealthChecker

	// Hub is optional. When set, the server broadcasts through it instead
	// of creating its own, so other components can publish events.
	Hub     *Hub
	Version string
}

// Server is the operator HTTP API.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	zoneDefaults zone.Defaults
	logger       *logging.Logger
	devices      DeviceRepository
	configs      ConfigRepository
	registry     *connection.Registry
	gateway      Gateway
	control      ControlState
	zoneService  ZoneService
	audit        AuditLog
	checks       map[string]HealthChecker
	version      string
	startTime    time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("control state is required")
	}

	d := deps.ZoneDefaults
	s := &Server{
		cfg:   deps.Config,
		wsCfg: deps.WS,
		zoneDefaults: zone.Defaults{
			MinVolume:        d.MinVolume,
			MaxVolume:        d.MaxVolume,
			QuietThresholdDB: d.QuietThresholdDB,
			LoudThresholdDB:  d.LoudThresholdDB,
			SmoothingFactor:  d.SmoothingFactor,
			SustainCount:     d.SustainCount,
		},
		logger:      deps.Logger.With("component", "api"),
		devices:     deps.Devices,
		configs:     deps.Configs,
		registry:    deps.Registry,
		gateway:     deps.Gateway,
		control:     deps.Control,
		zoneService: deps.ZoneService,
		audit:       deps.Audit,
		checks:      deps.Checks,
		version:     deps.Version,
		startTime:   time.Now(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, s.logger)
	}

	return s, nil
}

// Hub returns the operator event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router and begins listening in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
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

// Close waits up to gracefulShutdownTimeout for in-flight requests.
// Hijacked websocket connections are not tracked by http.Server; the
// gateway and hub close their own.
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

// HealthCheck reports whether the server has been started.
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
