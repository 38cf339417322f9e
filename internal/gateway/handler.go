package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightears/soundtrack-auto-volume/internal/connection"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/logging"
	"github.com/brightears/soundtrack-auto-volume/internal/volume"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
)

// DeviceStore is the part of the device repository the gateway needs.
type DeviceStore interface {
	Register(ctx context.Context, identity, firmware, accountID string) (*device.Device, error)
	GetByIdentity(ctx context.Context, identity string) (*device.Device, error)
	SetOnline(ctx context.Context, identity string, online bool) error
}

// ConfigStore is the part of the zone config repository the gateway needs.
type ConfigStore interface {
	ListByDevice(ctx context.Context, deviceKey string) ([]zone.Config, error)
	ListActiveByDevice(ctx context.Context, deviceKey string) ([]zone.Config, error)
	UpdateCurrentVolume(ctx context.Context, id string, volume int) error
}

// Controller runs the per-zone control loop.
type Controller interface {
	Process(ctx context.Context, zoneID string, dbFS float64, p volume.Params) volume.Decision
}

// ZoneEvent describes one reading's pass through one zone's control loop.
type ZoneEvent struct {
	DeviceID string
	ConfigID string
	ZoneID   string
	Reading  float64
	Smoothed float64
	Target   int
	Volume   int
	Actuated bool
	Err      error
	At       time.Time
}

// Observer is told about presence changes and control-loop results.
// Implementations must not block.
type Observer interface {
	DeviceOnline(d *device.Device)
	DeviceOffline(identity string)
	ZoneEvaluated(ev ZoneEvent)
}

type noopObserver struct{}

func (noopObserver) DeviceOnline(*device.Device) {}
func (noopObserver) DeviceOffline(string)        {}
func (noopObserver) ZoneEvaluated(ZoneEvent)     {}

// Deps holds the gateway's collaborators.
type Deps struct {
	Config   config.WebSocketConfig
	Registry *connection.Registry
	Devices  DeviceStore
	Configs  ConfigStore
	Control  Controller

	// Observer is optional.
	Observer Observer
	Logger   *logging.Logger
}

// Handler accepts device connections and routes their frames.
type Handler struct {
	cfg      config.WebSocketConfig
	registry *connection.Registry
	devices  DeviceStore
	configs  ConfigStore
	control  Controller
	observer Observer
	logger   *logging.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a gateway handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Handler{
		cfg:      deps.Config,
		registry: deps.Registry,
		devices:  deps.Devices,
		configs:  deps.Configs,
		control:  deps.Control,
		observer: observer,
		logger:   deps.Logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers and send no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:   time.Now,
		conns: make(map[*wsConn]struct{}),
	}, nil
}

// Command is an operator instruction addressed to one device.
type Command struct {
	Command   string `json:"command"`
	AccountID string `json:"account_id,omitempty"`
}

// Command names accepted by HandleCommand.
const (
	CommandFactoryReset = "factory_reset"
	CommandSetAccount   = "set_account"
)

// HandleCommand decodes an operator command and pushes it to the device.
func (h *Handler) HandleCommand(identity string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch cmd.Command {
	case CommandFactoryReset:
		return h.FactoryReset(identity)
	case CommandSetAccount:
		if cmd.AccountID == "" {
			return fmt.Errorf("%w: account_id is required", ErrInvalidCommand)
		}
		return h.PushAccount(identity, cmd.AccountID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// FactoryReset pushes a factory_reset frame. It returns ErrDeviceOffline
// when the device has no live session; delivery is otherwise best-effort.
func (h *Handler) FactoryReset(identity string) error {
	if !h.registry.IsOnline(identity) {
		return ErrDeviceOffline
	}
	h.registry.Send(identity, FactoryResetMessage{Type: TypeFactoryReset})
	h.logger.Info("factory reset sent", "device_id", identity)
	return nil
}

// PushAccount pushes a set_account frame. It returns ErrDeviceOffline when
// the device has no live session; delivery is otherwise best-effort.
func (h *Handler) PushAccount(identity, accountID string) error {
	if !h.registry.IsOnline(identity) {
		return ErrDeviceOffline
	}
	h.registry.Send(identity, SetAccountMessage{Type: TypeSetAccount, AccountID: accountID})
	return nil
}

// Shutdown closes every device connection and waits for their read loops
// to finish or ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close() //nolint:errcheck // Best effort during shutdown
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionCount returns the number of open device sockets, registered or not.
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// setOffline marks identity offline in the store and tells the observer.
func (h *Handler) setOffline(ctx context.Context, identity string) {
	if err := h.devices.SetOnline(ctx, identity, false); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		h.logger.Warn("failed to mark device offline", "device_id", identity, "error", err)
	}
	h.observer.DeviceOffline(identity)
	devicesOnline.Set(float64(h.registry.Count()))
}
