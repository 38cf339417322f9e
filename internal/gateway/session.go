package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"

	"github.com/brightears/soundtrack-auto-volume/internal/connection"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/volume"
)

// State is a session's position in its lifecycle.
type State int

// Session states.
const (
	StateUnregistered State = iota
	StateRegistered
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the protocol state of one device connection.
//
// HandleFrame must be called from a single goroutine. Close and the
// accessors may be called from any goroutine.
type Session struct {
	h    *Handler
	conn connection.Conn

	mu       sync.Mutex
	state    State
	identity string
}

// NewSession creates an Unregistered session for conn.
func (h *Handler) NewSession(conn connection.Conn) *Session {
	return &Session{h: h, conn: conn}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the device identity bound by the last register frame.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// HandleFrame decodes and dispatches one inbound frame. It never fails the
// session: bad input is logged and dropped.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	if s.State() == StateClosed {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		framesTotal.WithLabelValues("malformed").Inc()
		s.h.logger.Warn("malformed frame", "error", err, "bytes", len(data))
		return
	}

	switch env.Type {
	case TypeRegister:
		framesTotal.WithLabelValues(TypeRegister).Inc()
		s.handleRegister(ctx, data)
	case TypeSoundLevel:
		framesTotal.WithLabelValues(TypeSoundLevel).Inc()
		s.handleSoundLevel(ctx, data)
	default:
		framesTotal.WithLabelValues("unknown").Inc()
		s.h.logger.Warn("unknown frame type", "type", env.Type, "device_id", s.Identity())
	}
}

func (s *Session) handleRegister(ctx context.Context, data []byte) {
	var f RegisterFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.h.logger.Warn("malformed register frame", "error", err)
		return
	}
	if err := device.ValidateIdentity(f.DeviceID); err != nil {
		s.h.logger.Warn("rejecting register frame", "error", err)
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	previous := s.identity
	s.identity = f.DeviceID
	s.state = StateRegistered
	s.mu.Unlock()

	// The session moved to a new identity; release the old one.
	if previous != "" && previous != f.DeviceID {
		if s.h.registry.UnregisterConn(previous, s.conn) {
			s.h.setOffline(ctx, previous)
		}
	}

	if orphan := s.h.registry.Register(f.DeviceID, s.conn); orphan != nil {
		s.h.logger.Info("closing replaced device session", "device_id", f.DeviceID)
		orphan.Close() //nolint:errcheck // Orphaned transport; its own close path ignores it
	}
	devicesOnline.Set(float64(s.h.registry.Count()))

	d, err := s.h.devices.Register(ctx, f.DeviceID, f.Firmware, f.AccountID)
	if err != nil {
		s.h.logger.Error("failed to record device registration", "device_id", f.DeviceID, "error", err)
		s.h.registry.Send(f.DeviceID, RegisteredMessage{
			Type:     TypeRegistered,
			DeviceID: f.DeviceID,
			Configs:  []ConfigSummary{},
		})
		return
	}

	configs, err := s.h.configs.ListByDevice(ctx, d.ID)
	if err != nil {
		s.h.logger.Warn("failed to load zone configs for registration", "device_id", f.DeviceID, "error", err)
	}

	s.h.registry.Send(f.DeviceID, RegisteredMessage{
		Type:     TypeRegistered,
		DeviceID: f.DeviceID,
		Configs:  summarize(configs),
	})

	if acct := d.AccountID(); acct != "" && f.AccountID == "" {
		s.h.registry.Send(f.DeviceID, SetAccountMessage{Type: TypeSetAccount, AccountID: acct})
	}

	s.h.logger.Info("device registered",
		"device_id", f.DeviceID,
		"firmware", f.Firmware,
		"zones", len(configs),
	)
	s.h.observer.DeviceOnline(d)
}

func (s *Session) handleSoundLevel(ctx context.Context, data []byte) {
	var f SoundLevelFrame
	if err := json.Unmarshal(data, &f); err != nil {
		droppedReadings.WithLabelValues("malformed").Inc()
		s.h.logger.Warn("malformed sound_level frame", "error", err)
		return
	}
	if f.DBFS == nil || math.IsNaN(*f.DBFS) || math.IsInf(*f.DBFS, 0) {
		droppedReadings.WithLabelValues("malformed").Inc()
		s.h.logger.Warn("sound_level frame without a usable dbFS", "device_id", f.DeviceID)
		return
	}

	s.mu.Lock()
	state, identity := s.state, s.identity
	s.mu.Unlock()

	if state != StateRegistered {
		droppedReadings.WithLabelValues("unregistered").Inc()
		s.h.logger.Debug("sound_level before register", "device_id", f.DeviceID)
		return
	}
	if f.DeviceID != "" && f.DeviceID != identity {
		droppedReadings.WithLabelValues("identity_mismatch").Inc()
		s.h.logger.Warn("sound_level for another device", "device_id", identity, "frame_device_id", f.DeviceID)
		return
	}

	dbFS := *f.DBFS
	s.h.registry.RecordLevel(identity, dbFS)

	d, err := s.h.devices.GetByIdentity(ctx, identity)
	if err != nil {
		droppedReadings.WithLabelValues("unknown_device").Inc()
		if !errors.Is(err, device.ErrDeviceNotFound) {
			s.h.logger.Warn("failed to resolve device", "device_id", identity, "error", err)
		}
		return
	}
	if d.IsPaused {
		droppedReadings.WithLabelValues("paused").Inc()
		return
	}

	configs, err := s.h.configs.ListActiveByDevice(ctx, d.ID)
	if err != nil {
		droppedReadings.WithLabelValues("store_error").Inc()
		s.h.logger.Warn("failed to load active zone configs", "device_id", identity, "error", err)
		return
	}

	for i := range configs {
		c := &configs[i]
		dec := s.h.control.Process(ctx, c.SoundtrackZoneID, dbFS, c.Params())
		if dec.Volume == volume.NoDecision {
			continue
		}

		if dec.Actuated {
			if err := s.h.configs.UpdateCurrentVolume(ctx, c.ID, dec.Volume); err != nil {
				s.h.logger.Warn("failed to persist zone volume",
					"config_id", c.ID,
					"zone_id", c.SoundtrackZoneID,
					"volume", dec.Volume,
					"error", err,
				)
			}
		}

		s.h.observer.ZoneEvaluated(ZoneEvent{
			DeviceID: identity,
			ConfigID: c.ID,
			ZoneID:   c.SoundtrackZoneID,
			Reading:  dbFS,
			Smoothed: dec.Smoothed,
			Target:   dec.Target,
			Volume:   dec.Volume,
			Actuated: dec.Actuated,
			Err:      dec.Err,
			At:       s.h.now(),
		})
	}
}

// Close moves the session to Closed. If the session is still the live one
// for its device, the registry entry is removed and the device is marked
// offline. Zone control state is kept so a reconnect resumes smoothly.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	identity, ok := s.h.registry.FindIdentity(s.conn)
	if !ok {
		return
	}
	if !s.h.registry.UnregisterConn(identity, s.conn) {
		return
	}

	s.h.logger.Info("device disconnected", "device_id", identity)
	s.h.setOffline(ctx, identity)
}
