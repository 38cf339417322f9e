package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightears/soundtrack-auto-volume/internal/audit"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/gateway"
)

// DeviceView is a device record merged with live connection state.
type DeviceView struct {
	device.Device

	// LastLevelDB is the last raw reading received on the live connection.
	LastLevelDB *float64 `json:"last_level_db,omitempty"`
}

// CreateDeviceRequest is the body of POST /devices.
type CreateDeviceRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// UpdateDeviceRequest is the body of PATCH /devices/{id}. Nil fields are
// left unchanged; an empty account ID clears the association.
type UpdateDeviceRequest struct {
	Name                *string `json:"name,omitempty"`
	IsPaused            *bool   `json:"is_paused,omitempty"`
	SoundtrackAccountID *string `json:"soundtrack_account_id,omitempty"`
}

// details lists the fields the request sets.
func (req UpdateDeviceRequest) details() map[string]any {
	d := make(map[string]any, 3)
	if req.Name != nil {
		d["name"] = *req.Name
	}
	if req.IsPaused != nil {
		d["is_paused"] = *req.IsPaused
	}
	if req.SoundtrackAccountID != nil {
		d["soundtrack_account_id"] = *req.SoundtrackAccountID
	}
	return d
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	views := make([]DeviceView, 0, len(devices))
	for i := range devices {
		views = append(views, s.deviceView(&devices[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	d, err := s.devices.Upsert(r.Context(), req.DeviceID, req.Name)
	if err != nil {
		if errors.Is(err, device.ErrInvalidDevice) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("creating device", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	s.record(r.Context(), audit.ActionCreate, audit.EntityDevice, d.DeviceID, map[string]any{"name": d.Name})
	s.logger.Info("device saved", "device_id", d.DeviceID, "name", d.Name)
	writeJSON(w, http.StatusCreated, s.deviceView(d))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req UpdateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	previousAccount := d.AccountID()
	wasPaused := d.IsPaused

	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.IsPaused != nil {
		d.IsPaused = *req.IsPaused
	}
	if req.SoundtrackAccountID != nil {
		if *req.SoundtrackAccountID == "" {
			d.SoundtrackAccountID = nil
		} else {
			account := *req.SoundtrackAccountID
			d.SoundtrackAccountID = &account
		}
	}

	if err := s.devices.Update(r.Context(), d); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidDevice):
			writeValidationError(w, err.Error())
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		default:
			s.logger.Error("updating device", "device_id", d.DeviceID, "error", err)
			writeInternalError(w, "failed to update device")
		}
		return
	}

	s.record(r.Context(), audit.ActionUpdate, audit.EntityDevice, d.DeviceID, req.details())

	// A paused device resumes from a fresh control state.
	if wasPaused != d.IsPaused {
		s.forgetDeviceZones(r.Context(), d.ID)
	}

	if account := d.AccountID(); account != "" && account != previousAccount {
		err := s.gateway.PushAccount(d.DeviceID, account)
		switch {
		case err == nil:
			s.logger.Info("account pushed to device", "device_id", d.DeviceID, "account_id", account)
		case errors.Is(err, gateway.ErrDeviceOffline):
			s.logger.Debug("device offline, account will be pushed on registration", "device_id", d.DeviceID)
		default:
			s.logger.Warn("pushing account to device", "device_id", d.DeviceID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, s.deviceView(d))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	// Collect the zones before the cascade removes their configs.
	configs, err := s.configs.ListByDevice(r.Context(), d.ID)
	if err != nil {
		s.logger.Error("listing device configs", "device_id", d.DeviceID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	if err := s.devices.Delete(r.Context(), d.ID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("deleting device", "device_id", d.DeviceID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	for _, c := range configs {
		s.control.Forget(c.SoundtrackZoneID)
	}

	s.record(r.Context(), audit.ActionDelete, audit.EntityDevice, d.DeviceID, nil)
	s.logger.Info("device deleted", "device_id", d.DeviceID, "configs", len(configs))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	if err := s.gateway.FactoryReset(d.DeviceID); err != nil {
		if errors.Is(err, gateway.ErrDeviceOffline) {
			writeConflict(w, "device is not connected")
			return
		}
		s.logger.Error("factory reset", "device_id", d.DeviceID, "error", err)
		writeInternalError(w, "failed to send factory reset")
		return
	}

	s.record(r.Context(), audit.ActionCommand, audit.EntityDevice, d.DeviceID,
		map[string]any{"command": gateway.CommandFactoryReset})
	s.logger.Info("factory reset sent", "device_id", d.DeviceID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": d.DeviceID,
		"status":    "sent",
	})
}

func (s *Server) handleListDeviceConfigs(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	configs, err := s.configs.ListByDevice(r.Context(), d.ID)
	if err != nil {
		s.logger.Error("listing device configs", "device_id", d.DeviceID, "error", err)
		writeInternalError(w, "failed to list configs")
		return
	}

	views := make([]ConfigView, 0, len(configs))
	for i := range configs {
		views = append(views, s.configView(&configs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": views, "count": len(views)})
}

// lookupDevice resolves {id} as a record key, falling back to the hardware
// identity. It writes the error response and returns false on failure.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	ref := chi.URLParam(r, "id")
	d, err := s.findDevice(r.Context(), ref)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		s.logger.Error("getting device", "ref", ref, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return d, true
}

func (s *Server) findDevice(ctx context.Context, ref string) (*device.Device, error) {
	d, err := s.devices.GetByID(ctx, ref)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return s.devices.GetByIdentity(ctx, ref)
	}
	return d, err
}

// deviceView overlays live presence. The registry is authoritative for
// IsOnline while the stored flag can lag a crash.
func (s *Server) deviceView(d *device.Device) DeviceView {
	v := DeviceView{Device: *d}
	v.IsOnline = s.registry.IsOnline(d.DeviceID)
	if level, ok := s.registry.LastLevel(d.DeviceID); ok {
		v.LastLevelDB = &level
	}
	if seen, ok := s.registry.LastSeen(d.DeviceID); ok {
		v.LastSeen = &seen
	}
	return v
}

func (s *Server) forgetDeviceZones(ctx context.Context, deviceKey string) {
	configs, err := s.configs.ListByDevice(ctx, deviceKey)
	if err != nil {
		s.logger.Warn("listing configs to reset control state", "device", deviceKey, "error", err)
		return
	}
	for _, c := range configs {
		s.control.Forget(c.SoundtrackZoneID)
	}
}
