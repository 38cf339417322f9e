package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightears/soundtrack-auto-volume/internal/audit"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
)

// CreateConfigRequest is the body of POST /configs. DeviceID accepts a
// record key or a hardware identity. Mapping fields left out take the
// configured zone defaults.
type CreateConfigRequest struct {
	DeviceID            string `json:"device_id"`
	SoundtrackAccountID string `json:"soundtrack_account_id"`
	SoundtrackZoneID    string `json:"soundtrack_zone_id"`
	zone.Patch
}

// ConfigView is a stored config plus the zone's live control state, when
// the control loop has seen the zone.
type ConfigView struct {
	zone.Config
	Control *ControlView `json:"control,omitempty"`
}

// ControlView is a snapshot of one zone's control state.
type ControlView struct {
	SmoothedDB    float64    `json:"smoothed_db"`
	CurrentVolume int        `json:"current_volume"`
	PendingVolume int        `json:"pending_volume"`
	PendingCount  int        `json:"pending_count"`
	LastActuation *time.Time `json:"last_actuation,omitempty"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.DeviceID == "" {
		writeValidationError(w, "device_id is required")
		return
	}

	d, err := s.findDevice(r.Context(), req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "ref", req.DeviceID, "error", err)
		writeInternalError(w, "failed to create config")
		return
	}

	c := s.zoneDefaults.NewConfig(d.ID, req.SoundtrackAccountID, req.SoundtrackZoneID)
	req.Patch.Apply(c)

	if err := s.configs.Create(r.Context(), c); err != nil {
		s.writeConfigError(w, err, "failed to create config")
		return
	}

	// A zone previously driven by a deleted config must not inherit its state.
	s.control.Forget(c.SoundtrackZoneID)

	s.record(r.Context(), audit.ActionCreate, audit.EntityZoneConfig, c.ID,
		map[string]any{"device_id": d.DeviceID, "zone_id": c.SoundtrackZoneID})
	s.logger.Info("zone config created",
		"config_id", c.ID,
		"device_id", d.DeviceID,
		"zone_id", c.SoundtrackZoneID,
	)
	writeJSON(w, http.StatusCreated, s.configView(c))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.configs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeConfigError(w, err, "failed to get config")
		return
	}
	writeJSON(w, http.StatusOK, s.configView(c))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.configs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeConfigError(w, err, "failed to get config")
		return
	}

	var patch zone.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	wasActive := c.Active()
	patch.Apply(c)

	if err := s.configs.Update(r.Context(), c); err != nil {
		s.writeConfigError(w, err, "failed to update config")
		return
	}

	if patch.MappingChanged() || wasActive != c.Active() {
		s.control.Forget(c.SoundtrackZoneID)
	}

	s.record(r.Context(), audit.ActionUpdate, audit.EntityZoneConfig, c.ID,
		map[string]any{"zone_id": c.SoundtrackZoneID, "mapping_changed": patch.MappingChanged()})
	s.logger.Info("zone config updated", "config_id", c.ID, "zone_id", c.SoundtrackZoneID)
	writeJSON(w, http.StatusOK, s.configView(c))
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.configs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeConfigError(w, err, "failed to get config")
		return
	}

	if err := s.configs.Delete(r.Context(), c.ID); err != nil {
		s.writeConfigError(w, err, "failed to delete config")
		return
	}
	s.control.Forget(c.SoundtrackZoneID)

	s.record(r.Context(), audit.ActionDelete, audit.EntityZoneConfig, c.ID,
		map[string]any{"zone_id": c.SoundtrackZoneID})
	s.logger.Info("zone config deleted", "config_id", c.ID, "zone_id", c.SoundtrackZoneID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) configView(c *zone.Config) ConfigView {
	v := ConfigView{Config: *c}
	if st, ok := s.control.State(c.SoundtrackZoneID); ok {
		cv := &ControlView{
			SmoothedDB:    st.Smoothed,
			CurrentVolume: st.CurrentVolume,
			PendingVolume: st.Pending,
			PendingCount:  st.PendingCount,
		}
		if !st.LastActuation.IsZero() {
			at := st.LastActuation
			cv.LastActuation = &at
		}
		v.Control = cv
	}
	return v
}

func (s *Server) writeConfigError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, zone.ErrInvalidConfig):
		writeValidationError(w, err.Error())
	case errors.Is(err, zone.ErrConfigNotFound):
		writeNotFound(w, "config not found")
	case errors.Is(err, zone.ErrConfigExists):
		writeConflict(w, "device already drives this zone")
	case errors.Is(err, zone.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
