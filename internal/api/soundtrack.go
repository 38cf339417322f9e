package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brightears/soundtrack-auto-volume/internal/audit"
	"github.com/brightears/soundtrack-auto-volume/internal/soundtrack"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
)

// SetVolumeRequest is the body of POST /soundtrack/zones/{zoneId}/volume.
type SetVolumeRequest struct {
	Volume *int `json:"volume"`
}

func (s *Server) handleSearchAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireZoneService(w) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeBadRequest(w, "q query parameter is required")
		return
	}

	accounts, err := s.zoneService.SearchAccounts(r.Context(), query)
	if err != nil {
		s.writeZoneServiceError(w, err, "searching accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "count": len(accounts)})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	if !s.requireZoneService(w) {
		return
	}

	accountID := chi.URLParam(r, "accountId")
	zones, err := s.zoneService.ListZones(r.Context(), accountID)
	if err != nil {
		s.writeZoneServiceError(w, err, "listing zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

// handleSetZoneVolume is the operator's manual override. It bypasses the
// control loop, which resumes on the zone's next reading.
func (s *Server) handleSetZoneVolume(w http.ResponseWriter, r *http.Request) {
	if !s.requireZoneService(w) {
		return
	}

	var req SetVolumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Volume == nil || *req.Volume < 0 || *req.Volume > zone.MaxVolume {
		writeValidationError(w, fmt.Sprintf("volume must be between 0 and %d", zone.MaxVolume))
		return
	}

	zoneID := chi.URLParam(r, "zoneId")
	if err := s.zoneService.SetVolume(r.Context(), zoneID, *req.Volume); err != nil {
		s.writeZoneServiceError(w, err, "setting volume")
		return
	}

	s.record(r.Context(), audit.ActionCommand, audit.EntityZone, zoneID, map[string]any{"volume": *req.Volume})
	s.logger.Info("manual volume set", "zone_id", zoneID, "volume", *req.Volume)
	writeJSON(w, http.StatusOK, map[string]any{"zone_id": zoneID, "volume": *req.Volume})
}

func (s *Server) requireZoneService(w http.ResponseWriter) bool {
	if s.zoneService == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "zone service is not configured")
		return false
	}
	return true
}

func (s *Server) writeZoneServiceError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, soundtrack.ErrNoCredentials) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "zone service credentials are not configured")
		return
	}
	s.logger.Warn("zone service request failed", "op", op, "error", err)
	writeError(w, http.StatusBadGateway, ErrCodeUpstream, op+" failed")
}
