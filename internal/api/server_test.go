package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightears/soundtrack-auto-volume/internal/audit"
	"github.com/brightears/soundtrack-auto-volume/internal/connection"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/gateway"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/database"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/logging"
	"github.com/brightears/soundtrack-auto-volume/internal/soundtrack"
	"github.com/brightears/soundtrack-auto-volume/internal/volume"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
	_ "github.com/brightears/soundtrack-auto-volume/migrations"
)

type nopConn struct{}

func (nopConn) TrySend([]byte) bool { return true }
func (nopConn) Close() error        { return nil }

// fakeGateway answers commands for identities marked online.
type fakeGateway struct {
	mu       sync.Mutex
	online   map[string]bool
	resets   []string
	accounts map[string]string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (g *fakeGateway) FactoryReset(identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online[identity] {
		return gateway.ErrDeviceOffline
	}
	g.resets = append(g.resets, identity)
	return nil
}

func (g *fakeGateway) PushAccount(identity, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online[identity] {
		return gateway.ErrDeviceOffline
	}
	if g.accounts == nil {
		g.accounts = make(map[string]string)
	}
	g.accounts[identity] = accountID
	return nil
}

type fakeControl struct {
	mu        sync.Mutex
	states    map[string]volume.State
	forgotten []string
}

func (c *fakeControl) State(zoneID string) (volume.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[zoneID]
	return st, ok
}

func (c *fakeControl) Forget(zoneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten = append(c.forgotten, zoneID)
}

func (c *fakeControl) forgot(zoneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.forgotten, zoneID)
}

type fakeZoneService struct {
	mu       sync.Mutex
	err      error
	accounts []soundtrack.Account
	zones    []soundtrack.Zone
	volumes  map[string]int
}

func (z *fakeZoneService) SearchAccounts(_ context.Context, _ string) ([]soundtrack.Account, error) {
	return z.accounts, z.err
}

func (z *fakeZoneService) ListZones(_ context.Context, _ string) ([]soundtrack.Zone, error) {
	return z.zones, z.err
}

func (z *fakeZoneService) SetVolume(_ context.Context, zoneID string, v int) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.err != nil {
		return z.err
	}
	if z.volumes == nil {
		z.volumes = make(map[string]int)
	}
	z.volumes[zoneID] = v
	return nil
}

type fakeCheck struct{ err error }

func (c fakeCheck) HealthCheck(context.Context) error { return c.err }

type testEnv struct {
	srv      *Server
	router   http.Handler
	registry *connection.Registry
	devices  *device.SQLiteRepository
	configs  *zone.SQLiteRepository
	gateway  *fakeGateway
	control  *fakeControl
	zones    *fakeZoneService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	env := &testEnv{
		registry: connection.NewRegistry(),
		devices:  device.NewSQLiteRepository(db.DB),
		configs:  zone.NewSQLiteRepository(db.DB),
		gateway:  &fakeGateway{online: make(map[string]bool)},
		control:  &fakeControl{states: make(map[string]volume.State)},
		zones:    &fakeZoneService{},
	}

	env.srv, err = New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
		},
		ZoneDefaults: config.ZoneDefaultsConfig{
			MinVolume:        4,
			MaxVolume:        12,
			QuietThresholdDB: -60,
			LoudThresholdDB:  -30,
			SmoothingFactor:  0.3,
			SustainCount:     3,
		},
		Logger:      logging.Discard(),
		Devices:     env.devices,
		Configs:     env.configs,
		Registry:    env.registry,
		Gateway:     env.gateway,
		Control:     env.control,
		ZoneService: env.zones,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.router = env.srv.buildRouter()
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) addDevice(t *testing.T, identity string) *device.Device {
	t.Helper()
	d, err := env.devices.Upsert(context.Background(), identity, "")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return d
}

func (env *testEnv) addConfig(t *testing.T, d *device.Device, zoneID string) *zone.Config {
	t.Helper()
	c := env.srv.zoneDefaults.NewConfig(d.ID, "acct-1", zoneID)
	if err := env.configs.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("response is not JSON: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	full := func() Deps {
		return Deps{
			Logger:   logging.Discard(),
			Devices:  &device.SQLiteRepository{},
			Configs:  &zone.SQLiteRepository{},
			Registry: connection.NewRegistry(),
			Gateway:  &fakeGateway{},
			Control:  &fakeControl{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"devices", func(d *Deps) { d.Devices = nil }},
		{"configs", func(d *Deps) { d.Configs = nil }},
		{"registry", func(d *Deps) { d.Registry = nil }},
		{"gateway", func(d *Deps) { d.Gateway = nil }},
		{"control", func(d *Deps) { d.Control = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	srv, err := New(full())
	if err != nil {
		t.Fatalf("New(full) error = %v", err)
	}
	if srv.Hub() == nil {
		t.Error("Hub() = nil, want a hub created by New")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.srv.checks = map[string]HealthChecker{"database": fakeCheck{}}

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}

	env.srv.checks["mqtt"] = fakeCheck{err: errors.New("not connected")}
	rec = env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body = decode[map[string]any](t, rec)
	components := body["components"].(map[string]any)
	if components["mqtt"] != "not connected" || components["database"] != "ok" {
		t.Errorf("components = %v", components)
	}
}

func TestStatus_ReportsOnlineDevices(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register("esp32-bb", nopConn{})
	env.registry.Register("esp32-aa", nopConn{})

	rec := env.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	st := decode[StatusResponse](t, rec)
	if st.Devices.Online != 2 || !slices.Equal(st.Devices.Identities, []string{"esp32-aa", "esp32-bb"}) {
		t.Errorf("devices = %+v", st.Devices)
	}
	if st.Version != "test" {
		t.Errorf("version = %q, want test", st.Version)
	}
}

func TestDevices_CreateListGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices", `{"device_id":"esp32-aa","name":"Bar"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}
	created := decode[DeviceView](t, rec)
	if created.DeviceID != "esp32-aa" || created.Name != "Bar" || created.IsOnline {
		t.Errorf("created = %+v", created)
	}

	env.registry.Register("esp32-aa", nopConn{})
	env.registry.RecordLevel("esp32-aa", -42.5)

	rec = env.do(t, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	list := decode[struct {
		Devices []DeviceView `json:"devices"`
		Count   int          `json:"count"`
	}](t, rec)
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}
	got := list.Devices[0]
	if !got.IsOnline {
		t.Error("IsOnline = false, want live presence from the registry")
	}
	if got.LastLevelDB == nil || *got.LastLevelDB != -42.5 {
		t.Errorf("LastLevelDB = %v, want -42.5", got.LastLevelDB)
	}

	for _, ref := range []string{created.ID, "esp32-aa"} {
		rec = env.do(t, http.MethodGet, "/api/v1/devices/"+ref, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET /devices/%s status = %d, want 200", ref, rec.Code)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/devices/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing status = %d, want 404", rec.Code)
	}
}

func TestCreateDevice_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing identity", `{"name":"Bar"}`, http.StatusBadRequest},
		{"identity with spaces", `{"device_id":"esp 32"}`, http.StatusBadRequest},
		{"unknown field", `{"device_id":"esp32-aa","colour":"red"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/v1/devices", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestUpdateDevice_PushesChangedAccount(t *testing.T) {
	env := newTestEnv(t)
	d := env.addDevice(t, "esp32-aa")
	env.gateway.online["esp32-aa"] = true

	rec := env.do(t, http.MethodPatch, "/api/v1/devices/"+d.ID, `{"soundtrack_account_id":"acct-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	if got := env.gateway.accounts["esp32-aa"]; got != "acct-9" {
		t.Errorf("pushed account = %q, want acct-9", got)
	}

	delete(env.gateway.accounts, "esp32-aa")
	rec = env.do(t, http.MethodPatch, "/api/v1/devices/"+d.ID, `{"name":"Lobby","soundtrack_account_id":"acct-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, pushed := env.gateway.accounts["esp32-aa"]; pushed {
		t.Error("unchanged account was pushed again")
	}

	stored, err := env.devices.GetByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Name != "Lobby" || stored.AccountID() != "acct-9" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdateDevice_OfflineAccountChangeSucceeds(t *testing.T) {
	env := newTestEnv(t)
	d := env.addDevice(t, "esp32-aa")

	rec := env.do(t, http.MethodPatch, "/api/v1/devices/esp32-aa", `{"soundtrack_account_id":"acct-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	view := decode[DeviceView](t, rec)
	if view.ID != d.ID || view.AccountID() != "acct-9" {
		t.Errorf("view = %+v", view)
	}
}

func TestUpdateDevice_PauseResetsZoneState(t *testing.T) {
	env := newTestEnv(t)
	d := env.addDevice(t, "esp32-aa")
	env.addConfig(t, d, "zone-1")

	rec := env.do(t, http.MethodPatch, "/api/v1/devices/"+d.ID, `{"is_paused":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.control.forgot("zone-1") {
		t.Error("pausing the device did not reset zone-1")
	}
}

func TestDeleteDevice_CascadesAndResetsZones(t *testing.T) {
	env := newTestEnv(t)
	d := env.addDevice(t, "esp32-aa")
	c := env.addConfig(t, d, "zone-1")

	rec := env.do(t, http.MethodDelete, "/api/v1/devices/"+d.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !env.control.forgot("zone-1") {
		t.Error("deleting the device did not reset zone-1")
	}
	if _, err := env.configs.GetByID(context.Background(), c.ID); !errors.Is(err, zone.ErrConfigNotFound) {
		t.Errorf("config after device delete: err = %v, want ErrConfigNotFound", err)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/devices/"+d.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestFactoryReset(t *testing.T) {
	env := newTestEnv(t)
	env.addDevice(t, "esp32-aa")

	rec := env.do(t, http.MethodPost, "/api/v1/devices/esp32-aa/factory-reset", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("offline status = %d, want 409", rec.Code)
	}

	env.gateway.online["esp32-aa"] = true
	rec = env.do(t, http.MethodPost, "/api/v1/devices/esp32-aa/factory-reset", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("online status = %d, want 202", rec.Code)
	}
	if !slices.Equal(env.gateway.resets, []string{"esp32-aa"}) {
		t.Errorf("resets = %v", env.gateway.resets)
	}
}

func TestCreateConfig_FillsDefaults(t *testing.T) {
	env := newTestEnv(t)
	d := env.addDevice(t, "esp32-aa")

	body := `{"device_id":"esp32-aa","soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-1","min_volume":2,"soundtrack_zone_name":"Bar"}`
	rec := env.do(t, http.MethodPost, "/api/v1/configs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}

	got := decode[ConfigView](t, rec)
	if got.DeviceKey != d.ID {
		t.Errorf("DeviceKey = %q, want record key %q", got.DeviceKey, d.ID)
	}
	if got.MinVolume != 2 || got.MaxVolume != 12 || got.SustainCount != 3 || got.SmoothingFactor != 0.3 {
		t.Errorf("mapping = min %d max %d sustain %d alpha %v", got.MinVolume, got.MaxVolume, got.SustainCount, got.SmoothingFactor)
	}
	if !got.IsEnabled || got.SoundtrackZoneName != "Bar" {
		t.Errorf("config = %+v", got.Config)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/devices/"+d.ID+"/configs", "")
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 1 {
		t.Errorf("device configs count = %d, want 1", list.Count)
	}
}

func TestCreateConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate zone", `{"device_id":"esp32-aa","soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-1"}`, http.StatusConflict},
		{"min above max", `{"device_id":"esp32-aa","soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-2","min_volume":14,"max_volume":3}`, http.StatusBadRequest},
		{"inverted thresholds", `{"device_id":"esp32-aa","soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-2","quiet_threshold_db":-20}`, http.StatusBadRequest},
		{"missing zone", `{"device_id":"esp32-aa","soundtrack_account_id":"acct-1"}`, http.StatusBadRequest},
		{"missing device", `{"soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-2"}`, http.StatusBadRequest},
		{"unknown device", `{"device_id":"nope","soundtrack_account_id":"acct-1","soundtrack_zone_id":"zone-2"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addConfig(t, env.addDevice(t, "esp32-aa"), "zone-1")

			rec := env.do(t, http.MethodPost, "/api/v1/configs", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestGetConfig_IncludesControlState(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConfig(t, env.addDevice(t, "esp32-aa"), "zone-1")

	rec := env.do(t, http.MethodGet, "/api/v1/configs/"+c.ID, "")
	if got := decode[ConfigView](t, rec); got.Control != nil {
		t.Errorf("Control = %+v before any reading, want nil", got.Control)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.control.states["zone-1"] = volume.State{Smoothed: -48.5, CurrentVolume: 9, Pending: 10, PendingCount: 1, LastActuation: at}

	rec = env.do(t, http.MethodGet, "/api/v1/configs/"+c.ID, "")
	got := decode[ConfigView](t, rec)
	if got.Control == nil {
		t.Fatal("Control = nil, want state")
	}
	if got.Control.SmoothedDB != -48.5 || got.Control.CurrentVolume != 9 || got.Control.PendingVolume != 10 {
		t.Errorf("Control = %+v", got.Control)
	}
	if got.Control.LastActuation == nil || !got.Control.LastActuation.Equal(at) {
		t.Errorf("LastActuation = %v, want %v", got.Control.LastActuation, at)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/configs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestUpdateConfig_ResetsStateOnMappingChange(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantForget bool
	}{
		{"rename only", `{"soundtrack_zone_name":"Terrace"}`, false},
		{"sustain only", `{"sustain_count":5}`, false},
		{"volume range", `{"min_volume":6}`, true},
		{"threshold", `{"loud_threshold_db":-25}`, true},
		{"smoothing", `{"smoothing_factor":0.5}`, true},
		{"paused", `{"is_paused":true}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			c := env.addConfig(t, env.addDevice(t, "esp32-aa"), "zone-1")

			rec := env.do(t, http.MethodPatch, "/api/v1/configs/"+c.ID, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
			}
			if got := env.control.forgot("zone-1"); got != tt.wantForget {
				t.Errorf("forgot = %v, want %v", got, tt.wantForget)
			}
		})
	}
}

func TestUpdateConfig_InvalidLeavesStoredConfig(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConfig(t, env.addDevice(t, "esp32-aa"), "zone-1")

	rec := env.do(t, http.MethodPatch, "/api/v1/configs/"+c.ID, `{"max_volume":20}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	stored, err := env.configs.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.MaxVolume != 12 {
		t.Errorf("MaxVolume = %d, want unchanged 12", stored.MaxVolume)
	}
}

func TestDeleteConfig_ResetsState(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConfig(t, env.addDevice(t, "esp32-aa"), "zone-1")

	rec := env.do(t, http.MethodDelete, "/api/v1/configs/"+c.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !env.control.forgot("zone-1") {
		t.Error("zone-1 state not reset")
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/configs/"+c.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSoundtrackRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		want   int
	}{
		{"search", http.MethodGet, "/api/v1/soundtrack/accounts?q=cafe", "", nil, http.StatusOK},
		{"search without query", http.MethodGet, "/api/v1/soundtrack/accounts", "", nil, http.StatusBadRequest},
		{"search without credentials", http.MethodGet, "/api/v1/soundtrack/accounts?q=cafe", "", soundtrack.ErrNoCredentials, http.StatusServiceUnavailable},
		{"zones upstream failure", http.MethodGet, "/api/v1/soundtrack/accounts/acct-1/zones", "", soundtrack.ErrRequestFailed, http.StatusBadGateway},
		{"zones", http.MethodGet, "/api/v1/soundtrack/accounts/acct-1/zones", "", nil, http.StatusOK},
		{"set volume", http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":7}`, nil, http.StatusOK},
		{"volume too high", http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":17}`, nil, http.StatusBadRequest},
		{"volume negative", http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":-1}`, nil, http.StatusBadRequest},
		{"volume missing", http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{}`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.zones.err = tt.err
			env.zones.accounts = []soundtrack.Account{{ID: "acct-1", Name: "Cafe"}}

			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestSetZoneVolume_CallsService(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if v, ok := env.zones.volumes["zone-1"]; !ok || v != 0 {
		t.Errorf("volumes = %v, want zone-1 set to 0", env.zones.volumes)
	}
}

func TestSoundtrackRoutes_WithoutService(t *testing.T) {
	env := newTestEnv(t)
	env.srv.zoneService = nil

	rec := env.do(t, http.MethodGet, "/api/v1/soundtrack/accounts?q=cafe", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_MountsGateway(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/ws", "")
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want the gateway's 418", rec.Code)
	}
}

func TestRouter_RequestID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/status", "")
	if got := rec.Header().Get("X-Request-ID"); len(got) != 2*requestIDBytes {
		t.Errorf("generated X-Request-ID = %q", got)
	}
}

func TestEvents_StreamsSubscribedChannels(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?channels=zone.volume_changed"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Upgrade response has no body
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("event client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.srv.Hub().Broadcast("device.online", map[string]string{"device_id": "esp32-aa"})
	env.srv.Hub().Broadcast("zone.volume_changed", map[string]any{"zone_id": "zone-1", "volume": 9})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != "zone.volume_changed" {
		t.Errorf("message = %+v, want the zone.volume_changed event only", msg)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{WSChannelAll}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON(response) error = %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Errorf("subscribe reply = %+v", msg)
	}

	env.srv.Hub().Broadcast("device.offline", map[string]string{"device_id": "esp32-aa"})
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON(event) error = %v", err)
	}
	if msg.EventType != "device.offline" {
		t.Errorf("EventType = %q, want device.offline after wildcard subscribe", msg.EventType)
	}
}

func TestAudit_RecordsOperatorActions(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.online["esp32-aa"] = true

	env.do(t, http.MethodPost, "/api/v1/devices", `{"device_id":"esp32-aa"}`)
	env.do(t, http.MethodPost, "/api/v1/devices/esp32-aa/factory-reset", "")
	env.do(t, http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":5}`)
	// Rejected requests are not recorded.
	env.do(t, http.MethodPost, "/api/v1/soundtrack/zones/zone-1/volume", `{"volume":50}`)

	rec := env.do(t, http.MethodGet, "/api/v1/audit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	page := decode[audit.Page](t, rec)
	if page.Total != 3 {
		t.Fatalf("Total = %d, want 3 (entries %+v)", page.Total, page.Entries)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/audit?action=command&entity_type=device", "")
	page = decode[audit.Page](t, rec)
	if page.Total != 1 || page.Entries[0].EntityID != "esp32-aa" || page.Entries[0].Details["command"] != "factory_reset" {
		t.Errorf("command entries = %+v", page.Entries)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/audit?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
