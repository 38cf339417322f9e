package soundtrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
)

// fakeAPI serves the token endpoint and the GraphQL endpoint.
type fakeAPI struct {
	tokenTTL   int
	tokenCalls atomic.Int32
	gqlCalls   atomic.Int32
	lastReq    graphqlRequest
	lastAuth   string
	respond    func(w http.ResponseWriter, req graphqlRequest)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{tokenTTL: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"access_token": "issued-token",
			"token_type":   "Bearer",
			"expires_in":   f.tokenTTL,
		})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		f.gqlCalls.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastReq = req
		if f.respond != nil {
			f.respond(w, req)
			return
		}
		w.Write([]byte(`{"data":{}}`)) //nolint:errcheck
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server, cfg config.SoundtrackConfig) *Client {
	cfg.APIURL = srv.URL + "/graphql"
	cfg.TokenURL = srv.URL + "/oauth/token"
	return New(cfg)
}

func TestSetVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		want   float64
	}{
		{"in range", 9, 9},
		{"clamped high", 20, 16},
		{"clamped low", -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

			if err := c.SetVolume(context.Background(), "zone-1", tt.volume); err != nil {
				t.Fatalf("SetVolume() error = %v", err)
			}

			if api.lastAuth != "Bearer static" {
				t.Errorf("Authorization = %q, want Bearer static", api.lastAuth)
			}
			if api.lastReq.Variables["soundZoneId"] != "zone-1" {
				t.Errorf("soundZoneId = %v, want zone-1", api.lastReq.Variables["soundZoneId"])
			}
			if api.lastReq.Variables["volume"] != tt.want {
				t.Errorf("volume = %v, want %v", api.lastReq.Variables["volume"], tt.want)
			}
			if api.tokenCalls.Load() != 0 {
				t.Error("static token triggered a token request")
			}
		})
	}
}

func TestClientCredentials_TokenCached(t *testing.T) {
	tests := []struct {
		name       string
		ttl        int
		wantTokens int32
	}{
		{"hour token", 3600, 1},
		{"short-lived token", 120, 1},
		{"already expiring", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.tokenTTL = tt.ttl
			c := newTestClient(srv, config.SoundtrackConfig{ClientID: "client", ClientSecret: "secret"})

			for i := 0; i < 3; i++ {
				if err := c.SetVolume(context.Background(), "zone-1", 8); err != nil {
					t.Fatalf("SetVolume() error = %v", err)
				}
			}
			if got := api.tokenCalls.Load(); got != tt.wantTokens {
				t.Errorf("token requests = %d, want %d", got, tt.wantTokens)
			}
			if api.lastAuth != "Bearer issued-token" {
				t.Errorf("Authorization = %q, want Bearer issued-token", api.lastAuth)
			}
		})
	}
}

func TestClientCredentials_Rejected(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(srv, config.SoundtrackConfig{ClientID: "client", ClientSecret: "wrong"})

	err := c.SetVolume(context.Background(), "zone-1", 8)
	if !errors.Is(err, ErrTokenRequest) {
		t.Errorf("SetVolume() error = %v, want ErrTokenRequest", err)
	}
	if api.gqlCalls.Load() != 0 {
		t.Error("GraphQL called without a token")
	}
}

func TestNoCredentials(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(srv, config.SoundtrackConfig{})

	if c.Configured() {
		t.Error("Configured() = true without credentials")
	}
	if err := c.SetVolume(context.Background(), "zone-1", 8); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("SetVolume() error = %v, want ErrNoCredentials", err)
	}
}

func TestGraphQLErrors(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.respond = func(w http.ResponseWriter, _ graphqlRequest) {
		w.Write([]byte(`{"errors":[{"message":"zone not found"},{"message":"denied"}]}`)) //nolint:errcheck
	}
	c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

	err := c.SetVolume(context.Background(), "zone-1", 8)
	if !errors.Is(err, ErrGraphQL) {
		t.Fatalf("SetVolume() error = %v, want ErrGraphQL", err)
	}
}

func TestHTTPFailure(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.respond = func(w http.ResponseWriter, _ graphqlRequest) {
		w.WriteHeader(http.StatusBadGateway)
	}
	c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

	if err := c.SetVolume(context.Background(), "zone-1", 8); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("SetVolume() error = %v, want ErrRequestFailed", err)
	}
}

func TestSearchAccounts(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.respond = func(w http.ResponseWriter, _ graphqlRequest) {
		w.Write([]byte(`{"data":{"accounts":{"edges":[
			{"node":{"id":"acct-1","businessName":"Beach Club","businessType":"bar"}},
			{"node":{"id":"acct-2","businessName":"Beach Hotel","businessType":"hotel"}}
		]}}}`)) //nolint:errcheck
	}
	c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

	accounts, err := c.SearchAccounts(context.Background(), "Beach")
	if err != nil {
		t.Fatalf("SearchAccounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].Name != "Beach Club" || accounts[1].BusinessType != "hotel" {
		t.Errorf("SearchAccounts() = %+v", accounts)
	}
	if api.lastReq.Variables["query"] != "Beach" {
		t.Errorf("query variable = %v, want Beach", api.lastReq.Variables["query"])
	}
}

func TestListZones(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.respond = func(w http.ResponseWriter, _ graphqlRequest) {
		w.Write([]byte(`{"data":{"account":{"locations":{"edges":[
			{"node":{"id":"loc-1","name":"Main","soundZones":{"edges":[
				{"node":{"id":"zone-1","name":"Lobby","playing":{"track":{"name":"Song","artists":[{"name":"A"},{"name":"B"}]}}}},
				{"node":{"id":"zone-2","name":"Pool","playing":null}}
			]}}},
			{"node":{"id":"loc-2","name":"Annex","soundZones":{"edges":[
				{"node":{"id":"zone-3","name":"Spa","playing":{"track":null}}}
			]}}}
		]}}}}`)) //nolint:errcheck
	}
	c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

	zones, err := c.ListZones(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != 3 {
		t.Fatalf("ListZones() = %d zones, want 3", len(zones))
	}
	if zones[0].LocationName != "Main" || zones[0].NowPlaying == nil || zones[0].NowPlaying.Artist != "A, B" {
		t.Errorf("zones[0] = %+v", zones[0])
	}
	if zones[1].NowPlaying != nil || zones[2].NowPlaying != nil {
		t.Error("idle zones reported now playing")
	}
	if zones[2].LocationID != "loc-2" {
		t.Errorf("zones[2].LocationID = %q, want loc-2", zones[2].LocationID)
	}
}

func TestListZones_UnknownAccount(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.respond = func(w http.ResponseWriter, _ graphqlRequest) {
		w.Write([]byte(`{"data":{"account":null}}`)) //nolint:errcheck
	}
	c := newTestClient(srv, config.SoundtrackConfig{APIToken: "static"})

	zones, err := c.ListZones(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("ListZones() = %v, want empty", zones)
	}
}
