package soundtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	// MaxVolume is the highest volume a sound zone accepts.
	MaxVolume = 16
)

// Client talks to the Soundtrack GraphQL API.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	apiURL     string
	configured bool

	// httpClient attaches the bearer token to every request.
	httpClient *http.Client
}

// New creates a client from configuration. It makes no network calls; a
// client-credentials token is fetched on first use and renewed when it
// expires.
func New(cfg config.SoundtrackConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	src := newTokenSource(ctx, cfg)
	if src == nil {
		return &Client{apiURL: cfg.APIURL, httpClient: base}
	}

	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = timeout

	return &Client{
		apiURL:     cfg.APIURL,
		configured: true,
		httpClient: httpClient,
	}
}

// newTokenSource picks the pre-issued token over client credentials. It
// returns nil when neither is configured.
func newTokenSource(ctx context.Context, cfg config.SoundtrackConfig) oauth2.TokenSource {
	switch {
	case cfg.APIToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken, TokenType: "Bearer"})
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		return tokenErrorSource{cc.TokenSource(ctx)}
	}
	return nil
}

// tokenErrorSource marks token endpoint failures with ErrTokenRequest.
type tokenErrorSource struct {
	src oauth2.TokenSource
}

func (s tokenErrorSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRequest, err)
	}
	return tok, nil
}

// Configured reports whether the client has credentials to authenticate with.
func (c *Client) Configured() bool {
	return c.configured
}

// Account is a Soundtrack business account.
type Account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BusinessType string `json:"business_type,omitempty"`
}

// Zone is a sound zone flattened out of its location.
type Zone struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	LocationID   string      `json:"location_id"`
	LocationName string      `json:"location_name"`
	NowPlaying   *NowPlaying `json:"now_playing,omitempty"`
}

// NowPlaying describes the track a zone is playing.
type NowPlaying struct {
	Track  string `json:"track"`
	Artist string `json:"artist"`
}

const setVolumeMutation = `mutation SetVolume($soundZoneId: ID!, $volume: Int!) {
  setSoundZoneVolume(input: { soundZoneId: $soundZoneId, volume: $volume }) {
    soundZone { id volume }
  }
}`

// SetVolume sets a sound zone's volume. The level is clamped to 0..16.
// Repeating a call with the same value is harmless.
func (c *Client) SetVolume(ctx context.Context, zoneID string, volume int) error {
	volume = max(0, min(MaxVolume, volume))

	vars := map[string]any{"soundZoneId": zoneID, "volume": volume}
	if err := c.graphql(ctx, setVolumeMutation, vars, nil); err != nil {
		return fmt.Errorf("setting volume for zone %s: %w", zoneID, err)
	}
	return nil
}

const searchAccountsQuery = `query SearchAccounts($query: String!) {
  accounts(filter: { name: { contains: $query } }, first: 20) {
    edges { node { id businessName businessType } }
  }
}`

// SearchAccounts returns up to 20 accounts whose name contains query.
func (c *Client) SearchAccounts(ctx context.Context, query string) ([]Account, error) {
	var data struct {
		Accounts struct {
			Edges []struct {
				Node struct {
					ID           string `json:"id"`
					BusinessName string `json:"businessName"`
					BusinessType string `json:"businessType"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"accounts"`
	}

	if err := c.graphql(ctx, searchAccountsQuery, map[string]any{"query": query}, &data); err != nil {
		return nil, fmt.Errorf("searching accounts: %w", err)
	}

	accounts := make([]Account, 0, len(data.Accounts.Edges))
	for _, e := range data.Accounts.Edges {
		accounts = append(accounts, Account{
			ID:           e.Node.ID,
			Name:         e.Node.BusinessName,
			BusinessType: e.Node.BusinessType,
		})
	}
	return accounts, nil
}

const listZonesQuery = `query GetZones($accountId: ID!) {
  account(id: $accountId) {
    locations {
      edges {
        node {
          id
          name
          soundZones {
            edges {
              node {
                id
                name
                playing { track { name artists { name } } }
              }
            }
          }
        }
      }
    }
  }
}`

// ListZones returns every sound zone of an account across all locations.
func (c *Client) ListZones(ctx context.Context, accountID string) ([]Zone, error) {
	var data struct {
		Account *struct {
			Locations struct {
				Edges []struct {
					Node struct {
						ID         string `json:"id"`
						Name       string `json:"name"`
						SoundZones struct {
							Edges []struct {
								Node struct {
									ID      string `json:"id"`
									Name    string `json:"name"`
									Playing *struct {
										Track *struct {
											Name    string `json:"name"`
											Artists []struct {
												Name string `json:"name"`
											} `json:"artists"`
										} `json:"track"`
									} `json:"playing"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"soundZones"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"locations"`
		} `json:"account"`
	}

	if err := c.graphql(ctx, listZonesQuery, map[string]any{"accountId": accountID}, &data); err != nil {
		return nil, fmt.Errorf("listing zones for account %s: %w", accountID, err)
	}

	zones := []Zone{}
	if data.Account == nil {
		return zones, nil
	}

	for _, loc := range data.Account.Locations.Edges {
		for _, sz := range loc.Node.SoundZones.Edges {
			z := Zone{
				ID:           sz.Node.ID,
				Name:         sz.Node.Name,
				LocationID:   loc.Node.ID,
				LocationName: loc.Node.Name,
			}
			if p := sz.Node.Playing; p != nil && p.Track != nil {
				artists := make([]string, 0, len(p.Track.Artists))
				for _, a := range p.Track.Artists {
					artists = append(artists, a.Name)
				}
				z.NowPlaying = &NowPlaying{
					Track:  p.Track.Name,
					Artist: strings.Join(artists, ", "),
				}
			}
			zones = append(zones, z)
		}
	}
	return zones, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// graphql posts a query and decodes its data into out, which may be nil.
func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, out any) error {
	if !c.configured {
		return ErrNoCredentials
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrTokenRequest) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, ", "))
	}

	if out != nil && len(gr.Data) > 0 {
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}
