// Package oracle measures real-world observables and feeds the ledger's
// resolution path. The only source currently implemented is Spotify track
// popularity.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultAPIURL   = "https://api.spotify.com"

	// tokenSlack is subtracted from the advertised token lifetime so a
	// request never goes out with a token about to expire mid-flight.
	tokenSlack = 30 * time.Second
)

// SpotifyConfig holds credentials and endpoint overrides for the Spotify
// Web API. TokenURL and APIURL default to the public endpoints; tests point
// them at local servers. StaticToken, when set, bypasses the client
// credentials flow entirely.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	StaticToken  string
	TokenURL     string
	APIURL       string
}

// SpotifyClient fetches track popularity from the Spotify Web API using the
// client credentials grant. Tokens are cached until shortly before expiry
// and refreshed on demand.
type SpotifyClient struct {
	cfg  SpotifyConfig
	http *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewSpotifyClient creates a SpotifyClient. A nil httpClient selects a
// default client with a 10-second timeout.
func NewSpotifyClient(cfg SpotifyConfig, httpClient *http.Client) (*SpotifyClient, error) {
	if cfg.StaticToken == "" && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, fmt.Errorf("oracle: missing spotify credentials")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SpotifyClient{cfg: cfg, http: httpClient}, nil
}

// TrackPopularity returns the popularity score (0-100) Spotify reports for
// the given track.
func (c *SpotifyClient) TrackPopularity(ctx context.Context, trackID string) (int64, error) {
	if trackID == "" {
		return 0, fmt.Errorf("oracle: empty track id")
	}

	token, err := c.token(ctx)
	if err != nil {
		return 0, err
	}

	endpoint := c.cfg.APIURL + "/v1/tracks/" + url.PathEscape(trackID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: build track request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: fetch track %s: %w", trackID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked early; drop it so the next call
		// refreshes.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return 0, fmt.Errorf("oracle: fetch track %s: unauthorized", trackID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("oracle: fetch track %s: status %d: %s", trackID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var track struct {
		Popularity int64 `json:"popularity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return 0, fmt.Errorf("oracle: decode track %s: %w", trackID, err)
	}
	return track.Popularity, nil
}

// token returns a valid access token, refreshing via the client credentials
// grant when the cached one is missing or close to expiry.
func (c *SpotifyClient) token(ctx context.Context) (string, error) {
	if c.cfg.StaticToken != "" {
		return c.cfg.StaticToken, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oracle: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("oracle: fetch token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("oracle: decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("oracle: empty access token")
	}

	c.accessToken = tok.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenSlack)
	return c.accessToken, nil
}
