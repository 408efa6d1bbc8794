package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newSpotifyTestServers(t *testing.T, popularity int64) (tokenURL, apiURL string, tokenCalls *int) {
	t.Helper()
	calls := new(int)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if r.PostForm.Get("client_id") == "" || r.PostForm.Get("client_secret") == "" {
			t.Error("missing client credentials in token request")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/tracks/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"track","popularity":` + strconv.FormatInt(popularity, 10) + `}`))
	}))
	t.Cleanup(apiSrv.Close)

	return tokenSrv.URL, apiSrv.URL, calls
}

func TestTrackPopularity(t *testing.T) {
	tokenURL, apiURL, tokenCalls := newSpotifyTestServers(t, 87)

	client, err := NewSpotifyClient(SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
		APIURL:       apiURL,
	}, nil)
	if err != nil {
		t.Fatalf("NewSpotifyClient: %v", err)
	}

	got, err := client.TrackPopularity(context.Background(), "4uLU6hMCjMI75M1A2tKUQC")
	if err != nil {
		t.Fatalf("TrackPopularity: %v", err)
	}
	if got != 87 {
		t.Fatalf("popularity = %d, want 87", got)
	}

	// Second call reuses the cached token.
	if _, err := client.TrackPopularity(context.Background(), "4uLU6hMCjMI75M1A2tKUQC"); err != nil {
		t.Fatalf("second TrackPopularity: %v", err)
	}
	if *tokenCalls != 1 {
		t.Fatalf("token endpoint called %d times, want 1", *tokenCalls)
	}
}

func TestTrackPopularityStaticToken(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer static-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"popularity":42}`))
	}))
	defer apiSrv.Close()

	client, err := NewSpotifyClient(SpotifyConfig{
		StaticToken: "static-tok",
		APIURL:      apiSrv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("NewSpotifyClient: %v", err)
	}

	got, err := client.TrackPopularity(context.Background(), "abc")
	if err != nil {
		t.Fatalf("TrackPopularity: %v", err)
	}
	if got != 42 {
		t.Fatalf("popularity = %d, want 42", got)
	}
}

func TestTrackPopularityUnauthorizedDropsToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"expired","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer apiSrv.Close()

	client, err := NewSpotifyClient(SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
		APIURL:       apiSrv.URL,
	}, nil)
	if err != nil {
		t.Fatalf("NewSpotifyClient: %v", err)
	}

	if _, err := client.TrackPopularity(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for unauthorized response")
	}

	client.mu.Lock()
	cached := client.accessToken
	client.mu.Unlock()
	if cached != "" {
		t.Fatalf("token not dropped after 401, still %q", cached)
	}
}

func TestNewSpotifyClientMissingCredentials(t *testing.T) {
	if _, err := NewSpotifyClient(SpotifyConfig{}, nil); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestTrackPopularityEmptyTrackID(t *testing.T) {
	client, err := NewSpotifyClient(SpotifyConfig{StaticToken: "tok"}, nil)
	if err != nil {
		t.Fatalf("NewSpotifyClient: %v", err)
	}
	if _, err := client.TrackPopularity(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty track id")
	}
}
