package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"
	"whosetune/internal/config"
	"whosetune/internal/domain"

	"github.com/valyala/fasthttp"
)

const (
	accountsBaseURL = "https://accounts.spotify.com"
	apiBaseURL      = "https://api.spotify.com/v1"
)

type SpotifyClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	client       *fasthttp.Client

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

// RateLimitInfo records the last throttling signal seen from the API.
// Spotify only sends Retry-After on 429 responses.
type RateLimitInfo struct {
	Throttled  bool      `json:"throttled"`
	RetryAfter int       `json:"retry_after"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewSpotifyClient(cfg *config.Config) *SpotifyClient {
	return &SpotifyClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *SpotifyClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *SpotifyClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	c.rateLimit.Throttled = resp.StatusCode() == fasthttp.StatusTooManyRequests
	if retryAfter := string(resp.Header.Peek("Retry-After")); retryAfter != "" {
		if val, err := strconv.Atoi(retryAfter); err == nil {
			c.rateLimit.RetryAfter = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// AuthorizeURL builds the user-facing authorization redirect for the OAuth
// code flow.
func (c *SpotifyClient) AuthorizeURL(state string, scopes string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURL)
	q.Set("scope", scopes)
	q.Set("state", state)
	return accountsBaseURL + "/authorize?" + q.Encode()
}

func (c *SpotifyClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURL)
	return c.doTokenRequest(ctx, form)
}

func (c *SpotifyClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.doTokenRequest(ctx, form)
}

func (c *SpotifyClient) CurrentUser(ctx context.Context, token string) (*UserProfile, error) {
	return doRequest[UserProfile](ctx, c, fasthttp.MethodGet, apiBaseURL+"/me", token, nil)
}

func (c *SpotifyClient) ListPlaylists(ctx context.Context, token string, limit, offset int) (*PlaylistPage, error) {
	u := fmt.Sprintf("%s/me/playlists?limit=%d&offset=%d", apiBaseURL, limit, offset)
	return doRequest[PlaylistPage](ctx, c, fasthttp.MethodGet, u, token, nil)
}

func (c *SpotifyClient) CreatePlaylist(ctx context.Context, token, userID, name string, public bool) (*Playlist, error) {
	u := fmt.Sprintf("%s/users/%s/playlists", apiBaseURL, url.PathEscape(userID))
	body := map[string]any{"name": name, "public": public}
	return doRequest[Playlist](ctx, c, fasthttp.MethodPost, u, token, body)
}

func (c *SpotifyClient) SetPlaylistPublic(ctx context.Context, token, playlistID string, public bool) error {
	u := fmt.Sprintf("%s/playlists/%s", apiBaseURL, playlistID)
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodPut, u, token, map[string]any{"public": public})
	return err
}

func (c *SpotifyClient) ListPlaylistTracks(ctx context.Context, token, playlistID string, limit, offset int) (*PlaylistTracksPage, error) {
	u := fmt.Sprintf("%s/playlists/%s/tracks?limit=%d&offset=%d", apiBaseURL, playlistID, limit, offset)
	return doRequest[PlaylistTracksPage](ctx, c, fasthttp.MethodGet, u, token, nil)
}

func (c *SpotifyClient) AddPlaylistItems(ctx context.Context, token, playlistID string, uris []string) error {
	u := fmt.Sprintf("%s/playlists/%s/tracks", apiBaseURL, playlistID)
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodPost, u, token, map[string]any{"uris": uris})
	return err
}

// CurrentPlayback returns nil without error when nothing is playing (the
// API answers 204 in that case).
func (c *SpotifyClient) CurrentPlayback(ctx context.Context, token string) (*PlaybackResponse, error) {
	return doRequest[PlaybackResponse](ctx, c, fasthttp.MethodGet, apiBaseURL+"/me/player/currently-playing", token, nil)
}

func (c *SpotifyClient) TopTracks(ctx context.Context, token, timeRange string, limit int) (*TopTracksResponse, error) {
	u := fmt.Sprintf("%s/me/top/tracks?time_range=%s&limit=%d", apiBaseURL, url.QueryEscape(timeRange), limit)
	return doRequest[TopTracksResponse](ctx, c, fasthttp.MethodGet, u, token, nil)
}

func (c *SpotifyClient) doTokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(accountsBaseURL + "/api/token")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.SetBodyString(form.Encode())

	if err := c.send(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalAPI, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint status %d", domain.ErrExternalAPI, resp.StatusCode())
	}

	var token TokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalAPI, err)
	}
	return &token, nil
}

func (c *SpotifyClient) send(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}

func doRequest[T any](ctx context.Context, client *SpotifyClient, method, url, token string, body any) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := client.send(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExternalAPI, err)
	}

	client.updateRateLimit(resp)

	switch {
	case resp.StatusCode() == fasthttp.StatusNoContent:
		return nil, nil
	case resp.StatusCode() < 200 || resp.StatusCode() > 299:
		return nil, fmt.Errorf("%w: status %d", domain.ErrExternalAPI, resp.StatusCode())
	}

	var result T
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrExternalAPI, err)
		}
	}
	return &result, nil
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

type PlaylistPage struct {
	Items  []Playlist `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type Playlist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Owner  struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type PlaylistTracksPage struct {
	Items  []PlaylistItem `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type PlaylistItem struct {
	AddedAt string `json:"added_at"`
	Track   *Track `json:"track"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Track struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URI          string   `json:"uri"`
	Artists      []Artist `json:"artists"`
	Album        Album    `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	DurationMs int `json:"duration_ms"`
}

type PlaybackResponse struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
	Item       *Track `json:"item"`
	Context    *struct {
		Type string `json:"type"`
		URI  string `json:"uri"`
	} `json:"context"`
}

type TopTracksResponse struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}
