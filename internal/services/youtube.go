// YouTube Data API v3 client for the destination side of a transfer.
//
// Covers the three operations the state machine needs: bounded search in
// the music category, playlist creation, and playlist-item insertion.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	youtubeAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	youtubeTokenURL = "https://oauth2.googleapis.com/token"
	youtubeBaseURL  = "https://www.googleapis.com/youtube/v3"

	// videoCategoryMusic is YouTube's "Music" content category, used to
	// scope every match search.
	videoCategoryMusic = "10"

	defaultSearchMaxResults = 5
)

// YouTubeAuth wraps the OAuth2 authorization-code flow for the YouTube
// Data API.
type YouTubeAuth struct {
	config *oauth2.Config
}

// NewYouTubeAuth creates the OAuth2 config for YouTube from app credentials.
func NewYouTubeAuth(cfg shared.YouTubeConfig) (*YouTubeAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: youtube client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	return &YouTubeAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				"https://www.googleapis.com/auth/youtube",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  youtubeAuthURL,
				TokenURL: youtubeTokenURL,
			},
		},
	}, nil
}

// AuthURL returns the OAuth2 authorization URL for user login.
//
// Requests offline access so a refresh token is issued.
func (a *YouTubeAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (a *YouTubeAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Client builds a token-bound [YouTubeClient] from a stored token blob.
//
// The client's token source refreshes expired access tokens transparently;
// when onRefresh is non-nil it receives the re-marshaled blob so the
// caller can persist it.
func (a *YouTubeAuth) Client(ctx context.Context, tokenBlob string, onRefresh func(newBlob string)) (*YouTubeClient, error) {
	token, err := UnmarshalToken(tokenBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}

	src := oauth2.TokenSource(a.config.TokenSource(ctx, token))
	if onRefresh != nil {
		src = &persistingSource{src: src, lastAccess: token.AccessToken, onRefresh: onRefresh}
	}

	return &YouTubeClient{
		httpClient: oauth2.NewClient(ctx, src),
		maxResults: defaultSearchMaxResults,
	}, nil
}

// persistingSource wraps a refreshing [oauth2.TokenSource] and reports
// refreshed tokens so the session row stays current.
type persistingSource struct {
	src        oauth2.TokenSource
	lastAccess string
	onRefresh  func(newBlob string)
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if token.AccessToken != p.lastAccess {
		p.lastAccess = token.AccessToken
		if blob, err := MarshalToken(token); err == nil {
			p.onRefresh(blob)
		}
	}

	return token, nil
}

// YouTubeClient is a per-session client bound to one user's token.
// Implements [MatchSearcher] and [PlaylistWriter].
type YouTubeClient struct {
	httpClient *http.Client
	maxResults int
	baseURL    string // overridable for tests
}

// SetMaxResults bounds the top-K search query size.
func (c *YouTubeClient) SetMaxResults(n int) {
	if n > 0 {
		c.maxResults = n
	}
}

func (c *YouTubeClient) endpoint(path string) string {
	if c.baseURL != "" {
		return c.baseURL + path
	}
	return youtubeBaseURL + path
}

// doRequest performs an authenticated request with an optional JSON body.
func (c *YouTubeClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("%w: youtube status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("%w: youtube status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type searchThumbnail struct {
	URL string `json:"url"`
}

type searchSnippet struct {
	Title        string                     `json:"title"`
	ChannelTitle string                     `json:"channelTitle"`
	Thumbnails   map[string]searchThumbnail `json:"thumbnails"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet searchSnippet `json:"snippet"`
}

// SearchVideo issues one bounded top-K query scoped to the music category
// and returns the first ranked item. A (nil, nil) return means the index
// had no match; no further ranking or disambiguation is performed.
func (c *YouTubeClient) SearchVideo(ctx context.Context, title, artist string) (*models.VideoMatch, error) {
	params := url.Values{}
	params.Set("part", "id,snippet")
	params.Set("q", fmt.Sprintf("%s %s", title, artist))
	params.Set("maxResults", strconv.Itoa(c.maxResults))
	params.Set("type", "video")
	params.Set("videoCategoryId", videoCategoryMusic)

	var response struct {
		Items []searchItem `json:"items"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	if len(response.Items) == 0 {
		return nil, nil
	}

	item := response.Items[0]
	match := &models.VideoMatch{
		VideoID: item.ID.VideoID,
		Title:   item.Snippet.Title,
		Channel: item.Snippet.ChannelTitle,
	}
	if thumb, ok := item.Snippet.Thumbnails["default"]; ok {
		match.Thumbnail = thumb.URL
	}

	return match, nil
}

// CreatePlaylist creates a private playlist and returns its id. Called
// exactly once per transfer, at creation.
func (c *YouTubeClient) CreatePlaylist(ctx context.Context, title, description string) (string, error) {
	body := map[string]any{
		"snippet": map[string]string{
			"title":       title,
			"description": description,
		},
		"status": map[string]string{
			"privacyStatus": "private",
		},
	}

	var response struct {
		ID string `json:"id"`
	}

	if err := c.doRequest(ctx, http.MethodPost, "/playlists?part=snippet,status", body, &response); err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}

	if response.ID == "" {
		return "", fmt.Errorf("%w: playlist creation returned no id", shared.ErrAPIRequest)
	}

	return response.ID, nil
}

// AddToPlaylist appends a video to the playlist. Single attempt; the
// caller decides what a failure means for the step outcome.
func (c *YouTubeClient) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	body := map[string]any{
		"snippet": map[string]any{
			"playlistId": playlistID,
			"resourceId": map[string]string{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
		},
	}

	if err := c.doRequest(ctx, http.MethodPost, "/playlistItems?part=snippet", body, nil); err != nil {
		return fmt.Errorf("failed to add video %s to playlist %s: %w", videoID, playlistID, err)
	}

	return nil
}
