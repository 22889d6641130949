// Spotify client for the source side of a transfer.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultPageSize = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifyAuth wraps the OAuth2 authorization-code flow for Spotify.
type SpotifyAuth struct {
	config *oauth2.Config
}

// NewSpotifyAuth creates the OAuth2 config for Spotify from app credentials.
func NewSpotifyAuth(cfg shared.SpotifyConfig) (*SpotifyAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	return &SpotifyAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				"user-library-read",
				"user-read-private",
				"user-read-email",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
	}, nil
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (a *SpotifyAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (a *SpotifyAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Client builds a token-bound [SpotifyClient] from a stored token blob.
func (a *SpotifyAuth) Client(ctx context.Context, tokenBlob string) (*SpotifyClient, error) {
	token, err := UnmarshalToken(tokenBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}

	return &SpotifyClient{
		httpClient: a.config.Client(ctx, token),
		pageSize:   defaultPageSize,
	}, nil
}

// SpotifyClient is a per-session client bound to one user's token.
// Implements [LibraryReader].
type SpotifyClient struct {
	httpClient *http.Client
	pageSize   int
	baseURL    string // overridable for tests
}

// SetPageSize bounds the saved-tracks page size (Spotify caps at 50).
func (c *SpotifyClient) SetPageSize(n int) {
	if n > 0 && n <= defaultPageSize {
		c.pageSize = n
	}
}

// doRequest performs an authenticated GET against the Spotify API.
func (c *SpotifyClient) doRequest(ctx context.Context, endpoint string, result any) error {
	base := c.baseURL
	if base == "" {
		base = spotifyBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return shared.ErrTokenExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (c *SpotifyClient) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (c *SpotifyClient) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedTracks
	if err := c.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// LikedSongs fetches the complete saved-tracks library, following the
// pagination cursor until exhausted. Pages are flattened in source order
// and de-duplicated by track id; multiple artists are comma-joined.
func (c *SpotifyClient) LikedSongs(ctx context.Context) ([]models.Song, error) {
	var songs []models.Song
	seen := make(map[string]bool)
	offset := 0

	for {
		page, err := c.SavedTracks(ctx, c.pageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			track := item.Track
			if track.ID == "" || seen[track.ID] {
				continue
			}
			seen[track.ID] = true

			names := make([]string, len(track.Artists))
			for i, artist := range track.Artists {
				names[i] = artist.Name
			}

			songs = append(songs, models.Song{
				SpotifyID:   track.ID,
				Title:       track.Name,
				Artist:      strings.Join(names, ", "),
				Album:       track.Album.Name,
				DurationMS:  track.DurationMS,
				ExternalURL: track.ExternalURLs.Spotify,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += page.Limit
	}

	return songs, nil
}
