// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/tunesync/internal/models"
)

// MockReader is a test double for [services.LibraryReader].
type MockReader struct {
	Songs []models.Song
	Err   error
	Calls int
}

func (m *MockReader) LikedSongs(ctx context.Context) ([]models.Song, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Songs, nil
}

// MockDestination is a test double for the destination service, covering
// both search and playlist writes. Zero-value behavior: every search
// matches and every append succeeds.
type MockDestination struct {
	SearchFunc func(title, artist string) (*models.VideoMatch, error)
	CreateFunc func(title, description string) (string, error)
	AddFunc    func(playlistID, videoID string) error

	SearchCalls int
	CreateCalls int
	AddCalls    int
}

func (m *MockDestination) SearchVideo(ctx context.Context, title, artist string) (*models.VideoMatch, error) {
	m.SearchCalls++
	if m.SearchFunc != nil {
		return m.SearchFunc(title, artist)
	}
	return &models.VideoMatch{
		VideoID:   "vid-" + title,
		Title:     title,
		Channel:   artist,
		Thumbnail: "https://example.com/thumb.jpg",
	}, nil
}

func (m *MockDestination) CreatePlaylist(ctx context.Context, title, description string) (string, error) {
	m.CreateCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(title, description)
	}
	return "PL-test", nil
}

func (m *MockDestination) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	m.AddCalls++
	if m.AddFunc != nil {
		return m.AddFunc(playlistID, videoID)
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// JSONResponse builds an *http.Response with a JSON body for use with
// [MockRoundTripper].
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// SongFixtures returns n snapshot songs named Song 1..n.
func SongFixtures(n int) []models.Song {
	songs := make([]models.Song, n)
	for i := range songs {
		songs[i] = models.Song{
			SpotifyID:   fmt.Sprintf("sp%d", i+1),
			Title:       fmt.Sprintf("Song %d", i+1),
			Artist:      fmt.Sprintf("Artist %d", i+1),
			Album:       fmt.Sprintf("Album %d", i+1),
			DurationMS:  180000,
			ExternalURL: fmt.Sprintf("https://open.spotify.com/track/sp%d", i+1),
		}
	}
	return songs
}
