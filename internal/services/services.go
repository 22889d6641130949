package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"golang.org/x/oauth2"
)

// LibraryReader pages through the source service's saved-items API and
// returns the complete library as one ordered, de-duplicated sequence.
type LibraryReader interface {
	LikedSongs(ctx context.Context) ([]models.Song, error)
}

// MatchSearcher queries the destination's search index for a best-effort
// match. A nil match with a nil error means the index had nothing
// relevant; transport errors are returned for the caller to degrade.
type MatchSearcher interface {
	SearchVideo(ctx context.Context, title, artist string) (*models.VideoMatch, error)
}

// PlaylistWriter creates a destination playlist and appends matched items
// to it. Both operations are single-attempt; failures are reported upward,
// never retried or swallowed.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, title, description string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// MarshalToken serializes an [oauth2.Token] into the opaque blob stored on
// a session row.
func MarshalToken(token *oauth2.Token) (string, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token: %w", err)
	}
	return string(data), nil
}

// UnmarshalToken parses a stored token blob back into an [oauth2.Token].
func UnmarshalToken(blob string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(blob), &token); err != nil {
		return nil, fmt.Errorf("failed to parse token blob: %w", err)
	}
	return &token, nil
}
