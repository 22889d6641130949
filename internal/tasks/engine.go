package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/time/rate"
)

// Destination combines the two destination-side capabilities a step needs.
type Destination interface {
	services.MatchSearcher
	services.PlaylistWriter
}

// SourceFactory builds a source library reader from a session's stored
// token blob. A fresh client per call; no shared mutable client state.
type SourceFactory func(ctx context.Context, tokenBlob string) (services.LibraryReader, error)

// DestinationFactory builds a destination client from a session's stored
// token blob. onRefresh receives the updated blob whenever the access
// token is transparently refreshed.
type DestinationFactory func(ctx context.Context, tokenBlob string, onRefresh func(newBlob string)) (Destination, error)

// StepOutput is the response payload for one advance of the state machine.
type StepOutput struct {
	Result    models.StepResult `json:"result"`
	Progress  models.Progress   `json:"progress"`
	Completed bool              `json:"completed"`
}

// StatusOutput is the read-only view of the active transfer.
type StatusOutput struct {
	PlaylistID   string                  `json:"playlist_id"`
	PlaylistName string                  `json:"playlist_name"`
	Progress     models.Progress         `json:"progress"`
	Completed    bool                    `json:"completed"`
	Results      []models.TransferResult `json:"results"`
}

// EngineOpts contains dependencies and tuning for a TransferEngine.
type EngineOpts struct {
	Sessions     *repositories.SessionRepository
	Songs        *repositories.SongRepository
	Transfers    *repositories.TransferRepository
	Source       SourceFactory
	Destination  DestinationFactory
	StepInterval time.Duration // minimum spacing between steps, defaults to 100ms
	Logger       *log.Logger
}

// TransferEngine drives the transfer state machine against the
// persistence layer and the two external services.
type TransferEngine struct {
	sessions    *repositories.SessionRepository
	songs       *repositories.SongRepository
	transfers   *repositories.TransferRepository
	source      SourceFactory
	destination DestinationFactory
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewTransferEngine creates a TransferEngine from the given options.
func NewTransferEngine(opts EngineOpts) *TransferEngine {
	if opts.StepInterval <= 0 {
		opts.StepInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &TransferEngine{
		sessions:    opts.Sessions,
		songs:       opts.Songs,
		transfers:   opts.Transfers,
		source:      opts.Source,
		destination: opts.Destination,
		limiter:     rate.NewLimiter(rate.Every(opts.StepInterval), 1),
		logger:      opts.Logger,
	}
}

// FetchSongs reads the complete liked library from the source service and
// replaces the session's snapshot.
//
// Rejected with [shared.ErrTransferInProgress] while an active transfer
// exists: the cursor indexes the snapshot by position, so swapping the
// snapshot under a live transfer could silently reprocess or skip songs.
func (e *TransferEngine) FetchSongs(ctx context.Context, sessionID string) ([]models.Song, error) {
	session, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.SpotifyConnected() {
		return nil, fmt.Errorf("%w: spotify not connected", shared.ErrNotAuthenticated)
	}

	if _, err := e.transfers.Active(sessionID); err == nil {
		return nil, shared.ErrTransferInProgress
	} else if err != shared.ErrNoActiveTransfer {
		return nil, err
	}

	reader, err := e.source(ctx, session.SpotifyToken)
	if err != nil {
		return nil, err
	}

	songs, err := reader.LikedSongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch liked songs: %w", err)
	}

	if err := e.songs.ReplaceAll(sessionID, songs); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	e.logger.Info("snapshot replaced", "session", sessionID, "songs", len(songs))

	return e.songs.ListBySession(sessionID)
}

// Start creates the destination playlist and a new pending transfer whose
// total is fixed to the snapshot size. The new transfer supersedes any
// prior one as "active" by recency; old rows are kept.
func (e *TransferEngine) Start(ctx context.Context, sessionID, playlistName string) (*models.Transfer, error) {
	session, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.SpotifyConnected() || !session.YouTubeConnected() {
		return nil, fmt.Errorf("%w: both services must be connected", shared.ErrNotAuthenticated)
	}

	count, err := e.songs.Count(sessionID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, shared.ErrEmptyLibrary
	}

	if playlistName == "" {
		playlistName = fmt.Sprintf("Spotify Liked Songs - %s", time.Now().Format("2006-01-02"))
	}

	dest, err := e.destinationClient(ctx, session)
	if err != nil {
		return nil, err
	}

	playlistID, err := dest.CreatePlaylist(ctx, playlistName, "Playlist created from Spotify liked songs")
	if err != nil {
		return nil, err
	}

	transfer := &models.Transfer{
		SessionID:    sessionID,
		PlaylistID:   playlistID,
		PlaylistName: playlistName,
		Total:        count,
	}
	if err := e.transfers.Create(transfer); err != nil {
		return nil, err
	}

	e.logger.Info("transfer started",
		"session", sessionID, "transfer", transfer.ID,
		"playlist", playlistID, "total", count)

	return transfer, nil
}

// Step advances the active transfer by exactly one song.
//
// The cursor is the persisted processed count; search and append failures
// degrade to recorded outcomes and the cursor still moves. The counter
// bump and ledger append are applied atomically by the repository, keyed
// on the cursor value this step read, so a racing step loses cleanly.
func (e *TransferEngine) Step(ctx context.Context, sessionID string) (*StepOutput, error) {
	transfer, err := e.transfers.Active(sessionID)
	if err == shared.ErrNoActiveTransfer {
		// A finished transfer is no longer "active" but a further step
		// against it is an AlreadyComplete, not a missing transfer.
		if latest, lerr := e.transfers.Latest(sessionID); lerr == nil && latest.Completed() {
			return nil, shared.ErrTransferComplete
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	songs, err := e.songs.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, shared.ErrEmptyLibrary
	}

	idx := transfer.Processed
	if idx >= transfer.Total || idx >= len(songs) {
		return nil, shared.ErrTransferComplete
	}
	song := songs[idx]

	session, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.YouTubeConnected() {
		return nil, fmt.Errorf("%w: youtube not connected", shared.ErrNotAuthenticated)
	}

	dest, err := e.destinationClient(ctx, session)
	if err != nil {
		return nil, err
	}

	// Fixed pacing between steps to respect destination API quotas.
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	match, err := dest.SearchVideo(ctx, song.Title, song.Artist)
	if err != nil {
		// A search failure never aborts the step or loses the cursor
		// position; it degrades to a not_found outcome.
		e.logger.Warn("search failed", "session", sessionID, "song", song.Title, "error", err)
		match = nil
	}

	status := models.ResultNotFound
	added := false
	if match != nil {
		if err := dest.AddToPlaylist(ctx, transfer.PlaylistID, match.VideoID); err != nil {
			e.logger.Warn("playlist append failed",
				"session", sessionID, "video", match.VideoID, "error", err)
			status = models.ResultAddFailed
		} else {
			status = models.ResultSuccess
			added = true
		}
	}

	result := &models.TransferResult{
		SongID: song.DBID,
		Song: models.SongRef{
			SpotifyID: song.SpotifyID,
			Title:     song.Title,
			Artist:    song.Artist,
			Album:     song.Album,
		},
		Match:           match,
		Status:          status,
		AddedToPlaylist: added,
	}

	updated, err := e.transfers.AdvanceStep(transfer.ID, idx, result)
	if err != nil {
		return nil, err
	}

	return &StepOutput{
		Result: models.StepResult{
			Song:            result.Song,
			Match:           result.Match,
			Status:          result.Status,
			AddedToPlaylist: result.AddedToPlaylist,
		},
		Progress:  updated.Progress(),
		Completed: updated.Completed(),
	}, nil
}

// Status is a pure read of the active transfer: counters, percentage from
// the total stored at creation time, and the full ordered ledger.
func (e *TransferEngine) Status(sessionID string) (*StatusOutput, error) {
	transfer, err := e.transfers.Active(sessionID)
	if err != nil {
		return nil, err
	}

	results, err := e.transfers.ListResults(transfer.ID)
	if err != nil {
		return nil, err
	}

	return &StatusOutput{
		PlaylistID:   transfer.PlaylistID,
		PlaylistName: transfer.PlaylistName,
		Progress:     transfer.Progress(),
		Completed:    transfer.Completed(),
		Results:      results,
	}, nil
}

// destinationClient builds a destination client for the session,
// persisting any transparently refreshed token back onto the session row.
func (e *TransferEngine) destinationClient(ctx context.Context, session *models.Session) (Destination, error) {
	sessionID := session.ID
	return e.destination(ctx, session.YouTubeToken, func(newBlob string) {
		if err := e.sessions.UpdateYouTubeToken(sessionID, newBlob); err != nil {
			e.logger.Warn("failed to persist refreshed token", "session", sessionID, "error", err)
		}
	})
}
