package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// TransferRepository handles transfer rows and their append-only result
// ledger.
type TransferRepository struct {
	db *sql.DB
}

// NewTransferRepository creates a new TransferRepository with the given database connection
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts a new pending transfer with counters at zero and fills in
// its generated id.
func (r *TransferRepository) Create(transfer *models.Transfer) error {
	now := time.Now()
	transfer.Status = models.TransferPending
	transfer.Processed = 0
	transfer.Successful = 0
	transfer.Failed = 0
	transfer.CreatedAt = now
	transfer.UpdatedAt = now

	if err := transfer.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO transfers (session_id, playlist_id, playlist_name, total_songs, processed, successful, failed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		transfer.SessionID, transfer.PlaylistID, transfer.PlaylistName,
		transfer.Total, transfer.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transfer id: %w", err)
	}
	transfer.ID = id

	return nil
}

// Get retrieves a transfer by id.
func (r *TransferRepository) Get(id int64) (*models.Transfer, error) {
	query := selectTransfer + " WHERE id = ?"
	return scanTransfer(r.db.QueryRow(query, id))
}

// Active returns the session's active transfer: the most recently created
// one whose status is not completed. Returns [shared.ErrNoActiveTransfer]
// when none exists.
func (r *TransferRepository) Active(sessionID string) (*models.Transfer, error) {
	query := selectTransfer + `
		WHERE session_id = ? AND status != ?
		ORDER BY id DESC LIMIT 1
	`

	transfer, err := scanTransfer(r.db.QueryRow(query, sessionID, models.TransferCompleted))
	if err == sql.ErrNoRows {
		return nil, shared.ErrNoActiveTransfer
	}
	return transfer, err
}

// Latest returns the session's most recently created transfer regardless
// of status. Returns [sql.ErrNoRows] when the session has none.
func (r *TransferRepository) Latest(sessionID string) (*models.Transfer, error) {
	query := selectTransfer + `
		WHERE session_id = ?
		ORDER BY id DESC LIMIT 1
	`
	return scanTransfer(r.db.QueryRow(query, sessionID))
}

// AdvanceStep durably applies one step of the state machine: the counter
// bump and the ledger append commit together or not at all.
//
// The counter update is conditioned on processed == expectedProcessed, an
// optimistic concurrency check. A second racer that read the same cursor
// finds zero rows affected and gets [shared.ErrStepConflict] with no state
// change. Returns the transfer as it stands after the step.
func (r *TransferRepository) AdvanceStep(transferID int64, expectedProcessed int, result *models.TransferResult) (*models.Transfer, error) {
	result.TransferID = transferID
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	successDelta := 0
	failedDelta := 0
	if result.Status == models.ResultSuccess {
		successDelta = 1
	} else {
		failedDelta = 1
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	update := `
		UPDATE transfers
		SET processed = processed + 1,
			successful = successful + ?,
			failed = failed + ?,
			status = CASE WHEN processed + 1 >= total_songs THEN ? ELSE ? END,
			updated_at = ?
		WHERE id = ? AND processed = ? AND status != ?
	`

	res, err := tx.Exec(update,
		successDelta, failedDelta,
		models.TransferCompleted, models.TransferProcessing, now,
		transferID, expectedProcessed, models.TransferCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to advance cursor: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, shared.ErrStepConflict
	}

	var (
		videoID, videoTitle, videoChannel, videoThumbnail any
		songID                                            any
	)
	if result.Match != nil {
		videoID = result.Match.VideoID
		videoTitle = result.Match.Title
		videoChannel = result.Match.Channel
		videoThumbnail = result.Match.Thumbnail
	}
	if result.SongID != 0 {
		songID = result.SongID
	}

	insert := `
		INSERT INTO transfer_results (transfer_id, song_id, song_spotify_id, song_title, song_artist, song_album, video_id, video_title, video_channel, video_thumbnail, status, added_to_playlist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.Exec(insert,
		transferID, songID,
		result.Song.SpotifyID, result.Song.Title, result.Song.Artist, result.Song.Album,
		videoID, videoTitle, videoChannel, videoThumbnail,
		result.Status, result.AddedToPlaylist, now,
	); err != nil {
		return nil, fmt.Errorf("failed to append ledger row: %w", err)
	}

	transfer, err := scanTransfer(tx.QueryRow(selectTransfer+" WHERE id = ?", transferID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit step: %w", err)
	}

	return transfer, nil
}

// ListResults returns the transfer's ledger in processing order.
func (r *TransferRepository) ListResults(transferID int64) ([]models.TransferResult, error) {
	query := `
		SELECT id, transfer_id, song_id, song_spotify_id, song_title, song_artist, song_album,
			video_id, video_title, video_channel, video_thumbnail, status, added_to_playlist, created_at
		FROM transfer_results
		WHERE transfer_id = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.TransferResult
	for rows.Next() {
		var (
			result         models.TransferResult
			songID         sql.NullInt64
			album          sql.NullString
			videoID        sql.NullString
			videoTitle     sql.NullString
			videoChannel   sql.NullString
			videoThumbnail sql.NullString
		)

		if err := rows.Scan(
			&result.ID, &result.TransferID, &songID,
			&result.Song.SpotifyID, &result.Song.Title, &result.Song.Artist, &album,
			&videoID, &videoTitle, &videoChannel, &videoThumbnail,
			&result.Status, &result.AddedToPlaylist, &result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		result.SongID = songID.Int64
		result.Song.Album = album.String
		if videoID.Valid {
			result.Match = &models.VideoMatch{
				VideoID:   videoID.String,
				Title:     videoTitle.String,
				Channel:   videoChannel.String,
				Thumbnail: videoThumbnail.String,
			}
		}

		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// CountResults returns the ledger length for a transfer.
func (r *TransferRepository) CountResults(transferID int64) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transfer_results WHERE transfer_id = ?", transferID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

const selectTransfer = `
	SELECT id, session_id, playlist_id, playlist_name, total_songs, processed, successful, failed, status, created_at, updated_at
	FROM transfers
`

// row abstracts *sql.Row for reuse inside transactions.
type row interface {
	Scan(dest ...any) error
}

// scanTransfer scans a single transfer row.
func scanTransfer(r row) (*models.Transfer, error) {
	var transfer models.Transfer

	err := r.Scan(
		&transfer.ID, &transfer.SessionID, &transfer.PlaylistID, &transfer.PlaylistName,
		&transfer.Total, &transfer.Processed, &transfer.Successful, &transfer.Failed,
		&transfer.Status, &transfer.CreatedAt, &transfer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}

	return &transfer, nil
}
