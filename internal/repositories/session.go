package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
)

// Service name constants for Disconnect.
const (
	ServiceSpotify = "spotify"
	ServiceYouTube = "youtube"
)

// SessionRepository handles session rows and their OAuth token blobs.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate returns the session with the given id, inserting a fresh row
// on first visit.
func (r *SessionRepository) GetOrCreate(id string) (*models.Session, error) {
	session, err := r.Get(id)
	if err == nil {
		return session, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	if _, err := r.db.Exec(
		"INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)",
		id, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return r.Get(id)
}

// Get retrieves a session by id. Returns [sql.ErrNoRows] when absent.
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	query := `
		SELECT id, spotify_token, spotify_user_id, youtube_token, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	var (
		session       models.Session
		spotifyToken  sql.NullString
		spotifyUserID sql.NullString
		youtubeToken  sql.NullString
	)

	err := r.db.QueryRow(query, id).Scan(
		&session.ID, &spotifyToken, &spotifyUserID, &youtubeToken,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.SpotifyToken = spotifyToken.String
	session.SpotifyUserID = spotifyUserID.String
	session.YouTubeToken = youtubeToken.String

	return &session, nil
}

// UpdateSpotifyToken stores the Spotify token blob and user id for a session.
func (r *SessionRepository) UpdateSpotifyToken(id, tokenBlob, userID string) error {
	query := `
		UPDATE sessions
		SET spotify_token = ?, spotify_user_id = ?, updated_at = ?
		WHERE id = ?
	`

	return r.execOne(query, tokenBlob, userID, time.Now(), id)
}

// UpdateYouTubeToken stores the YouTube token blob for a session.
//
// Also invoked when a refreshed access token needs persisting.
func (r *SessionRepository) UpdateYouTubeToken(id, tokenBlob string) error {
	query := `
		UPDATE sessions
		SET youtube_token = ?, updated_at = ?
		WHERE id = ?
	`

	return r.execOne(query, tokenBlob, time.Now(), id)
}

// Disconnect clears the stored credential for the named service.
//
// Disconnecting Spotify cascades to delete the session's song snapshot;
// transfers and their ledgers are deliberately left untouched.
func (r *SessionRepository) Disconnect(id, service string) error {
	switch service {
	case ServiceSpotify:
		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			"UPDATE sessions SET spotify_token = NULL, spotify_user_id = NULL, updated_at = ? WHERE id = ?",
			time.Now(), id,
		); err != nil {
			return fmt.Errorf("failed to clear spotify credential: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM songs WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete song snapshot: %w", err)
		}

		return tx.Commit()
	case ServiceYouTube:
		return r.execOne(
			"UPDATE sessions SET youtube_token = NULL, updated_at = ? WHERE id = ?",
			time.Now(), id,
		)
	default:
		return fmt.Errorf("unknown service: %q", service)
	}
}

// Clear deletes all data for a session in foreign-key order:
// results, transfers, songs, then the session row itself.
func (r *SessionRepository) Clear(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM transfer_results WHERE transfer_id IN (SELECT id FROM transfers WHERE session_id = ?)",
		"DELETE FROM transfers WHERE session_id = ?",
		"DELETE FROM songs WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to clear session data: %w", err)
		}
	}

	return tx.Commit()
}

// execOne runs an update and verifies that exactly one row was touched.
func (r *SessionRepository) execOne(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found")
	}

	return nil
}
