package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
)

// SongRepository handles the replace-on-fetch song snapshot for a session.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// ReplaceAll replaces the session's snapshot with the given songs in one
// transaction: delete-then-insert, preserving slice order as insertion
// order. The cursor treats that order as canonical.
func (r *SongRepository) ReplaceAll(sessionID string, songs []models.Song) error {
	for i := range songs {
		songs[i].SessionID = sessionID
		if err := songs[i].Validate(); err != nil {
			return fmt.Errorf("validation failed for song %d: %w", i, err)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM songs WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete prior snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO songs (session_id, spotify_id, title, artist, album, duration_ms, external_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, song := range songs {
		if _, err := stmt.Exec(
			sessionID, song.SpotifyID, song.Title, song.Artist,
			song.Album, song.DurationMS, song.ExternalURL, now,
		); err != nil {
			return fmt.Errorf("failed to insert song %q: %w", song.Title, err)
		}
	}

	return tx.Commit()
}

// ListBySession returns the session's snapshot ordered by insertion order.
func (r *SongRepository) ListBySession(sessionID string) ([]models.Song, error) {
	query := `
		SELECT id, session_id, spotify_id, title, artist, album, duration_ms, external_url
		FROM songs
		WHERE session_id = ?
		ORDER BY id
	`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		var (
			song     models.Song
			album    sql.NullString
			duration sql.NullInt64
			url      sql.NullString
		)

		if err := rows.Scan(
			&song.DBID, &song.SessionID, &song.SpotifyID, &song.Title,
			&song.Artist, &album, &duration, &url,
		); err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}

		song.Album = album.String
		song.DurationMS = int(duration.Int64)
		song.ExternalURL = url.String
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// Count returns the snapshot size for a session.
func (r *SongRepository) Count(sessionID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM songs WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return count, nil
}
