package models

import (
	"fmt"
	"time"
)

// TransferStatus enumerates the state machine states for a transfer.
//
// pending (no songs processed) → processing (1..N-1 processed) → completed
// (N processed). completed is terminal.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferProcessing TransferStatus = "processing"
	TransferCompleted  TransferStatus = "completed"
)

// ResultStatus enumerates per-song step outcomes.
//
// Outcomes are first-class recorded values, not errors: a not_found or
// add_failed song still advances the cursor.
type ResultStatus string

const (
	ResultSuccess   ResultStatus = "success"    // match found and appended to the playlist
	ResultNotFound  ResultStatus = "not_found"  // destination search produced no match
	ResultAddFailed ResultStatus = "add_failed" // match found but the playlist append failed
)

// Session identifies one user's workspace and carries the opaque OAuth
// token blobs for both services. A blob is the empty string while the
// service is disconnected.
type Session struct {
	ID            string
	SpotifyToken  string
	SpotifyUserID string
	YouTubeToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks that the session has an identifier.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}

// SpotifyConnected reports whether a Spotify token blob is stored.
func (s *Session) SpotifyConnected() bool { return s.SpotifyToken != "" }

// YouTubeConnected reports whether a YouTube token blob is stored.
func (s *Session) YouTubeConnected() bool { return s.YouTubeToken != "" }

// Song is an immutable-once-written snapshot row of one source-library
// item. DBID is the insertion-ordered key the transfer cursor indexes by.
type Song struct {
	DBID        int64  `json:"-"`
	SessionID   string `json:"-"`
	SpotifyID   string `json:"id"`
	Title       string `json:"name"`
	Artist      string `json:"artist"` // comma-joined when a track has several
	Album       string `json:"album"`
	DurationMS  int    `json:"duration_ms"`
	ExternalURL string `json:"external_url"`
}

// Validate checks required song fields.
func (s *Song) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("song session id is required")
	}
	if s.SpotifyID == "" {
		return fmt.Errorf("song spotify id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("song title is required")
	}
	return nil
}

// Transfer is the unit of migration work. Total is fixed at creation to
// the snapshot size; processed doubles as the positional cursor into the
// snapshot.
type Transfer struct {
	ID           int64
	SessionID    string
	PlaylistID   string
	PlaylistName string
	Total        int
	Processed    int
	Successful   int
	Failed       int
	Status       TransferStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the counter invariants: processed = successful + failed
// and 0 <= processed <= total.
func (t *Transfer) Validate() error {
	if t.SessionID == "" {
		return fmt.Errorf("transfer session id is required")
	}
	if t.PlaylistID == "" {
		return fmt.Errorf("transfer playlist id is required")
	}
	if t.Total < 0 || t.Processed < 0 || t.Successful < 0 || t.Failed < 0 {
		return fmt.Errorf("transfer counters must be non-negative")
	}
	if t.Processed > t.Total {
		return fmt.Errorf("processed (%d) exceeds total (%d)", t.Processed, t.Total)
	}
	if t.Processed != t.Successful+t.Failed {
		return fmt.Errorf("processed (%d) != successful (%d) + failed (%d)", t.Processed, t.Successful, t.Failed)
	}
	switch t.Status {
	case TransferPending, TransferProcessing, TransferCompleted:
	default:
		return fmt.Errorf("invalid transfer status: %q", t.Status)
	}
	return nil
}

// Completed reports whether the transfer reached its terminal state.
func (t *Transfer) Completed() bool { return t.Status == TransferCompleted }

// Progress returns the transfer's counters as a display payload.
//
// The percentage is derived from the total stored on the transfer at
// creation time, never from a fresh snapshot count.
func (t *Transfer) Progress() Progress {
	return NewProgress(t.Processed, t.Total, t.Successful, t.Failed)
}

// VideoMatch holds destination-match metadata for a processed song.
type VideoMatch struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Thumbnail string `json:"thumbnail"`
}

// SongRef is the denormalized song identity recorded on a ledger row. It
// survives snapshot replacement and source disconnects.
type SongRef struct {
	SpotifyID string `json:"id"`
	Title     string `json:"name"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
}

// TransferResult is one append-only ledger entry, produced exactly once
// per processed song index in increasing order.
type TransferResult struct {
	ID              int64        `json:"-"`
	TransferID      int64        `json:"-"`
	SongID          int64        `json:"-"` // 0 once the snapshot row is gone
	Song            SongRef      `json:"song"`
	Match           *VideoMatch  `json:"youtube_match"` // nil when no match was found
	Status          ResultStatus `json:"status"`
	AddedToPlaylist bool         `json:"added_to_playlist"`
	CreatedAt       time.Time    `json:"-"`
}

// Validate checks ledger row consistency: a success or add_failed outcome
// requires match metadata, not_found forbids it.
func (r *TransferResult) Validate() error {
	if r.TransferID == 0 {
		return fmt.Errorf("result transfer id is required")
	}
	switch r.Status {
	case ResultSuccess:
		if r.Match == nil {
			return fmt.Errorf("success result requires a match")
		}
		if !r.AddedToPlaylist {
			return fmt.Errorf("success result must be added to the playlist")
		}
	case ResultAddFailed:
		if r.Match == nil {
			return fmt.Errorf("add_failed result requires a match")
		}
		if r.AddedToPlaylist {
			return fmt.Errorf("add_failed result cannot be added to the playlist")
		}
	case ResultNotFound:
		if r.Match != nil {
			return fmt.Errorf("not_found result cannot carry a match")
		}
		if r.AddedToPlaylist {
			return fmt.Errorf("not_found result cannot be added to the playlist")
		}
	default:
		return fmt.Errorf("invalid result status: %q", r.Status)
	}
	return nil
}

// Progress reports transfer counters plus a computed percentage.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// NewProgress builds a Progress payload, computing the percentage from
// current/total. The percentage is display-only and never persisted.
func NewProgress(current, total, successful, failed int) Progress {
	p := Progress{Current: current, Total: total, Successful: successful, Failed: failed}
	if total > 0 {
		p.Percentage = float64(current) / float64(total) * 100
	}
	return p
}

// StepResult is the outcome of one advance of the state machine.
type StepResult struct {
	Song            SongRef      `json:"song"`
	Match           *VideoMatch  `json:"youtube_match"`
	Status          ResultStatus `json:"status"`
	AddedToPlaylist bool         `json:"added_to_playlist"`
}
