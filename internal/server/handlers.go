package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// API exposes the transfer state machine as a JSON surface.
type API struct {
	engine   *tasks.TransferEngine
	sessions *repositories.SessionRepository
	logger   *log.Logger
}

// NewAPI creates the JSON API handler set.
func NewAPI(engine *tasks.TransferEngine, sessions *repositories.SessionRepository, logger *log.Logger) *API {
	return &API{engine: engine, sessions: sessions, logger: logger}
}

// Register attaches all API routes to the router.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.Index))
	r.Handle(http.MethodGet, "/api/me", http.HandlerFunc(a.Me))
	r.Handle(http.MethodGet, "/api/fetch-songs", http.HandlerFunc(a.FetchSongs))
	r.Handle(http.MethodPost, "/api/transfer", http.HandlerFunc(a.StartTransfer))
	r.Handle(http.MethodPost, "/api/transfer/process", http.HandlerFunc(a.ProcessStep))
	r.Handle(http.MethodGet, "/api/transfer/status", http.HandlerFunc(a.Status))
}

// Index is the landing route the OAuth flows redirect back to. It points
// clients at the API surface.
func (a *API) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "tunesync",
		"endpoints": []string{
			"/api/me",
			"/api/fetch-songs",
			"/api/transfer",
			"/api/transfer/process",
			"/api/transfer/status",
			"/connect/spotify",
			"/connect/youtube",
		},
	})
}

// Me reports connection status for the session.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	session, err := a.sessions.Get(SessionID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"spotify_connected": session.SpotifyConnected(),
		"youtube_connected": session.YouTubeConnected(),
		"spotify_user_id":   session.SpotifyUserID,
	})
}

// FetchSongs pulls the full liked library from the source service and
// replaces the session's snapshot.
func (a *API) FetchSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := a.engine.FetchSongs(r.Context(), SessionID(r))
	if err != nil {
		a.logger.Warn("fetch songs failed", "session", SessionID(r), "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	if songs == nil {
		songs = []models.Song{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(songs),
		"songs":   songs,
	})
}

// StartTransfer creates the destination playlist and the transfer record.
func (a *API) StartTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlaylistName string `json:"playlist_name"`
	}
	if r.Body != nil {
		// Body is optional; a missing playlist name falls back to a
		// dated default.
		json.NewDecoder(r.Body).Decode(&body)
	}

	transfer, err := a.engine.Start(r.Context(), SessionID(r), body.PlaylistName)
	if err != nil {
		a.logger.Warn("start transfer failed", "session", SessionID(r), "error", err)
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"playlist_id":   transfer.PlaylistID,
		"playlist_name": transfer.PlaylistName,
		"transfer_id":   transfer.ID,
	})
}

// ProcessStep advances the active transfer by one song.
func (a *API) ProcessStep(w http.ResponseWriter, r *http.Request) {
	out, err := a.engine.Step(r.Context(), SessionID(r))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result":    out.Result,
		"progress":  out.Progress,
		"completed": out.Completed,
	})
}

// Status returns the active transfer's progress and full ledger.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	out, err := a.engine.Status(SessionID(r))
	if err != nil {
		if err == shared.ErrNoActiveTransfer {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}

	if out.Results == nil {
		out.Results = []models.TransferResult{}
	}

	writeJSON(w, http.StatusOK, out)
}
