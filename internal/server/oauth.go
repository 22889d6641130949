package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

// stateCookie carries the OAuth state token between the connect redirect
// and the provider callback.
const stateCookie = "tunesync_oauth_state"

// Auth handles the OAuth2 connect/callback/disconnect routes for both
// services. Token blobs land on the session row; the core never sees the
// handshake.
type Auth struct {
	spotify  *services.SpotifyAuth
	youtube  *services.YouTubeAuth
	sessions *repositories.SessionRepository
	logger   *log.Logger
}

// NewAuth creates the OAuth handler set.
func NewAuth(spotify *services.SpotifyAuth, youtube *services.YouTubeAuth, sessions *repositories.SessionRepository, logger *log.Logger) *Auth {
	return &Auth{spotify: spotify, youtube: youtube, sessions: sessions, logger: logger}
}

// Register attaches all auth routes to the router.
func (a *Auth) Register(r Router) {
	r.Handle(http.MethodGet, "/connect/spotify", http.HandlerFunc(a.ConnectSpotify))
	r.Handle(http.MethodGet, "/spotify/callback", http.HandlerFunc(a.SpotifyCallback))
	r.Handle(http.MethodGet, "/connect/youtube", http.HandlerFunc(a.ConnectYouTube))
	r.Handle(http.MethodGet, "/youtube/callback", http.HandlerFunc(a.YouTubeCallback))
	r.Handle(http.MethodGet, "/disconnect/spotify", http.HandlerFunc(a.DisconnectSpotify))
	r.Handle(http.MethodGet, "/disconnect/youtube", http.HandlerFunc(a.DisconnectYouTube))
	r.Handle(http.MethodGet, "/clear-session", http.HandlerFunc(a.ClearSession))
}

// ConnectSpotify redirects the user to Spotify's authorization page.
func (a *Auth) ConnectSpotify(w http.ResponseWriter, r *http.Request) {
	a.redirectToProvider(w, r, a.spotify.AuthURL)
}

// ConnectYouTube redirects the user to Google's authorization page.
func (a *Auth) ConnectYouTube(w http.ResponseWriter, r *http.Request) {
	a.redirectToProvider(w, r, a.youtube.AuthURL)
}

func (a *Auth) redirectToProvider(w http.ResponseWriter, r *http.Request, authURL func(state string) string) {
	state := shared.GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   300,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL(state), http.StatusFound)
}

// SpotifyCallback exchanges the authorization code and stores the token
// blob plus the Spotify user id on the session.
func (a *Auth) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := a.validateCallback(w, r)
	if !ok {
		return
	}

	token, err := a.spotify.Exchange(r.Context(), code)
	if err != nil {
		a.logger.Error("spotify token exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "spotify authorization failed")
		return
	}

	blob, err := services.MarshalToken(token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	var userID string
	if client, err := a.spotify.Client(r.Context(), blob); err == nil {
		if profile, err := client.UserProfile(r.Context()); err == nil {
			userID = profile.ID
		} else {
			a.logger.Warn("failed to fetch spotify profile", "error", err)
		}
	}

	if err := a.sessions.UpdateSpotifyToken(SessionID(r), blob, userID); err != nil {
		a.logger.Error("failed to store spotify token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// YouTubeCallback exchanges the authorization code and stores the token
// blob on the session.
func (a *Auth) YouTubeCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := a.validateCallback(w, r)
	if !ok {
		return
	}

	token, err := a.youtube.Exchange(r.Context(), code)
	if err != nil {
		a.logger.Error("youtube token exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "youtube authorization failed")
		return
	}

	blob, err := services.MarshalToken(token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	if err := a.sessions.UpdateYouTubeToken(SessionID(r), blob); err != nil {
		a.logger.Error("failed to store youtube token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// validateCallback checks the state parameter against the state cookie
// and extracts the authorization code.
func (a *Auth) validateCallback(w http.ResponseWriter, r *http.Request) (string, bool) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid state parameter")
		return "", false
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "authorization failed: "+r.URL.Query().Get("error"))
		return "", false
	}

	return code, true
}

// DisconnectSpotify clears the Spotify credential and, with it, the song
// snapshot. Transfer history stays.
func (a *Auth) DisconnectSpotify(w http.ResponseWriter, r *http.Request) {
	a.disconnect(w, r, repositories.ServiceSpotify)
}

// DisconnectYouTube clears the YouTube credential.
func (a *Auth) DisconnectYouTube(w http.ResponseWriter, r *http.Request) {
	a.disconnect(w, r, repositories.ServiceYouTube)
}

func (a *Auth) disconnect(w http.ResponseWriter, r *http.Request, service string) {
	if err := a.sessions.Disconnect(SessionID(r), service); err != nil {
		a.logger.Error("disconnect failed", "service", service, "error", err)
		writeError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// ClearSession deletes all session data and expires the session cookie.
func (a *Auth) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Clear(SessionID(r)); err != nil {
		a.logger.Error("clear session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clear session failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}
