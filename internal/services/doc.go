// package services implements the HTTP clients for the two external music
// services.
//
// Spotify is the source (saved-tracks library, OAuth2 authorization code);
// YouTube is the destination (Data API v3 search, playlists, playlist
// items). Clients are constructed per request from a session's stored
// token blob; no process-wide mutable client state exists.
package services
