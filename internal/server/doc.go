// Package server provides HTTP routing, middleware, and the JSON surface for the transfer service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers [http.ServeMux] method patterns, so
// method mismatches on known paths answer 405 without handler involvement.
//
// # Session Handling
//
// [SessionMiddleware] issues an opaque cookie on first visit and guarantees a matching
// session row exists before any handler runs. Handlers read the id via [SessionID].
//
// # Handler Sets
//
// [API] exposes the transfer state machine: snapshot fetch, transfer creation,
// single-song processing, and status reads. Domain sentinel errors map to HTTP
// status codes in one place (errorStatus).
//
// [Auth] owns the OAuth2 authorization-code flow for both services. The state
// parameter is validated against a short-lived cookie, and exchanged tokens are
// stored as opaque blobs on the session row. Disconnect and clear-session routes
// live here too.
package server
