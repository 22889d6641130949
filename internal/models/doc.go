// package models defines the data model for the liked-songs transfer service.
//
// A Session owns a replace-on-fetch Song snapshot and a history of
// Transfers. A Transfer advances through the snapshot one song per request,
// appending one TransferResult ledger row per processed index. The active
// transfer for a session is the most recently created one whose status is
// not yet completed.
package models
