// package tasks implements the stepwise transfer state machine.
//
// TransferEngine owns the one-song-per-request progression: each Step call
// resolves the cursor from the persisted transfer, drives one search and
// at most one playlist append against the destination, and durably
// advances counters and ledger together before returning. Per-song
// failures are recorded outcomes, not errors; the cursor always moves
// forward, which is what makes a transfer resumable after any client
// interruption.
package tasks
