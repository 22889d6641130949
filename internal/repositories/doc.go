// package repositories provides the SQLite persistence layer for sessions,
// song snapshots, transfers, and the transfer-result ledger.
//
// TransferRepository.AdvanceStep is the consistency anchor of the service:
// it applies the cursor increment and the ledger append in one transaction,
// guarded by an optimistic check on the expected cursor value, so a step
// either fully advances or leaves no trace.
package repositories
