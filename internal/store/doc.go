// Package store is the SQLite mirror of the on-chain tables.
//
// Each resolved database address has its own file, <dir>/<address>.db.
// Every table carries the bookkeeping column sei_caret_onchain_index
// holding the chain's row index for that row. INSERT writes a pending
// sentinel per value row (-1, -2, ... in statement order) and
// BackfillRowIndexes replaces each one once the chain has committed.
//
// # Snapshots
//
// Snapshot copies the whole file with VACUUM INTO and keeps the bytes in
// memory. Restore closes the handle, writes the bytes to a temporary file,
// removes the WAL side files, renames the copy over the database, and
// reopens it. The Store value stays valid across a restore.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - one pooled connection
package store
