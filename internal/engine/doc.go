// Package engine implements the execution coordinator.
//
// The coordinator keeps a local SQLite mirror consistent with the on-chain
// table store. Each Execute call moves through:
//
//	Idle → Resolved → Augmented → MirrorApplied → ChainDispatched → Committed
//	                                            ↘ RolledBack
//
// ARCHITECTURE:
//
// Prepare Before Mutate:
// Everything the chain call needs (table address, live schema, encoded
// cells, WHERE matches over chain rows) is computed from view calls before
// the mirror changes. Validation failures never need a rollback.
//
// Snapshot Rollback:
// A full mirror snapshot is taken just before the mirror statement runs.
// Any later failure restores it; there is no partial state.
//
// Per-Address Serialization:
// One execution per database address at a time. The lock is held from
// resolution until commit or rollback.
//
// Row Identity:
// Every mirror row carries the chain row index in the bookkeeping column.
// UPDATE and DELETE compare the rows the mirror touched with the rows the
// chain matched and fail with MIRROR_DIVERGED before any chain call if
// they differ.
package engine
