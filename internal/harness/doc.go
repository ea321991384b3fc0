// Package harness runs SQL scenarios against a development chain and a
// temporary mirror, and checks the outcome.
//
// # Scenario Format
//
//	name: insert_account
//	description: "Insert writes typed cells to the chain"
//	owner: "0x00000000000000000000000000000000000000a1"  # optional
//	database: ledger                                     # optional
//	steps:
//	  - sql: CREATE TABLE accounts (id INTEGER, wallet ADDRESS)
//	  - sql: INSERT INTO accounts (id, wallet) VALUES (1, 'nope')
//	    expect:
//	      error: VALIDATION_ERROR
//	  - sql: INSERT INTO accounts (id) VALUES (2)
//	    fail_on: insertOne
//	    expect:
//	      error: CHAIN_CALL_ERROR
//	  - sql: SELECT id FROM accounts
//	    expect:
//	      rows: []
//	assertions:
//	  - type: chain_calls
//	    ops: [createTable]
//	  - type: mirror_rows
//	    table: accounts
//	    count: 0
//
// # Assertion Types
//
//   - chain_calls: the exact sequence of state-changing chain operations
//   - chain_count: how often one operation ran
//   - chain_rows: live rows in a chain table
//   - mirror_rows: rows in a mirror table
//   - mirror_query: rows returned by raw SQL against the mirror
//
// # Determinism
//
// Each run gets a fresh chain and mirror, and execution ids are fixed per
// step, so traces can be compared with golden files (see RunWithGolden).
package harness
