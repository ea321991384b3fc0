// Package ir provides the shared vocabulary for seiql.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the type tags, the
// value union, and the error taxonomy in one foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - TypeTag values are the on-chain column type codes (0-5) and never change
//   - Addresses are 20 bytes; text forms are lowercased on output
//   - Every mirror table carries BookkeepingColumn, which user SQL may never name
//   - All JSON tags use snake_case
package ir
