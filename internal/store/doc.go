// Package store provides SQLite-backed durable storage for the ledger.
//
// The store holds two things:
//   - The journal: every transact call and its receipt, failed ones included
//   - The materialized state: one collection row and one row per minted token
//
// Both are written in a single transaction per call (see Commit), so the
// state tables always reflect exactly the journaled prefix.
//
// # Ordering
//
// All ordering uses seq (the engine's logical clock), never timestamps.
// Journal reads use ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
