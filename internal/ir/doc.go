// Package ir provides the wire-level record types shared by the ledger
// engine, its journal, and its external surfaces.
//
// This package contains value and record definitions only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - amounts, ids and supplies are int64
//   - Every Call and Receipt is content-addressed (see hash.go)
//   - All JSON tags use snake_case
//   - Ordering uses the logical seq stamped by the engine, never wall time
package ir
