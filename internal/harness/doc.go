// Package harness runs YAML scenarios against the engine.
//
// A scenario deploys a collection from a CUE file, runs setup calls that
// must succeed, then runs flow calls whose receipts are checked against
// expect clauses. Assertions over the trace and the journaled state run
// last.
//
// Every scenario gets a fresh in-memory store and a fixed flow token. The
// engine's logical clock starts at zero, so the trace of a scenario is a
// pure function of its file and can be compared byte for byte with a
// golden file (see RunWithGolden and RunSuite).
//
// Example:
//
//	name: mint_and_transfer
//	description: A paid mint followed by a transfer
//	config: ../collection.cue
//	flow:
//	  - transact: mintNext
//	    caller: bob
//	    value: 1
//	    expect:
//	      result: {id: 1}
//	  - transact: transfer
//	    caller: bob
//	    args: {to: carol, id: 1}
//	assertions:
//	  - type: event_count
//	    event: Transfer
//	    count: 2
package harness
