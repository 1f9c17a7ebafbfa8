// Package engine runs calls against a token collection.
//
// The engine owns the ledger and applies calls to it one at a time. Each
// call produces a receipt holding the outcome, the result object, the
// emitted events and the gas the call required.
//
// Single-Writer Loop:
// Submit queues calls from any goroutine. Run dequeues them in FIFO order
// and applies each through Execute. There is no concurrency inside a call.
//
// Call Processing:
//  1. Stamp the call with a flow token and its seq from Clock
//  2. Resolve the method and check call kind and deployment
//  3. Decode arguments and charge gas
//  4. Run the ledger operation on a clone of the ledger
//  5. Journal transacts, then swap the clone in on success
//
// Queries never change state. A query naming a mutating method is a dry
// run: it reports what the transact would return but discards the clone.
//
// Logical Clock:
// Every journaled record has a seq from Clock.Next(). Wall-clock time is
// never used for ordering, so Replay reproduces receipts byte for byte.
package engine
