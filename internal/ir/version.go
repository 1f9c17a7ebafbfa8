package ir

// Version constants stamped on journaled calls.
const (
	// IRVersion is the wire record schema version.
	IRVersion = "1"

	// EngineVersion is the ledger engine version.
	EngineVersion = "0.3.0"
)
