// Package testutil holds helpers shared by scenario runs and tests.
package testutil

// DefaultFlowToken is used when a scenario names no flow token.
const DefaultFlowToken = "test-flow-default"

// FixedFlowGenerator hands every call of a scenario the same flow token, so
// identical scenarios journal identical call and receipt IDs.
//
// It holds no mutable state and is safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator returns a generator for token, or for
// DefaultFlowToken when token is empty.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = DefaultFlowToken
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the scenario's flow token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
