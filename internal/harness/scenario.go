package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a fresh ledger: an optional deploy,
// setup calls that must succeed, flow calls with expectations, and
// assertions over the trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is a CUE collection file deployed before setup.
	// Relative paths resolve against the scenario file.
	Config string `yaml:"config,omitempty"`

	// Deployer is the caller of the Config deploy. Defaults to "alice".
	Deployer string `yaml:"deployer,omitempty"`

	// Setup calls establish state and must all return Ok.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow holds the calls under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// FlowToken is shared by every call. Defaults to "test-flow-default".
	FlowToken string `yaml:"flow_token,omitempty"`
}

// Step is one call. Exactly one of Transact and Query names the method.
type Step struct {
	Transact string         `yaml:"transact,omitempty"`
	Query    string         `yaml:"query,omitempty"`
	Caller   string         `yaml:"caller"`
	Args     map[string]any `yaml:"args,omitempty"`
	Value    int64          `yaml:"value,omitempty"`
	GasLimit int64          `yaml:"gas_limit,omitempty"`

	// Expect validates the receipt. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Method returns the called method name.
func (s Step) Method() string {
	if s.Transact != "" {
		return s.Transact
	}
	return s.Query
}

// ExpectClause specifies the expected receipt.
type ExpectClause struct {
	// Outcome is "Ok" (the default), a ledger error tag or a runtime code.
	Outcome string `yaml:"outcome,omitempty"`

	// Result is a subset match against the receipt result.
	Result map[string]any `yaml:"result,omitempty"`

	// Events, when present, must equal the receipt events exactly.
	Events []EventExpect `yaml:"events,omitempty"`

	// GasRequired, when present, must equal the receipt value.
	GasRequired *int64 `yaml:"gas_required,omitempty"`
}

// EventExpect is an expected event.
type EventExpect struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Method names a call (trace_contains, trace_count).
	Method string `yaml:"method,omitempty"`

	// Args is a subset match on call args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Methods is the expected call order (trace_order).
	Methods []string `yaml:"methods,omitempty"`

	// Event names an emitted event (event_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected number of occurrences (trace_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect query a state table (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains      = "trace_contains"
	AssertTraceOrder         = "trace_order"
	AssertTraceCount         = "trace_count"
	AssertEventCount         = "event_count"
	AssertFinalState         = "final_state"
	AssertBalancesConsistent = "balances_consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks structure only; method semantics are the engine's.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	for i, step := range s.Setup {
		if err := validateStep(step, fmt.Sprintf("setup[%d]", i)); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, fmt.Sprintf("flow[%d]", i)); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, where string) error {
	switch {
	case step.Transact != "" && step.Query != "":
		return fmt.Errorf("%s: transact and query are mutually exclusive", where)
	case step.Transact == "" && step.Query == "":
		return fmt.Errorf("%s: one of transact or query is required", where)
	case step.Caller == "":
		return fmt.Errorf("%s: caller is required", where)
	}
	if step.Expect != nil && step.Expect.Events != nil {
		for j, ev := range step.Expect.Events {
			if ev.Name == "" {
				return fmt.Errorf("%s: expect.events[%d]: name is required", where, j)
			}
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertBalancesConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
