package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shiden34/internal/ir"
)

// GoldenDir is where scenario traces are stored, relative to the package
// under test.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// Content-addressed IDs are omitted; they are covered by the seq and the
// call fields that produce them.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FlowToken    string       `json:"flow_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain values accepted by
// ir.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		switch event.Type {
		case TraceCall:
			args := event.Args
			if args == nil {
				args = ir.IRObject{}
			}
			eventMap["kind"] = string(event.Kind)
			eventMap["method"] = event.Method
			eventMap["caller"] = string(event.Caller)
			eventMap["args"] = args
			eventMap["value"] = event.Value
		case TraceReceipt:
			res := event.Result
			if res == nil {
				res = ir.IRObject{}
			}
			eventMap["outcome"] = event.Outcome
			eventMap["result"] = res
			eventMap["events"] = ir.EventsValue(event.Events)
			eventMap["gas_required"] = event.GasRequired
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.FlowToken != "" {
		result["flow_token"] = s.FlowToken
	}
	return result
}

// MarshalTrace returns the canonical JSON of a scenario trace. This is the
// golden file content.
func MarshalTrace(scenarioName, flowToken string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		FlowToken:    flowToken,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	traceJSON, err := MarshalTrace(scenario.Name, scenario.FlowToken, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, "", result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

// GoldenPath returns the golden file of a scenario under dir.
func GoldenPath(dir, scenarioName string) string {
	return filepath.Join(dir, scenarioName+".golden")
}

// WriteGolden writes a scenario trace to its golden file under dir.
// Used outside `go test`, where goldie's -update flag is unavailable.
func WriteGolden(dir string, scenario *Scenario, result *Result) error {
	data, err := MarshalTrace(scenario.Name, scenario.FlowToken, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(GoldenPath(dir, scenario.Name), data, 0o644)
}

// CompareGolden reports whether a scenario trace matches its golden file
// under dir. A missing golden file is reported as an error.
func CompareGolden(dir string, scenario *Scenario, result *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(dir, scenario.Name))
	if err != nil {
		return false, err
	}
	got, err := MarshalTrace(scenario.Name, scenario.FlowToken, result)
	if err != nil {
		return false, err
	}
	return string(want) == string(got), nil
}
