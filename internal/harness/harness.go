package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/roach88/shiden34/internal/config"
	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/store"
	"github.com/roach88/shiden34/internal/testutil"
)

// DefaultDeployer is the caller of the config deploy when none is named.
const DefaultDeployer = "alice"

// Harness runs one scenario against a real engine journaling into an
// in-memory store.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	flowToken string
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The flow token is fixed,
// so two runs of the same scenario produce byte-identical traces.
//
// Execution flow:
//  1. Deploy the collection from Config, if set
//  2. Execute setup steps, which must all return Ok
//  3. Execute flow steps and check their expect clauses
//  4. Evaluate assertions against the trace and the store
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	flowGen := testutil.NewFixedFlowGenerator(scenario.FlowToken)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{
		store:     st,
		engine:    engine.New(st, flowGen, engine.WithLogger(logger)),
		flowToken: flowGen.Generate(),
		logger:    logger,
	}

	result := NewResult()

	if scenario.Config != "" {
		if err := h.deploy(ctx, scenario, result); err != nil {
			return nil, fmt.Errorf("failed to deploy collection: %w", err)
		}
	}

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if state, ok := h.engine.Snapshot(); ok {
		result.State = &state
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) deploy(ctx context.Context, scenario *Scenario, result *Result) error {
	cfg, err := config.Load(scenario.Config)
	if err != nil {
		return err
	}

	deployer := scenario.Deployer
	if deployer == "" {
		deployer = DefaultDeployer
	}

	receipt, err := h.call(ctx, ir.Call{
		Kind:   ir.CallTransact,
		Method: engine.MethodNew,
		Caller: ir.Account(deployer),
		Args:   cfg.Args(),
	}, result)
	if err != nil {
		return err
	}
	if !receipt.OK() {
		return fmt.Errorf("deploy returned %s", receipt.Outcome)
	}
	return nil
}

// executeSetup runs setup steps. Expect clauses are ignored; any outcome
// other than Ok fails the scenario before the flow starts.
func (h *Harness) executeSetup(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		receipt, err := h.executeStep(ctx, step, result)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Method(), err)
		}
		if !receipt.OK() {
			return fmt.Errorf("setup step %d (%s): returned %s", i, step.Method(), receipt.Outcome)
		}
	}
	return nil
}

// executeFlow runs flow steps and records expectation mismatches on the
// result. Rejected calls are part of the trace, not harness failures.
func (h *Harness) executeFlow(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		receipt, err := h.executeStep(ctx, step, result)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Method(), err)
		}
		if step.Expect == nil {
			continue
		}
		for _, msg := range checkExpect(step.Expect, receipt) {
			result.AddError(fmt.Sprintf("flow step %d (%s): %s", i, step.Method(), msg))
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) (ir.Receipt, error) {
	args, err := ir.ObjectFromGo(step.Args)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("args: %w", err)
	}

	kind := ir.CallTransact
	if step.Query != "" {
		kind = ir.CallQuery
	}

	return h.call(ctx, ir.Call{
		Kind:     kind,
		Method:   step.Method(),
		Caller:   ir.Account(step.Caller),
		Args:     args,
		Value:    step.Value,
		GasLimit: step.GasLimit,
	}, result)
}

// call executes one call and appends it and its receipt to the trace.
// Runtime errors are returned as receipts; only infrastructure failures
// are errors.
func (h *Harness) call(ctx context.Context, call ir.Call, result *Result) (ir.Receipt, error) {
	call.FlowToken = h.flowToken
	call.Seq = h.engine.Seq()
	if call.Kind == ir.CallTransact {
		call.Seq++
	}

	receipt, err := h.engine.Execute(ctx, call)
	if err != nil && !engine.IsRuntimeError(err) {
		return ir.Receipt{}, err
	}

	h.logger.Debug("scenario call",
		"method", call.Method,
		"outcome", receipt.Outcome,
		"seq", receipt.Seq,
	)

	result.AddCallTrace(call)
	result.AddReceiptTrace(receipt)
	return receipt, nil
}

// checkExpect compares a receipt with an expect clause and returns one
// message per mismatch.
func checkExpect(expect *ExpectClause, receipt ir.Receipt) []string {
	var errs []string

	want := expect.Outcome
	if want == "" {
		want = ir.OutcomeOk
	}
	if receipt.Outcome != want {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s", want, receipt.Outcome))
	}

	if len(expect.Result) > 0 {
		wantResult, err := ir.ObjectFromGo(expect.Result)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.result: %v", err))
		} else if !subsetMatch(receipt.Result, wantResult) {
			errs = append(errs, fmt.Sprintf("expected result %v, got %v",
				ir.ToGo(wantResult), ir.ToGo(receipt.Result)))
		}
	}

	if expect.Events != nil {
		wantEvents, err := expectedEvents(expect.Events)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.events: %v", err))
		} else if !eventsEqual(receipt.Events, wantEvents) {
			errs = append(errs, fmt.Sprintf("expected events %v, got %v",
				ir.ToGo(ir.EventsValue(wantEvents)), ir.ToGo(ir.EventsValue(receipt.Events))))
		}
	}

	if expect.GasRequired != nil && receipt.GasRequired != *expect.GasRequired {
		errs = append(errs, fmt.Sprintf("expected gas_required %d, got %d",
			*expect.GasRequired, receipt.GasRequired))
	}

	return errs
}

func expectedEvents(in []EventExpect) ([]ir.Event, error) {
	out := make([]ir.Event, len(in))
	for i, ev := range in {
		args, err := ir.ObjectFromGo(ev.Args)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = ir.Event{Name: ev.Name, Args: args}
	}
	return out, nil
}

func eventsEqual(actual, expected []ir.Event) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i].Name != expected[i].Name || !reflect.DeepEqual(actual[i].Value(), expected[i].Value()) {
			return false
		}
	}
	return true
}

// subsetMatch reports whether every key of expected is present in actual
// with an equal value. Extra keys in actual are ignored.
func subsetMatch(actual, expected ir.IRObject) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
