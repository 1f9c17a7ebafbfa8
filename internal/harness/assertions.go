package harness

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so they are checked instead.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == TraceCall {
				n++
				fmt.Fprintf(&buf, "  [%d] %s %s %v\n", n, event.Kind, event.Method, ir.ToGo(event.Args))
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains a call to the method
// whose args contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := ir.ObjectFromGo(assertion.Args)
	if err != nil {
		return fmt.Errorf("trace_contains args: %w", err)
	}

	for _, event := range trace {
		if event.Type == TraceCall && event.Method == assertion.Method && subsetMatch(event.Args, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("call %s with args %v", assertion.Method, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that each method is first called in the given
// order. Calls need not be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)

	n := 0
	for _, event := range trace {
		if event.Type != TraceCall {
			continue
		}
		n++
		if _, seen := positions[event.Method]; !seen {
			positions[event.Method] = n
		}
	}

	for _, method := range assertion.Methods {
		if positions[method] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all methods present: %v", assertion.Methods),
				Actual:   fmt.Sprintf("missing method: %s", method),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Methods); i++ {
		prev := assertion.Methods[i-1]
		curr := assertion.Methods[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("methods in order: %v", assertion.Methods),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks the number of calls to a method.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == TraceCall && event.Method == assertion.Method {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls to %s", assertion.Count, assertion.Method),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertEventCount checks the number of events with a name across all
// receipts. Rejected calls emit nothing, so only applied calls count.
func assertEventCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != TraceReceipt {
			continue
		}
		for _, ev := range event.Events {
			if ev.Name == assertion.Event {
				count++
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState looks up the single row of a store table selected by
// Where and compares the columns named in Expect.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier)
	}

	row, err := selectOne(ctx, st, assertion.Table, assertion.Where)
	if err != nil {
		return err
	}

	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		want := assertion.Expect[key]
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, assertion.Table),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   fmt.Sprintf("field %q = %v", key, normalizeValue(got)),
			}
		}
	}
	return nil
}

// selectOne returns the only row of table matching where, keyed by column.
func selectOne(ctx context.Context, st *store.Store, table string, where map[string]any) (map[string]any, error) {
	cond, args, err := buildWhereClause(where)
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + table
	if cond != "" {
		query += " WHERE " + cond
	}

	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	var found map[string]any
	for rows.Next() {
		if found != nil {
			return nil, &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("exactly one row in %s where %s", table, describeWhere(where)),
				Actual:   "multiple rows matched",
			}
		}
		cells := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		found = make(map[string]any, len(columns))
		for i, col := range columns {
			found[col] = cells[i]
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	if found == nil {
		return nil, &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", table, describeWhere(where)),
			Actual:   "row not found",
		}
	}
	return found, nil
}

// assertBalancesConsistent checks the materialized tokens table against the
// engine's final state: same token count, and for every owner the stored
// balance equals the number of tokens the state assigns to them.
func assertBalancesConsistent(ctx context.Context, st *store.Store, result *Result) error {
	if result.State == nil {
		return &AssertionError{
			Type:     AssertBalancesConsistent,
			Expected: "a deployed collection",
			Actual:   "nothing deployed",
		}
	}

	var stored int64
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&stored); err != nil {
		return fmt.Errorf("count tokens: %w", err)
	}
	if stored != int64(len(result.State.Tokens)) {
		return &AssertionError{
			Type:     AssertBalancesConsistent,
			Expected: fmt.Sprintf("%d stored tokens", len(result.State.Tokens)),
			Actual:   fmt.Sprintf("%d stored tokens", stored),
		}
	}

	want := make(map[ir.Account]int64)
	for _, tok := range result.State.Tokens {
		want[tok.Owner]++
	}

	for _, owner := range slices.Sorted(maps.Keys(want)) {
		got, err := st.ReadBalance(ctx, owner)
		if err != nil {
			return err
		}
		if got != want[owner] {
			return &AssertionError{
				Type:     AssertBalancesConsistent,
				Expected: fmt.Sprintf("balance of %s = %d", owner, want[owner]),
				Actual:   fmt.Sprintf("stored balance %d", got),
			}
		}
	}

	return nil
}

// buildWhereClause renders where as "col = ?" terms joined by AND, in
// column order. Column names are checked since they cannot be bound.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	var (
		terms []string
		args  []any
	)
	for _, col := range slices.Sorted(maps.Keys(where)) {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause", col)
		}
		terms = append(terms, col+" = ?")
		args = append(args, normalizeValue(where[col]))
	}
	return strings.Join(terms, " AND "), args, nil
}

func describeWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	var parts []string
	for _, col := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", col, where[col]))
	}
	return strings.Join(parts, " AND ")
}

// normalizeValue maps IR values to plain Go values and text columns read as
// []byte to strings. Everything else is returned unchanged.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case []byte:
		return string(val)
	}
	return v
}

// stateValuesEqual compares an expected scenario value with a column value.
// SQLite reads integers as int64 and stores booleans as 0 or 1.
func stateValuesEqual(expected, actual any) bool {
	expected, actual = normalizeValue(expected), normalizeValue(actual)

	switch exp := expected.(type) {
	case int:
		expected = int64(exp)
	case bool:
		if n, ok := actual.(int64); ok {
			return exp == (n != 0)
		}
	}
	if n, ok := actual.(int); ok {
		actual = int64(n)
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failed assertion. The actx parameter provides
// database access for final_state and balances_consistent.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		case AssertBalancesConsistent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: balances_consistent requires database context", i)
			} else {
				err = assertBalancesConsistent(actx.Ctx, actx.Store, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
