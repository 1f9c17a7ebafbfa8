package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiden34/internal/ledger"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewMetrics(reg)
	require.NoError(t, err)

	// registering twice on the same registry collides
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_ObserveCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	e := newTestEngine(t, WithMetrics(m))
	mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 1))
	mustExecute(t, e, transactCall("f", bob, MethodMintNext, nil, 3))
	mustExecute(t, e, queryCall("f", bob, MethodTotalSupply, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("transact", MethodNew, "Ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("transact", MethodMintNext, "Ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("transact", MethodMintNext, string(ledger.BadMintValue))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("query", MethodTotalSupply, "Ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.totalSupply))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "shiden34_calls_total")
	assert.Contains(t, names, "shiden34_gas_required")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeCall("transact", MethodMint, "Ok", 1)
		m.setSupply(1)
		m.setQueueDepth(1)
		m.commitFailed()
	})
}
