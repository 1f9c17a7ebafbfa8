package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionIDKnownValue(t *testing.T) {
	id, err := CollectionID("Shiden34", "SH34", "ipfs://tokenUriPrefix/", 888, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2a10b0ec11a240b74fc9ede245a0bb3b9cd2f0c87101442220dddb3465e393ae", id)
}

func TestCollectionIDChangesWithInput(t *testing.T) {
	base := MustCollectionID("Shiden34", "SH34", "ipfs://x/", 888, "alice")

	assert.NotEqual(t, base, MustCollectionID("Shiden35", "SH34", "ipfs://x/", 888, "alice"))
	assert.NotEqual(t, base, MustCollectionID("Shiden34", "SH34", "ipfs://x/", 889, "alice"))
	assert.NotEqual(t, base, MustCollectionID("Shiden34", "SH34", "ipfs://x/", 888, "bob"))
}

func TestCallIDDeterminism(t *testing.T) {
	call := Call{
		FlowToken: "flow-1",
		Kind:      CallTransact,
		Method:    "mintNext",
		Caller:    "alice",
		Args:      IRObject{},
		Value:     1,
		Seq:       1,
	}

	id1, err := CallID(call)
	require.NoError(t, err)
	id2, err := CallID(call)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)

	call.ID = "ignored"
	assert.Equal(t, id1, MustCallID(call), "ID field must not feed the hash")

	call.Args = nil
	assert.Equal(t, id1, MustCallID(call), "nil args hash like empty args")
}

func TestCallIDChangesWithInput(t *testing.T) {
	base := Call{FlowToken: "flow-1", Kind: CallTransact, Method: "mintNext", Caller: "alice", Value: 1, Seq: 1}
	id := MustCallID(base)

	mutations := map[string]func(c *Call){
		"flow":      func(c *Call) { c.FlowToken = "flow-2" },
		"kind":      func(c *Call) { c.Kind = CallQuery },
		"method":    func(c *Call) { c.Method = "mint" },
		"caller":    func(c *Call) { c.Caller = "bob" },
		"value":     func(c *Call) { c.Value = 0 },
		"gas limit": func(c *Call) { c.GasLimit = 10 },
		"seq":       func(c *Call) { c.Seq = 2 },
		"args":      func(c *Call) { c.Args = IRObject{"x": IRInt(1)} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.NotEqual(t, id, MustCallID(c))
		})
	}
}

func TestReceiptIDCoversEvents(t *testing.T) {
	r := Receipt{
		CallID:      "call-1",
		Outcome:     OutcomeOk,
		Result:      IRObject{"id": IRInt(1)},
		GasRequired: 1000,
		Seq:         2,
		Events: []Event{{
			Name: "Transfer",
			Args: IRObject{"from": IRString("0x00"), "to": IRString("alice"), "id": IRInt(1)},
		}},
	}
	id := MustReceiptID(r)

	r2 := r
	r2.Events = nil
	assert.NotEqual(t, id, MustReceiptID(r2))

	r3 := r
	r3.Outcome = "BadMintValue"
	assert.NotEqual(t, id, MustReceiptID(r3))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainCall, data), hashWithDomain(DomainReceipt, data))
}
