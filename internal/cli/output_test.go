package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiden34/internal/ir"
)

func sampleReceipt(outcome string) ir.Receipt {
	r := ir.Receipt{
		ID:          "r-1",
		CallID:      "c-1",
		Outcome:     outcome,
		Result:      ir.IRObject{},
		Events:      []ir.Event{},
		GasRequired: 11000,
		Seq:         4,
	}
	if outcome == ir.OutcomeOk {
		r.Result = ir.IRObject{"id": ir.IRInt(1)}
		r.Events = []ir.Event{{
			Name: "Transfer",
			Args: ir.IRObject{
				"from": ir.IRString(""),
				"to":   ir.IRString("bob"),
				"id":   ir.IRInt(1),
			},
		}}
	}
	return r
}

func TestWriteReceipt_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReceipt(&buf, "text", sampleReceipt(ir.OutcomeOk), ""))

	want := "outcome: Ok\n" +
		"result:  {\"id\":1}\n" +
		"events:\n" +
		"  Transfer {\"from\":\"\",\"id\":1,\"to\":\"bob\"}\n" +
		"gas:     11000\n" +
		"seq:     4\n" +
		"id:      r-1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteReceipt_TextRejected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReceipt(&buf, "text", sampleReceipt("OUT_OF_GAS"), "gas limit exceeded"))

	out := buf.String()
	assert.Contains(t, out, "outcome: OUT_OF_GAS\n")
	assert.Contains(t, out, "error:   gas limit exceeded\n")
	assert.Contains(t, out, "result:  {}\n")
	assert.NotContains(t, out, "events:")
}

func TestWriteReceipt_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReceipt(&buf, "json", sampleReceipt(ir.OutcomeOk), ""))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotContains(t, resp, "error")

	data := resp["data"].(map[string]any)
	assert.Equal(t, "Ok", data["outcome"])
	assert.Equal(t, "c-1", data["call_id"])
	assert.Equal(t, float64(4), data["seq"])
}

func TestWriteReceipt_JSONRejected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReceipt(&buf, "json", sampleReceipt("NotOwner"), "not the owner"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotOwner", resp.Error.Code)
	assert.Equal(t, "not the owner", resp.Error.Message)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NotOwner", details["outcome"])
}

func TestWriteJSON_Indented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, CLIResponse{Status: "ok"}))
	assert.Equal(t, "{\n  \"status\": \"ok\"\n}\n", buf.String())
}

func TestCanonicalText(t *testing.T) {
	assert.Equal(t, "{}", canonicalText(nil))
	assert.Equal(t, `{"a":1,"b":"x"}`, canonicalText(ir.IRObject{"b": ir.IRString("x"), "a": ir.IRInt(1)}))
}
