package action_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

func TestParseJSON_Variants(t *testing.T) {
	v, err := action.ParseJSON([]byte(`[{"product_id":17,"quantity":5,"note":"x","gift":true,"skip":null}]`))
	require.NoError(t, err)

	arr, ok := v.(action.Array)
	require.True(t, ok, "expected an array, got %#v", v)
	require.Len(t, arr, 1)

	line := arr[0].(action.Object)
	assert.Equal(t, action.Number(17), line["product_id"])
	assert.Equal(t, action.Bool(true), line["gift"])
	assert.NotContains(t, line, "skip", "null members are dropped")
}

func TestParseJSON_RejectsNull(t *testing.T) {
	_, err := action.ParseJSON([]byte("null"))
	assert.Error(t, err)
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in      action.Value
		want    int64
		wantErr bool
	}{
		{action.String("35"), 35, false},
		{action.String(" 7 "), 7, false},
		{action.Number(12), 12, false},
		{action.Number(1.5), 0, true},
		{action.String("WH/OUT/00035"), 0, true},
		{action.Bool(true), 0, true},
	}
	for _, tc := range cases {
		got, err := action.AsInt(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "AsInt(%#v)", tc.in)
			continue
		}
		require.NoError(t, err, "AsInt(%#v)", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestTruthy(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "Yes"} {
		assert.True(t, action.Truthy(action.String(s)), s)
	}
	for _, s := range []string{"false", "0", "no", "si", ""} {
		assert.False(t, action.Truthy(action.String(s)), s)
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "5", action.Text(action.Number(5)))
	assert.Equal(t, "320.5", action.Text(action.Number(320.5)))
	assert.Equal(t, `[1,"a"]`, action.Text(action.Array{action.Number(1), action.String("a")}))
}

func TestInvocation_Immutable(t *testing.T) {
	lines := action.Array{action.Object{"product_id": action.Number(1)}}
	inv := action.NewInvocation("create_sales_order", action.Object{"order_lines": lines})

	lines[0].(action.Object)["product_id"] = action.Number(99)
	got, _ := inv.Param("order_lines")
	assert.Equal(t, action.Number(1), got.(action.Array)[0].(action.Object)["product_id"], "invocation shares memory with the caller")

	p := inv.Params()
	p["partner_name"] = action.String("Marco Rossi")
	assert.False(t, inv.Has("partner_name"), "Params returned the internal map")

	with := inv.With("confirm", action.Bool(true))
	assert.False(t, inv.Has("confirm"))
	assert.True(t, with.Has("confirm"))
}

func TestInvocation_JSONRoundTrip(t *testing.T) {
	inv := action.NewInvocation("create_sales_order", action.Object{
		"partner_name": action.String("Gemini Furniture"),
		"order_lines": action.Array{
			action.Object{"product_id": action.Number(17), "quantity": action.Number(10)},
		},
		"confirm": action.Bool(true),
	})

	data, err := json.Marshal(inv)
	require.NoError(t, err)
	var back action.Invocation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(inv), "got %s, want %s", back, inv)
}

func TestInvocation_UnmarshalRequiresName(t *testing.T) {
	var inv action.Invocation
	assert.Error(t, json.Unmarshal([]byte(`{"parameters":{}}`), &inv))
}
