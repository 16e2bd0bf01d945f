package normalize_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/normalize"
)

func newNormalizer() *normalize.Normalizer {
	return normalize.New(catalog.MustDefault(), "FUNCTION")
}

func lines() action.Array {
	return action.Array{action.Object{"product_id": action.Number(17), "quantity": action.Number(5)}}
}

func TestNormalize_AliasCliente(t *testing.T) {
	in := action.NewInvocation("create_sales_order", action.Object{
		"cliente":     action.String("Marco Rossi"),
		"order_lines": lines(),
		"confirm":     action.String("yes"),
	})

	out, err := newNormalizer().Normalize(in)

	require.NoError(t, err)
	assert.False(t, out.Has("cliente"))
	name, _ := out.Param("partner_name")
	assert.Equal(t, action.String("Marco Rossi"), name)
	confirm, _ := out.Param("confirm")
	assert.Equal(t, action.Bool(true), confirm)

	// input untouched
	assert.True(t, in.Has("cliente"))
	assert.False(t, in.Has("partner_name"))
}

func TestNormalize_CanonicalWinsOverAlias(t *testing.T) {
	in := action.NewInvocation("create_sales_order", action.Object{
		"customer":     action.String("Wrong"),
		"partner_name": action.String("Gemini Furniture"),
		"order_lines":  lines(),
	})

	out, err := newNormalizer().Normalize(in)

	require.NoError(t, err)
	name, _ := out.Param("partner_name")
	assert.Equal(t, action.String("Gemini Furniture"), name)
	assert.False(t, out.Has("customer"))
}

func TestNormalize_RejectedProducts(t *testing.T) {
	in := action.NewInvocation("create_sales_order", action.Object{
		"customer": action.String("Marco"),
		"products": action.String("chairs"),
	})

	_, err := newNormalizer().Normalize(in)

	var ve *normalize.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "products", ve.Field)
	assert.Contains(t, ve.Instruction, "partner_name and order_lines")
	assert.Contains(t, ve.Example, "[FUNCTION:create_sales_order|")
	assert.Contains(t, ve.Feedback(), "Correct format:")
}

func TestNormalize_DeliveryOrderRejectsProducts(t *testing.T) {
	in := action.NewInvocation("create_delivery_order", action.Object{
		"customer": action.String("Marco"),
		"products": lines(),
	})

	_, err := newNormalizer().Normalize(in)

	var ve *normalize.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "products", ve.Field)
	assert.Contains(t, ve.Instruction, "product_items")
}

func TestNormalize_RequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		params action.Object
		field  string
	}{
		{"no partner", action.Object{"order_lines": lines()}, "partner_name"},
		{"blank partner", action.Object{"partner_name": action.String("  "), "order_lines": lines()}, "partner_name"},
		{"no lines", action.Object{"partner_name": action.String("Marco")}, "order_lines"},
		{"empty lines", action.Object{"partner_name": action.String("Marco"), "order_lines": action.Array{}}, "order_lines"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newNormalizer().Normalize(action.NewInvocation("create_sales_order", tc.params))
			var ve *normalize.ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.NotEmpty(t, ve.Instruction)
		})
	}
}

func TestNormalize_IDCoercion(t *testing.T) {
	out, err := newNormalizer().Normalize(action.NewInvocation("validate_delivery", action.Object{
		"picking_id": action.String("35"),
	}))
	require.NoError(t, err)
	id, _ := out.Param("picking_id")
	assert.Equal(t, action.Number(35), id)

	_, err = newNormalizer().Normalize(action.NewInvocation("confirm_sales_order", action.Object{
		"order_id": action.String("S00042"),
	}))
	var ve *normalize.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "order_id", ve.Field)
}

func TestNormalize_Booleans(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "YES": true, "false": false, "no": false, "si": false, "": false}
	for in, want := range cases {
		out, err := newNormalizer().Normalize(action.NewInvocation("create_partner", action.Object{
			"name":       action.String("Acme"),
			"is_company": action.String(in),
		}))
		require.NoError(t, err)
		got, _ := out.Param("is_company")
		assert.Equal(t, action.Bool(want), got, "is_company=%q", in)
	}
}

func TestNormalize_Dates(t *testing.T) {
	base := action.Object{"partner_name": action.String("Marco"), "order_lines": lines()}

	for _, ok := range []string{"2025-10-21", "2025-10-21 14:00:00"} {
		out, err := newNormalizer().Normalize(action.NewInvocation("create_sales_order", base).
			With("scheduled_date", action.String(ok)))
		require.NoError(t, err)
		got, _ := out.Param("scheduled_date")
		assert.Equal(t, action.String(ok), got)
	}

	for _, bad := range []string{"21/10/2025", "tomorrow", "2025-10-21T14:00:00"} {
		out, err := newNormalizer().Normalize(action.NewInvocation("create_sales_order", base).
			With("scheduled_date", action.String(bad)))
		require.NoError(t, err, "a bad date is not fatal")
		assert.False(t, out.Has("scheduled_date"), "date %q should be dropped", bad)
	}
}

func TestNormalize_SoftIntDefaults(t *testing.T) {
	out, err := newNormalizer().Normalize(action.NewInvocation("search_partners", action.Object{
		"search_term": action.String("Marco"),
	}))
	require.NoError(t, err)
	limit, _ := out.Param("limit")
	assert.Equal(t, action.Number(5), limit)

	out, err = newNormalizer().Normalize(action.NewInvocation("get_pending_orders", action.Object{
		"limit": action.String("lots"),
	}))
	require.NoError(t, err)
	limit, _ = out.Param("limit")
	assert.Equal(t, action.Number(10), limit)
}

func TestNormalize_SchemaViolation(t *testing.T) {
	_, err := newNormalizer().Normalize(action.NewInvocation("create_sales_order", action.Object{
		"partner_name": action.String("Marco"),
		"order_lines":  action.String(`[{'product_id': 1}]`),
	}))

	var ve *normalize.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "order_lines", ve.Field)
	assert.Contains(t, ve.Reason, "malformed")
}

func TestNormalize_UnknownActionPassesThrough(t *testing.T) {
	in := action.NewInvocation("launch_rocket", action.Object{"cliente": action.String("x")})
	out, err := newNormalizer().Normalize(in)
	require.NoError(t, err)
	assert.True(t, out.Equal(in))
}
