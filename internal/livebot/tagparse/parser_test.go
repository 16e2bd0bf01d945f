package tagparse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/tagparse"
)

func TestParse_SingleTagWithGreeting(t *testing.T) {
	p := tagparse.New("TAG")

	invs, clean := p.Parse("Ciao [TAG:search_products|search_term:chair|limit:5] grazie")

	require.Len(t, invs, 1)
	assert.Equal(t, "search_products", invs[0].Name())
	assert.True(t, invs[0].Equal(action.NewInvocation("search_products", action.Object{
		"search_term": action.String("chair"),
		"limit":       action.String("5"),
	})))
	assert.Equal(t, "Ciao  grazie", clean)
}

func TestParse_ScalarParametersLiteral(t *testing.T) {
	p := tagparse.New("FUNCTION")
	cases := []struct {
		name   string
		input  string
		action string
		params action.Object
	}{
		{
			name:   "keyword lower case",
			input:  "[function:get_stock_info|product_name:Sedia Ufficio]",
			action: "get_stock_info",
			params: action.Object{"product_name": action.String("Sedia Ufficio")},
		},
		{
			name:   "quoted name",
			input:  `[FUNCTION:"validate_delivery"|picking_name:WH/OUT/00035]`,
			action: "validate_delivery",
			params: action.Object{"picking_name": action.String("WH/OUT/00035")},
		},
		{
			name:   "value with colon",
			input:  "[FUNCTION:create_sales_order|scheduled_date:2025-10-21 14:00:00]",
			action: "create_sales_order",
			params: action.Object{"scheduled_date": action.String("2025-10-21 14:00:00")},
		},
		{
			name:   "bare tag",
			input:  "[FUNCTION:get_pending_orders]",
			action: "get_pending_orders",
			params: action.Object{},
		},
		{
			name:   "segment without colon ignored",
			input:  "[FUNCTION:search_partners|Marco|limit:5]",
			action: "search_partners",
			params: action.Object{"limit": action.String("5")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invs, clean := p.Parse(tc.input)
			require.Len(t, invs, 1)
			assert.Equal(t, tc.action, invs[0].Name())
			assert.True(t, action.Equal(tc.params, invs[0].Params()), "params = %s", invs[0])
			assert.Empty(t, clean)
		})
	}
}

func TestParse_NestedJSONArray(t *testing.T) {
	p := tagparse.New("FUNCTION")
	input := `[FUNCTION:create_sales_order|partner_name:Gemini Furniture|order_lines:[{"product_id":17,"quantity":10,"tags":["a|b",["x"]]}]|confirm:true]`

	invs, _ := p.Parse(input)

	require.Len(t, invs, 1)
	lines, ok := invs[0].Param("order_lines")
	require.True(t, ok)
	arr, ok := lines.(action.Array)
	require.True(t, ok, "order_lines should parse as an array, got %T", lines)
	line := arr[0].(action.Object)
	assert.Equal(t, action.Number(17), line["product_id"])
	assert.Equal(t, action.Array{action.String("a|b"), action.Array{action.String("x")}}, line["tags"])

	confirm, _ := invs[0].Param("confirm")
	assert.Equal(t, action.String("true"), confirm)
}

func TestParse_RenderRoundTrip(t *testing.T) {
	p := tagparse.New("TAG")
	orig := action.NewInvocation("update_sales_order", action.Object{
		"order_name": action.String("S00042"),
		"order_lines_updates": action.Array{
			action.Object{"line_id": action.Number(123), "quantity": action.Number(10)},
			action.Object{"product_id": action.Number(25), "matrix": action.Array{action.Array{action.Number(1)}, action.Array{}}},
			action.Object{"line_id": action.Number(124), "delete": action.Bool(true)},
		},
		"meta": action.Object{"sizes": action.Array{action.String("[L]"), action.String("{XL}")}},
	})

	invs, clean := p.Parse("ok " + p.Render(orig))

	require.Len(t, invs, 1)
	assert.True(t, invs[0].Equal(orig), "got %s want %s", invs[0], orig)
	assert.Equal(t, "ok", clean)
}

func TestParse_TwoTagsBackToBack(t *testing.T) {
	p := tagparse.New("TAG")
	first := "[TAG:search_products|search_term:sedia|limit:5]"
	second := "[TAG:search_products|search_term:armadio|limit:5]"

	invs, clean := p.Parse("Cerco entrambi: " + first + second + " attendi")

	require.Len(t, invs, 2)
	s0, _ := invs[0].Param("search_term")
	s1, _ := invs[1].Param("search_term")
	assert.Equal(t, action.String("sedia"), s0)
	assert.Equal(t, action.String("armadio"), s1)
	assert.NotContains(t, clean, first)
	assert.NotContains(t, clean, second)
	assert.Equal(t, "Cerco entrambi:  attendi", clean)
}

func TestParse_NoTerminatorSkipsAndContinues(t *testing.T) {
	p := tagparse.New("TAG")
	invs, _ := p.Parse("[TAG:broken")
	assert.Empty(t, invs)

	invs, clean := p.Parse("[TAG:broken|x:[1,2 and later [TAG:get_pending_orders|limit:3]")
	require.Len(t, invs, 1)
	assert.Equal(t, "get_pending_orders", invs[0].Name())
	assert.Equal(t, "[TAG:broken|x:[1,2 and later", clean)
}

func TestParse_NoTagReturnsInput(t *testing.T) {
	p := tagparse.New("TAG")
	text := "  Nessun ordine in sospeso.  "
	invs, clean := p.Parse(text)
	assert.Empty(t, invs)
	assert.Equal(t, strings.TrimSpace(text), clean)
}

func TestParse_InvalidJSONKeptAsString(t *testing.T) {
	p := tagparse.New("TAG")
	invs, _ := p.Parse("[TAG:create_delivery_order|product_items:[{'product_id': 1}]]")
	require.Len(t, invs, 1)
	v, _ := invs[0].Param("product_items")
	assert.Equal(t, action.String("[{'product_id': 1}]"), v)
}

func TestParse_MultilineTagInsideFence(t *testing.T) {
	p := tagparse.New("FUNCTION")
	input := "Ecco:\n```text\n[FUNCTION:search_products|\nsearch_term:cestino\n|limit:5]\n```"

	invs, clean := p.Parse(input)

	require.Len(t, invs, 1)
	term, _ := invs[0].Param("search_term")
	assert.Equal(t, action.String("cestino"), term)
	assert.NotContains(t, clean, "[FUNCTION:")
}

func TestParse_InlineCodeTag(t *testing.T) {
	p := tagparse.New("FUNCTION")
	invs, clean := p.Parse("Eseguo `[FUNCTION:get_pending_orders|order_type:outgoing]` ora")
	require.Len(t, invs, 1)
	assert.Equal(t, "get_pending_orders", invs[0].Name())
	assert.NotContains(t, clean, "FUNCTION")
}

func TestStripAndTruncated(t *testing.T) {
	p := tagparse.New("FUNCTION")

	assert.Equal(t, "Fatto.", p.Strip("Fatto. [FUNCTION:get_pending_orders]"))
	assert.True(t, p.LooksTruncated("partner_name:Marco|order_lines:[{\"product_id\":1}]"))
	assert.False(t, p.LooksTruncated("Tutto ok."))
	assert.False(t, p.LooksTruncated("[FUNCTION:get_stock_info|product_name:x]"))
}

func TestParse_FallbackRemovesBackticksFromName(t *testing.T) {
	p := tagparse.New("FUNCTION")
	for _, input := range []string{
		"[FUNCTION:`get_pending_orders`|limit:3]",
		"```\n[FUNCTION:`get_pending_orders`|\nlimit:3]\n```",
	} {
		t.Run(input, func(t *testing.T) {
			strict, _ := p.ParseStrict(input)
			require.Empty(t, strict)

			invs, clean := p.Parse(input)

			require.Len(t, invs, 1)
			assert.Equal(t, "get_pending_orders", invs[0].Name())
			limit, _ := invs[0].Param("limit")
			assert.Equal(t, action.String("3"), limit)
			assert.Empty(t, clean)
		})
	}
}

func TestParse_FallbackBareTag(t *testing.T) {
	p := tagparse.New("FUNCTION")
	input := `Controllo [FUNCTION:"get_stock_levels'] subito`

	strict, _ := p.ParseStrict(input)
	require.Empty(t, strict)

	invs, clean := p.Parse(input)

	require.Len(t, invs, 1)
	assert.Equal(t, "get_stock_levels", invs[0].Name())
	assert.Empty(t, invs[0].Params())
	assert.Equal(t, "Controllo  subito", clean)
}

func TestParse_UnparsableTagReturnsTrimmedInput(t *testing.T) {
	p := tagparse.New("FUNCTION")
	text := "  Sto per chiamare [FUNCTION:get_pending_orders|limit:[3  "

	invs, clean := p.Parse(text)
	assert.Empty(t, invs)
	assert.Equal(t, strings.TrimSpace(text), clean)

	_, strictClean := p.ParseStrict(text)
	assert.Equal(t, strictClean, clean)
}
