package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

func TestFormat_UnknownAction(t *testing.T) {
	_, ok := workflow.Format("get_pending_orders", action.Array{})
	assert.False(t, ok)
}

func TestFormat_NoProducts(t *testing.T) {
	text, ok := workflow.Format("search_products", action.Array{})
	assert.True(t, ok)
	assert.Equal(t, "🔍 No products found.", text)
}

func TestFormat_Products(t *testing.T) {
	text, _ := workflow.Format("search_products", action.Array{action.Object{
		"id":            action.Number(1),
		"name":          action.String("Sedia Ufficio"),
		"default_code":  action.String("OFF-CHAIR"),
		"list_price":    action.Number(120),
		"qty_available": action.Number(40),
	}})
	assert.Equal(t, "🔍 Found 1 product(s):\n  • Sedia Ufficio [OFF-CHAIR] (id 1) - €120.00, available: 40", text)
}

func TestFormatMutation(t *testing.T) {
	res := domain.Result{
		Message: "✅ Order S00035 created for Marco Rossi, total €600.00 (confirmed)",
		Payload: action.Object{"pickings": action.Array{action.Object{
			"picking_name": action.String("WH/OUT/00014"),
			"state":        action.String("assigned"),
		}}},
	}
	assert.Equal(t,
		"✅ Order S00035 created for Marco Rossi, total €600.00 (confirmed)\nDeliveries:\n  • WH/OUT/00014 📦 assigned",
		workflow.FormatMutation("create_sales_order", res))
	assert.Equal(t, "✅ confirm_sales_order completed", workflow.FormatMutation("confirm_sales_order", domain.Result{}))
}

func TestFormatError(t *testing.T) {
	de := &domain.Error{Action: "create_sales_order", Message: `customer "Zeta" not found`, Details: "Use create_partner first."}
	assert.Equal(t, "⚠️ Error executing create_sales_order: customer \"Zeta\" not found\nUse create_partner first.",
		workflow.FormatError("create_sales_order", de))
}

func TestSummarize(t *testing.T) {
	steps := []workflow.Step{
		{
			Invocation: action.NewInvocation("get_pending_orders", nil),
			Result: &domain.Result{Payload: action.Array{
				action.Object{"name": action.String("WH/OUT/00013")},
				action.Object{"name": action.String("WH/IN/00004")},
			}},
		},
		{
			Invocation: action.NewInvocation("get_top_customers", nil),
			Result: &domain.Result{Payload: action.Object{
				"period":    action.String("month"),
				"top_customers": action.Array{},
			}},
		},
		{
			Invocation: action.NewInvocation("get_delivery_details", nil),
			Err:        domain.Rejectf("get_delivery_details", "delivery WH/OUT/99999 not found"),
		},
	}

	text := workflow.Summarize(steps)

	assert.Contains(t, text, "  • get_pending_orders: 2 result(s): WH/OUT/00013, WH/IN/00004")
	assert.Contains(t, text, "  • get_top_customers:\n    🏆")
	assert.Contains(t, text, "  • get_delivery_details: failed (")
	assert.Contains(t, text, "WH/OUT/99999 not found")
	assert.Equal(t, "  • nothing was executed", workflow.Summarize(nil))
}
