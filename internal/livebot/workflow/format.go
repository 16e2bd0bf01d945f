package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/normalize"
)

// NoInformation is the reply when the model produced nothing usable.
const NoInformation = "No information available."

var stateIcons = map[string]string{
	"draft":     "📝",
	"sent":      "📨",
	"sale":      "✅",
	"done":      "✔️",
	"cancel":    "❌",
	"confirmed": "⏳",
	"waiting":   "⏳",
	"assigned":  "📦",
}

type formatter func(action.Value) string

// formatters render read-only results server-side so the model cannot
// misquote numbers.
var formatters = map[string]formatter{
	"search_products":          formatProducts,
	"get_sales_overview":       formatOverview,
	"get_sales_order_details":  formatOrderDetails,
	"get_top_customers":        formatTopCustomers,
	"get_products_sales_stats": formatProductStats,
}

// Format renders payload for the read-only action name. ok is false when
// the action has no server-side formatter.
func Format(name string, payload action.Value) (string, bool) {
	f, ok := formatters[name]
	if !ok {
		return "", false
	}
	return f(payload), true
}

// FormatMutation renders the outcome of a successful mutating call.
func FormatMutation(name string, res domain.Result) string {
	var b strings.Builder
	if res.Message != "" {
		b.WriteString(res.Message)
	} else {
		fmt.Fprintf(&b, "✅ %s completed", name)
	}
	obj, _ := res.Payload.(action.Object)
	if pickings, ok := obj["pickings"].(action.Array); ok && len(pickings) > 0 {
		b.WriteString("\nDeliveries:")
		for _, p := range pickings {
			po, _ := p.(action.Object)
			fmt.Fprintf(&b, "\n  • %s %s", po.Lookup("picking_name"), stateLabel(po.Lookup("state")))
		}
	}
	if w := obj.Lookup("warning"); w != "" {
		b.WriteString("\n⚠️ " + w)
	}
	return b.String()
}

// FormatError renders a business rejection of a mutating call.
func FormatError(name string, de *domain.Error) string {
	s := fmt.Sprintf("⚠️ Error executing %s: %s", name, de.Message)
	if de.Details != "" {
		s += "\n" + de.Details
	}
	return s
}

// Summarize lists the calls of a chain, one bullet each, with the
// formatted result where a formatter exists.
func Summarize(steps []Step) string {
	if len(steps) == 0 {
		return "  • nothing was executed"
	}
	lines := make([]string, 0, len(steps))
	for _, s := range steps {
		name := s.Invocation.Name()
		switch {
		case s.Err != nil:
			lines = append(lines, fmt.Sprintf("  • %s: failed (%s)", name, stepError(s.Err)))
		case s.Result == nil:
			lines = append(lines, "  • "+name)
		default:
			if text, ok := Format(name, s.Result.Payload); ok {
				lines = append(lines, fmt.Sprintf("  • %s:\n%s", name, indent(text, "    ")))
			} else {
				lines = append(lines, fmt.Sprintf("  • %s: %s", name, brief(s.Result.Payload)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func stepError(err error) string {
	if de, ok := domain.AsError(err); ok {
		return de.Message
	}
	var ve *normalize.ValidationError
	if errors.As(err, &ve) {
		return ve.Field + " " + ve.Reason
	}
	return err.Error()
}

// brief names up to five records of a list result, or the record itself.
func brief(v action.Value) string {
	const shown = 5
	switch t := v.(type) {
	case action.Array:
		names := make([]string, 0, shown)
		for _, it := range t {
			if len(names) == shown {
				break
			}
			if obj, ok := it.(action.Object); ok {
				if n := obj.Lookup("name"); n != "" {
					names = append(names, n)
				}
			}
		}
		s := fmt.Sprintf("%d result(s)", len(t))
		if len(names) > 0 {
			s += ": " + strings.Join(names, ", ")
			if len(t) > len(names) {
				s += ", ..."
			}
		}
		return s
	case action.Object:
		for _, key := range []string{"name", "message"} {
			if n := t.Lookup(key); n != "" {
				return n
			}
		}
		return "done"
	case nil:
		return "done"
	}
	return action.Text(v)
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}

// -----------------------------------------------------------------------------
// Read-only formatters
// -----------------------------------------------------------------------------

func formatProducts(v action.Value) string {
	items, _ := v.(action.Array)
	if len(items) == 0 {
		return "🔍 No products found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Found %d product(s):", len(items))
	for _, it := range items {
		p, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n  • %s [%s] (id %s) - %s, available: %s",
			p.Lookup("name"), p.Lookup("default_code"), field(p, "id"),
			money(p["list_price"]), field(p, "qty_available"))
	}
	return b.String()
}

func formatOverview(v action.Value) string {
	o, _ := v.(action.Object)
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Sales overview (%s)\n", o.Lookup("period"))
	fmt.Fprintf(&b, "Orders: %s\nRevenue: %s\nAverage order: %s",
		field(o, "total_orders"), money(o["total_revenue"]), money(o["avg_order_value"]))
	if byState, ok := o["orders_by_state"].(action.Object); ok && len(byState) > 0 {
		parts := make([]string, 0, len(byState))
		for _, k := range byState.Keys() {
			parts = append(parts, fmt.Sprintf("%s %s", stateLabel(k), action.Text(byState[k])))
		}
		b.WriteString("\nBy state: " + strings.Join(parts, ", "))
	}
	orders, _ := o["orders"].(action.Array)
	for _, it := range orders {
		so, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n  • %s %s - %s - %s (%s)",
			stateIcon(so.Lookup("state")), so.Lookup("name"), so.Lookup("partner"),
			money(so["amount_total"]), so.Lookup("date_order"))
	}
	return b.String()
}

func formatOrderDetails(v action.Value) string {
	o, _ := v.(action.Object)
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Order %s %s\n", o.Lookup("order_name"), stateLabel(o.Lookup("state")))
	fmt.Fprintf(&b, "Customer: %s\nDate: %s\n", o.Lookup("partner"), o.Lookup("date_order"))
	if c := o.Lookup("commitment_date"); c != "" {
		fmt.Fprintf(&b, "Delivery date: %s\n", c)
	}
	b.WriteString("Lines:")
	lines, _ := o["order_lines"].(action.Array)
	for _, it := range lines {
		l, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n  • [line %s] %s x%s @ %s = %s (delivered %s)",
			field(l, "line_id"), l.Lookup("product"), field(l, "quantity"),
			money(l["price_unit"]), money(l["subtotal"]), field(l, "qty_delivered"))
	}
	fmt.Fprintf(&b, "\nTotal: %s", money(o["amount_total"]))
	if progress, ok := o["delivery_progress"].(action.Object); ok {
		fmt.Fprintf(&b, "\nDelivery: %s (%s/%s)", strings.ReplaceAll(o.Lookup("delivery_status_computed"), "_", " "),
			field(progress, "delivered"), field(progress, "ordered"))
	}
	pickings, _ := o["pickings"].(action.Array)
	for _, it := range pickings {
		p, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n  🚚 %s %s", p.Lookup("picking_name"), stateLabel(p.Lookup("state")))
	}
	return b.String()
}

func formatTopCustomers(v action.Value) string {
	o, _ := v.(action.Object)
	top, _ := o["top_customers"].(action.Array)
	if len(top) == 0 {
		return fmt.Sprintf("🏆 No confirmed sales in period %s.", o.Lookup("period"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Top customers (%s)", o.Lookup("period"))
	for i, it := range top {
		c, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n%d. %s - %s over %s order(s)", i+1, c.Lookup("partner"),
			money(c["total_revenue"]), field(c, "total_orders"))
	}
	return b.String()
}

func formatProductStats(v action.Value) string {
	o, _ := v.(action.Object)
	top, _ := o["top_products"].(action.Array)
	if len(top) == 0 {
		return fmt.Sprintf("📦 No products sold in period %s.", o.Lookup("period"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Best-selling products (%s)", o.Lookup("period"))
	for i, it := range top {
		p, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n%d. %s - %s pcs, %s", i+1, p.Lookup("product"),
			field(p, "total_qty_sold"), money(p["total_revenue"]))
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func field(o action.Object, key string) string {
	if v, ok := o[key]; ok {
		return action.Text(v)
	}
	return "-"
}

func money(v action.Value) string {
	f, ok := action.AsFloat(v)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("€%.2f", f)
}

func stateIcon(state string) string {
	if icon, ok := stateIcons[state]; ok {
		return icon
	}
	return "•"
}

func stateLabel(state string) string {
	return fmt.Sprintf("%s %s", stateIcon(state), state)
}

func jsonText(v action.Value) string {
	if v == nil {
		return "{}"
	}
	if _, ok := v.(action.String); ok {
		return fmt.Sprintf("%q", v)
	}
	return action.Text(v)
}
