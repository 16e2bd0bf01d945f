package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

var editKeywords = []string{
	"aggiungi al", "aggiungi all", "modifica", "aggiorna", "rimuovi dal", "togli dal", "preventivo",
	"add to", "modify", "update", "remove from",
}

var (
	orderNameRe = regexp.MustCompile(`(?i)\b(S\d{5}|SO?\d+)\b`)
	orderWordRe = regexp.MustCompile(`(?i)\b(?:ordine|order)\s+(?:n\.?\s*|#)?(\d+)\b`)
)

func wantsOrderEdit(message string) bool {
	lower := strings.ToLower(message)
	for _, k := range editKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// orderRef extracts an explicit order reference from message.
func orderRef(message string) (action.Invocation, bool) {
	if m := orderNameRe.FindStringSubmatch(message); m != nil {
		return action.NewInvocation("get_sales_order_details", map[string]action.Value{
			"order_name": action.String(strings.ToUpper(m[1])),
			"internal":   action.Bool(true),
		}), true
	}
	if m := orderWordRe.FindStringSubmatch(message); m != nil {
		n, _ := strconv.Atoi(m[1])
		return action.NewInvocation("get_sales_order_details", map[string]action.Value{
			"order_name": action.String(fmt.Sprintf("S%05d", n)),
			"internal":   action.Bool(true),
		}), true
	}
	return action.Invocation{}, false
}

// orderContext looks up the order a modification request refers to (the
// named one, or the newest draft) and renders its lines so the model can
// address them by line_id. Failures leave the request without context.
func (o *Orchestrator) orderContext(ctx context.Context, message string) string {
	if !wantsOrderEdit(message) {
		return ""
	}
	details, ok := orderRef(message)
	if !ok {
		res, err := o.cfg.Service.Execute(ctx, action.NewInvocation("get_sales_overview", map[string]action.Value{
			"state":  action.String("draft"),
			"period": action.String("all"),
			"limit":  action.Number(1),
		}))
		if err != nil {
			slog.Debug("workflow: no draft for order context", "err", err)
			return ""
		}
		ov, _ := res.Payload.(action.Object)
		orders, _ := ov["orders"].(action.Array)
		if len(orders) == 0 {
			return ""
		}
		latest, _ := orders[0].(action.Object)
		details = action.NewInvocation("get_sales_order_details", map[string]action.Value{
			"order_name": action.String(latest.Lookup("name")),
			"internal":   action.Bool(true),
		})
	}

	res, err := o.cfg.Service.Execute(ctx, details)
	if err != nil {
		slog.Debug("workflow: order context lookup failed", "err", err)
		return ""
	}
	od, _ := res.Payload.(action.Object)
	var b strings.Builder
	fmt.Fprintf(&b, "[ORDER CONTEXT] Order %s (id %s), customer %s, state %s.\nLines:",
		od.Lookup("order_name"), field(od, "order_id"), od.Lookup("partner"), od.Lookup("state"))
	lines, _ := od["order_lines"].(action.Array)
	for _, it := range lines {
		l, _ := it.(action.Object)
		fmt.Fprintf(&b, "\n- line_id %s: %s (product_id %s) qty %s",
			field(l, "line_id"), l.Lookup("product"), field(l, "product_id"), field(l, "quantity"))
	}
	b.WriteString("\nTo change a quantity use order_lines_updates:[{\"line_id\":ID,\"quantity\":N}]. ")
	b.WriteString("To remove a line add \"delete\":true. To add a product use its product_id without line_id.")
	slog.Debug("workflow: order context injected", "order", od.Lookup("order_name"))
	return b.String()
}
