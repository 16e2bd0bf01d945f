package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
)

// SystemPrompt builds the instruction block sent with every completion:
// role, tag grammar, working rules and the function list.
func SystemPrompt(cat *catalog.Catalog, keyword string) string {
	kw := keyword
	var b strings.Builder
	b.WriteString("You are the sales and logistics assistant of a warehouse management system.\n")
	b.WriteString("Answer in the language the user writes in. Use plain text with emoji for states, no HTML.\n\n")

	b.WriteString("=== CALLING FUNCTIONS ===\n")
	fmt.Fprintf(&b, "You cannot call functions directly. To run one, reply with a tag:\n[%s:function_name|param1:value1|param2:value2]\n", kw)
	b.WriteString("- Write the COMPLETE tag on one line with every parameter it needs.\n")
	b.WriteString("- Do not write other text around the tag. The system runs it and sends you the result.\n")
	b.WriteString("- List and object values are JSON, e.g. order_lines:[{\"product_id\":17,\"quantity\":5}].\n")
	b.WriteString("- When you have the results, answer the user WITHOUT tags.\n\n")

	b.WriteString("=== RULES ===\n")
	fmt.Fprintf(&b, "- NEVER invent a product_id. When the user names a product, run [%s:search_products|search_term:NAME|limit:5] first.\n", kw)
	b.WriteString("- Normalise search terms: singular form, no articles (\"the chairs\" -> \"chair\", \"le sedie\" -> \"sedia\").\n")
	b.WriteString("- For several products in one order, write one search_products tag per product in the same reply; the system will then ask you for a single order tag.\n")
	fmt.Fprintf(&b, "- Orders need the customer's exact name. If unsure, run [%s:search_partners|search_term:NAME].\n", kw)
	b.WriteString("- Dates: TODAY is given in the [CONTEXT] line. \"tomorrow\" is TODAY+1, \"in 3 days\" is TODAY+3, \"in a week\" is TODAY+7.\n")
	b.WriteString("  scheduled_date is YYYY-MM-DD or YYYY-MM-DD HH:MM:SS. Omit it when the user gives no date.\n")
	b.WriteString("- Orders are held for the user's confirmation by the system. Never ask for confirmation yourself before writing the create_sales_order tag.\n")
	fmt.Fprintf(&b, "- Text after %s is internal state. Never write it yourself and never show it to the user.\n", approvals.Sentinel)
	fmt.Fprintf(&b, "- Before update_delivery, run get_delivery_details to learn the move_id of each line.\n\n")

	b.WriteString(cat.PromptSection(kw))
	return b.String()
}

// contextLine anchors relative dates for the model.
func contextLine(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("[CONTEXT] TODAY=%s TZ=%s", now.In(loc).Format("2006-01-02 15:04:05"), loc.String())
}

func truncatedPrompt(keyword string) string {
	return fmt.Sprintf("You returned a truncated function tag. Return ONLY the complete tag on one line, with no text before or after it. "+
		"Example: [%[1]s:create_sales_order|partner_name:CUSTOMER|order_lines:[{\"product_id\":ID,\"quantity\":QTY}]|confirm:true]. "+
		"If you need to find the product first, return [%[1]s:search_products|search_term:NAME|limit:5].", keyword)
}

func resultPrompt(name string, payload action.Value) string {
	return fmt.Sprintf("Result of %s: %s\n\nAnswer the user clearly WITHOUT function tags.", name, jsonText(payload))
}

func domainErrorPrompt(name string, msg, details string) string {
	body := fmt.Sprintf(`{"error":%q`, msg)
	if details != "" {
		body += fmt.Sprintf(`,"details":%q`, details)
	}
	return fmt.Sprintf("Result of %s: %s}\n\nTell the user what went wrong, or fix the call if you can.", name, body)
}

func orderFromSearchPrompt(keyword string, payload action.Value, productID, request string) string {
	return fmt.Sprintf("Product search result: %s\n\n"+
		"Now create the order. Reply with the complete tag:\n"+
		"[%s:create_sales_order|partner_name:CUSTOMER|order_lines:[{\"product_id\":%s,\"quantity\":QTY}]|confirm:true]\n\n"+
		"Replace CUSTOMER and QTY with the values from the user's request: %q",
		jsonText(payload), keyword, productID, request)
}

func batchPrompt(keyword string, targets []string, resolved []resolution, failed []string, request string) string {
	var b strings.Builder
	b.WriteString("Lookup results:\n")
	for _, r := range resolved {
		fmt.Fprintf(&b, "- %q -> %s %s (%s)\n", r.term, r.refKey, r.ref, r.label)
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Not found: %s\n", strings.Join(quoteAll(failed), ", "))
	}
	fmt.Fprintf(&b, "\nNow reply with ONE %s tag (%s) that uses ALL the resolved references above in a single call. ",
		keyword, strings.Join(targets, " or "))
	b.WriteString("Leave out the items that were not found.\n")
	fmt.Fprintf(&b, "User request: %q", request)
	return b.String()
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
