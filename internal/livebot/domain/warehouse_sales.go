package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

func (w *Warehouse) parseDate(p params, key string) (time.Time, bool, error) {
	s := p.str(key)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, w.loc); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, Rejectf(p.act, "%s %q is not a date (use 2025-10-21 or 2025-10-21 14:00:00)", key, s)
}

type draftLine struct {
	product *Product
	qty     float64
	price   float64
}

// draftLines resolves order_lines into products and prices without
// touching state.
func (w *Warehouse) draftLines(p params, key string) ([]draftLine, error) {
	items, err := p.objects(key)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, Rejectf(p.act, "%s must list at least one product", key)
	}
	lines := make([]draftLine, 0, len(items))
	for i, it := range items {
		pid, ok := objInt(it, "product_id")
		if !ok {
			return nil, Rejectf(p.act, "%s[%d]: product_id must be a number", key, i)
		}
		prod, ok := w.products[pid]
		if !ok {
			return nil, &Error{
				Action:  p.act,
				Message: fmt.Sprintf("product %d not found", pid),
				Details: "Call search_products to find the product_id.",
			}
		}
		qty, ok := objFloat(it, "quantity")
		if !ok || qty <= 0 {
			return nil, Rejectf(p.act, "%s[%d]: quantity must be a positive number", key, i)
		}
		price, ok := objFloat(it, "price_unit")
		if !ok {
			price = prod.ListPrice
		}
		lines = append(lines, draftLine{product: prod, qty: qty, price: price})
	}
	return lines, nil
}

func (w *Warehouse) requirePartner(p params, key string) (*Partner, error) {
	name := p.str(key)
	if name == "" {
		return nil, Rejectf(p.act, "%s is required", key)
	}
	partner := w.findPartner(name)
	if partner == nil {
		return nil, &Error{
			Action:  p.act,
			Message: fmt.Sprintf("customer %q not found", name),
			Details: "Search with search_partners or create the customer with create_partner first.",
		}
	}
	return partner, nil
}

func (w *Warehouse) createSalesOrder(p params, o ExecOptions) (Result, error) {
	partner, err := w.requirePartner(p, "partner_name")
	if err != nil {
		return Result{}, err
	}
	lines, err := w.draftLines(p, "order_lines")
	if err != nil {
		return Result{}, err
	}
	scheduled, hasDate, err := w.parseDate(p, "scheduled_date")
	if err != nil {
		return Result{}, err
	}
	confirm := p.flag("confirm", true)

	if !o.BypassConfirmation {
		return w.orderSummary(partner, lines, scheduled, hasDate), nil
	}

	order := w.newOrder(partner, w.now())
	if hasDate {
		order.Commitment = scheduled
	}
	for _, l := range lines {
		w.addLine(order, l.product, l.qty, l.price)
	}
	if confirm {
		w.confirm(order)
	}

	payload := action.Object{
		"sale_order_id":   num(order.ID),
		"sale_order_name": action.String(order.Name),
		"partner":         action.String(partner.Name),
		"state":           action.String(order.State),
		"amount_total":    num(order.Total()),
		"order_lines":     w.linesPayload(order),
	}
	if confirm {
		payload["pickings"] = w.pickingsPayload(order)
	}
	msg := fmt.Sprintf("✅ Order %s created for %s, total %s", order.Name, partner.Name, euro(order.Total()))
	if confirm {
		msg += " (confirmed)"
	}
	return Result{Payload: payload, Message: msg}, nil
}

func (w *Warehouse) orderSummary(partner *Partner, lines []draftLine, scheduled time.Time, hasDate bool) Result {
	var (
		b        strings.Builder
		total    float64
		products action.Array
	)
	b.WriteString("📦 Order summary\n\n")
	fmt.Fprintf(&b, "Customer: %s\nProducts:\n", partner.Name)
	for _, l := range lines {
		sub := round2(l.qty * l.price)
		total += sub
		item := fmt.Sprintf("%s (%s pcs) - %s", l.product.Name, action.Text(action.Number(l.qty)), euro(sub))
		products = append(products, action.String(item))
		fmt.Fprintf(&b, "  • %s\n", item)
	}
	when := "today"
	if hasDate {
		when = action.Text(w.date(scheduled))
	}
	fmt.Fprintf(&b, "Delivery date: %s\nEstimated total: %s\n\nConfirm? (reply YES / CONFERMO / OK VAI)", when, euro(round2(total)))

	return Result{
		RequiresConfirmation: true,
		Message:              b.String(),
		Payload: action.Object{
			"partner_name":   action.String(partner.Name),
			"products":       products,
			"scheduled_date": action.String(when),
			"total_estimate": num(round2(total)),
		},
	}
}

func (w *Warehouse) createPartner(p params, _ ExecOptions) (Result, error) {
	name := p.str("name")
	if name == "" {
		return Result{}, Rejectf(p.act, "name is required")
	}
	if existing := w.partnerByExactName(name); existing != nil {
		return Result{
			Payload: action.Object{
				"partner_id": num(existing.ID),
				"name":       action.String(existing.Name),
				"email":      action.String(existing.Email),
				"existing":   action.Bool(true),
			},
			Message: fmt.Sprintf("ℹ️ Customer %s already exists (id %d)", existing.Name, existing.ID),
		}, nil
	}

	partner := &Partner{
		ID:          w.id(),
		Name:        name,
		Email:       p.str("email"),
		Phone:       p.str("phone"),
		Mobile:      p.str("mobile"),
		Street:      p.str("street"),
		City:        p.str("city"),
		Zip:         p.str("zip"),
		CountryCode: strings.ToUpper(p.str("country_code")),
		VAT:         p.str("vat"),
		IsCompany:   p.flag("is_company", false),
	}
	var company string
	if cn := p.str("company_name"); cn != "" {
		parent := w.partnerByExactName(cn)
		if parent == nil {
			parent = &Partner{ID: w.id(), Name: cn, IsCompany: true}
			w.partners[parent.ID] = parent
		}
		partner.ParentID = parent.ID
		company = parent.Name
	}
	w.partners[partner.ID] = partner

	return Result{
		Payload: action.Object{
			"partner_id": num(partner.ID),
			"name":       action.String(partner.Name),
			"email":      action.String(partner.Email),
			"phone":      action.String(partner.Phone),
			"is_company": action.Bool(partner.IsCompany),
			"company":    action.String(company),
			"existing":   action.Bool(false),
		},
		Message: fmt.Sprintf("✅ Customer %s created (id %d)", partner.Name, partner.ID),
	}, nil
}

func (w *Warehouse) updateSalesOrder(p params, _ ExecOptions) (Result, error) {
	order, err := w.findOrder(p)
	if err != nil {
		return Result{}, err
	}
	if order.State != StateDraft && order.State != StateSent {
		return Result{}, &Error{
			Action:  p.act,
			Message: fmt.Sprintf("order %s is in state %s and can no longer be changed", order.Name, order.State),
			Details: "Only draft or sent quotations can be updated.",
		}
	}
	updates, err := p.objects("order_lines_updates")
	if err != nil {
		return Result{}, err
	}
	scheduled, hasDate, err := w.parseDate(p, "scheduled_date")
	if err != nil {
		return Result{}, err
	}
	if len(updates) == 0 && !hasDate {
		return Result{}, Rejectf(p.act, "nothing to update: pass order_lines_updates or scheduled_date")
	}

	// Validate everything before changing anything.
	type change struct {
		line    *OrderLine
		product *Product
		qty     float64
		hasQty  bool
		remove  bool
	}
	changes := make([]change, 0, len(updates))
	for i, u := range updates {
		var c change
		c.qty, c.hasQty = objFloat(u, "quantity")
		c.remove = action.Truthy(u["delete"])
		if lid, ok := objInt(u, "line_id"); ok {
			for _, l := range order.Lines {
				if l.ID == lid {
					c.line = l
				}
			}
			if c.line == nil {
				return Result{}, Rejectf(p.act, "line %d is not on order %s", lid, order.Name)
			}
		} else if pid, ok := objInt(u, "product_id"); ok {
			if c.product = w.products[pid]; c.product == nil {
				return Result{}, Rejectf(p.act, "product %d not found", pid)
			}
		} else if pn, ok := u["product_name"]; ok {
			if c.product = w.findProductByName(action.Text(pn)); c.product == nil {
				return Result{}, Rejectf(p.act, "product %q not found", action.Text(pn))
			}
		} else {
			return Result{}, Rejectf(p.act, "order_lines_updates[%d] needs line_id, product_id or product_name", i)
		}
		if !c.remove && (!c.hasQty || c.qty < 0) {
			return Result{}, Rejectf(p.act, "order_lines_updates[%d]: quantity must be a number", i)
		}
		if c.line == nil && c.remove {
			return Result{}, Rejectf(p.act, "order_lines_updates[%d]: delete needs line_id", i)
		}
		changes = append(changes, c)
	}

	var updated, added, deleted action.Array
	for _, c := range changes {
		switch {
		case c.remove:
			kept := order.Lines[:0]
			for _, l := range order.Lines {
				if l != c.line {
					kept = append(kept, l)
				}
			}
			order.Lines = kept
			deleted = append(deleted, num(c.line.ID))
		case c.line != nil:
			c.line.Quantity = c.qty
			updated = append(updated, action.Object{"line_id": num(c.line.ID), "quantity": num(c.qty)})
		default:
			l := w.addLine(order, c.product, c.qty, c.product.ListPrice)
			added = append(added, action.Object{
				"line_id":  num(l.ID),
				"product":  action.String(c.product.Name),
				"quantity": num(c.qty),
			})
		}
	}
	if hasDate {
		order.Commitment = scheduled
	}

	return Result{
		Payload: action.Object{
			"order_id":       num(order.ID),
			"order_name":     action.String(order.Name),
			"state":          action.String(order.State),
			"updated_lines":  nonNil(updated),
			"added_lines":    nonNil(added),
			"deleted_lines":  nonNil(deleted),
			"scheduled_date": w.date(order.Commitment),
			"amount_total":   num(order.Total()),
		},
		Message: fmt.Sprintf("✅ Order %s updated, new total %s", order.Name, euro(order.Total())),
	}, nil
}

func (w *Warehouse) confirmSalesOrder(p params, _ ExecOptions) (Result, error) {
	order, err := w.findOrder(p)
	if err != nil {
		return Result{}, err
	}
	if order.State != StateDraft && order.State != StateSent {
		return Result{}, Rejectf(p.act, "order %s is already %s", order.Name, order.State)
	}
	if len(order.Lines) == 0 {
		return Result{}, Rejectf(p.act, "order %s has no lines", order.Name)
	}
	w.confirm(order)
	return Result{
		Payload: action.Object{
			"order_id":   num(order.ID),
			"order_name": action.String(order.Name),
			"state":      action.String(order.State),
			"pickings":   w.pickingsPayload(order),
		},
		Message: fmt.Sprintf("✅ Order %s confirmed", order.Name),
	}, nil
}

func (w *Warehouse) cancelSalesOrder(p params, _ ExecOptions) (Result, error) {
	order, err := w.findOrder(p)
	if err != nil {
		return Result{}, err
	}
	if order.State == StateCancel {
		return Result{}, Rejectf(p.act, "order %s is already cancelled", order.Name)
	}
	for _, pid := range order.PickingIDs {
		if pk := w.pickings[pid]; pk.State == StateDone {
			return Result{}, &Error{
				Action:  p.act,
				Message: fmt.Sprintf("order %s cannot be cancelled: delivery %s was already shipped", order.Name, pk.Name),
				Details: "Create a return instead.",
			}
		}
	}
	var cancelled action.Array
	for _, pid := range order.PickingIDs {
		pk := w.pickings[pid]
		pk.State = StateCancel
		for _, m := range pk.Moves {
			m.Reserved = 0
			m.State = StateCancel
		}
		cancelled = append(cancelled, action.String(pk.Name))
	}
	order.State = StateCancel
	return Result{
		Payload: action.Object{
			"order_id":           num(order.ID),
			"order_name":         action.String(order.Name),
			"state":              action.String(order.State),
			"cancelled_pickings": nonNil(cancelled),
		},
		Message: fmt.Sprintf("✅ Order %s cancelled", order.Name),
	}, nil
}

func (w *Warehouse) linesPayload(o *SalesOrder) action.Array {
	out := action.Array{}
	for _, l := range o.Lines {
		prod := w.products[l.ProductID]
		out = append(out, action.Object{
			"line_id":       num(l.ID),
			"product_id":    num(prod.ID),
			"product":       action.String(prod.Name),
			"product_code":  action.String(prod.Code),
			"quantity":      num(l.Quantity),
			"qty_delivered": num(l.Delivered),
			"price_unit":    num(l.PriceUnit),
			"subtotal":      num(l.Subtotal()),
		})
	}
	return out
}

func (w *Warehouse) pickingsPayload(o *SalesOrder) action.Array {
	out := action.Array{}
	for _, pid := range o.PickingIDs {
		pk := w.pickings[pid]
		out = append(out, action.Object{
			"picking_id":     num(pk.ID),
			"picking_name":   action.String(pk.Name),
			"state":          action.String(pk.State),
			"scheduled_date": w.dateTime(pk.Scheduled),
		})
	}
	return out
}

func nonNil(a action.Array) action.Array {
	if a == nil {
		return action.Array{}
	}
	return a
}
