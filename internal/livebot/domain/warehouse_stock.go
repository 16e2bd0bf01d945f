package domain

import (
	"fmt"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

// Delivery decisions accepted by process_delivery_decision.
const (
	DecisionBackorder   = "backorder"
	DecisionNoBackorder = "no_backorder"
	DecisionImmediate   = "immediate"
)

func (w *Warehouse) stockInfo(p params, _ ExecOptions) (Result, error) {
	var prod *Product
	id, hasID, err := p.id("product_id")
	if err != nil {
		return Result{}, err
	}
	switch {
	case hasID:
		prod = w.products[id]
	case p.str("product_name") != "":
		prod = w.findProductByName(p.str("product_name"))
	default:
		return Result{}, Rejectf(p.act, "pass product_name or product_id")
	}
	if prod == nil {
		return Result{}, &Error{
			Action:  p.act,
			Message: "product not found",
			Details: "Call search_products to list matching products.",
		}
	}

	var incoming, outgoing float64
	for _, pk := range w.pickings {
		if isClosed(pk.State) {
			continue
		}
		for _, m := range pk.Moves {
			if m.ProductID != prod.ID {
				continue
			}
			if pk.Kind == KindIncoming {
				incoming += m.Demand
			} else {
				outgoing += m.Demand
			}
		}
	}
	return Result{Payload: action.Object{
		"product_id":        num(prod.ID),
		"product_name":      action.String(prod.Name),
		"qty_available":     num(prod.OnHand),
		"virtual_available": num(prod.OnHand + incoming - outgoing),
		"incoming_qty":      num(incoming),
		"outgoing_qty":      num(outgoing),
	}}, nil
}

func (w *Warehouse) searchPartners(p params, _ ExecOptions) (Result, error) {
	term := strings.ToLower(p.str("search_term"))
	limit := p.limit(5)
	out := action.Array{}
	for _, pt := range w.sortedPartners() {
		if len(out) == limit {
			break
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(pt.Name), term) &&
			!strings.Contains(strings.ToLower(pt.Email), term) &&
			!strings.Contains(pt.Phone, term) {
			continue
		}
		out = append(out, action.Object{
			"id":    num(pt.ID),
			"name":  action.String(pt.Name),
			"email": action.String(pt.Email),
			"phone": action.String(pt.Phone),
		})
	}
	return Result{Payload: out}, nil
}

func (w *Warehouse) searchProducts(p params, _ ExecOptions) (Result, error) {
	term := strings.ToLower(p.str("search_term"))
	kind := strings.ToLower(p.str("product_type"))
	limit := p.limit(100)
	out := action.Array{}
	for _, pr := range w.sortedProducts() {
		if len(out) == limit {
			break
		}
		if kind != "" && pr.Type != kind {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(pr.Name), term) &&
			!strings.Contains(strings.ToLower(pr.Code), term) {
			continue
		}
		out = append(out, action.Object{
			"id":            num(pr.ID),
			"name":          action.String(pr.Name),
			"qty_available": num(pr.OnHand),
			"default_code":  action.String(pr.Code),
			"list_price":    num(pr.ListPrice),
		})
	}
	return Result{Payload: out}, nil
}

func (w *Warehouse) pendingOrders(p params, _ ExecOptions) (Result, error) {
	kind := strings.ToLower(p.str("order_type"))
	if kind != "" && kind != KindIncoming && kind != KindOutgoing {
		return Result{}, Rejectf(p.act, "order_type must be incoming or outgoing")
	}
	limit := p.limit(10)
	out := action.Array{}
	for _, pk := range w.sortedPickings() {
		if len(out) == limit {
			break
		}
		if isClosed(pk.State) || (kind != "" && pk.Kind != kind) {
			continue
		}
		out = append(out, action.Object{
			"id":             num(pk.ID),
			"name":           action.String(pk.Name),
			"partner":        action.String(w.partnerName(pk.PartnerID)),
			"state":          action.String(pk.State),
			"scheduled_date": w.dateTime(pk.Scheduled),
			"origin":         action.String(pk.Origin),
		})
	}
	return Result{Payload: out}, nil
}

func (w *Warehouse) deliveryDetails(p params, _ ExecOptions) (Result, error) {
	pk, err := w.findPicking(p)
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: w.pickingPayload(pk)}, nil
}

func (w *Warehouse) pickingPayload(pk *Picking) action.Object {
	moves := action.Array{}
	for _, m := range pk.Moves {
		prod := w.products[m.ProductID]
		moves = append(moves, action.Object{
			"move_id":      num(m.ID),
			"product_id":   num(prod.ID),
			"product_name": action.String(prod.Name),
			"product_code": action.String(prod.Code),
			"demand":       num(m.Demand),
			"quantity":     num(m.Done),
			"reserved":     num(m.Reserved),
			"uom":          action.String("Units"),
			"state":        action.String(m.State),
			"is_done":      action.Bool(m.State == StateDone),
		})
	}
	return action.Object{
		"picking_id":     num(pk.ID),
		"picking_name":   action.String(pk.Name),
		"picking_type":   action.String(pk.Kind),
		"partner_id":     num(pk.PartnerID),
		"partner_name":   action.String(w.partnerName(pk.PartnerID)),
		"state":          action.String(pk.State),
		"scheduled_date": w.dateTime(pk.Scheduled),
		"origin":         action.String(pk.Origin),
		"moves":          moves,
		"moves_count":    num(len(moves)),
	}
}

func (w *Warehouse) openPicking(p params) (*Picking, error) {
	pk, err := w.findPicking(p)
	if err != nil {
		return nil, err
	}
	switch pk.State {
	case StateDone:
		return nil, Rejectf(p.act, "delivery %s was already validated", pk.Name)
	case StateCancel:
		return nil, Rejectf(p.act, "delivery %s is cancelled", pk.Name)
	}
	return pk, nil
}

func (w *Warehouse) validateDelivery(p params, _ ExecOptions) (Result, error) {
	pk, err := w.openPicking(p)
	if err != nil {
		return Result{}, err
	}
	if pk.Kind == KindOutgoing {
		w.reserve(pk)
	}

	var short action.Array
	for _, m := range pk.Moves {
		if m.Reserved < m.Demand {
			short = append(short, action.Object{
				"move":     num(m.ID),
				"product":  action.String(w.products[m.ProductID].Name),
				"reserved": num(m.Reserved),
				"demand":   num(m.Demand),
			})
		}
	}
	if len(short) > 0 {
		msg := fmt.Sprintf("⚠️ Delivery %s is not fully available. Choose how to proceed:\n"+
			"  • backorder: ship what is available and create a backorder for the rest\n"+
			"  • no_backorder: ship what is available and drop the rest\n"+
			"  • immediate: ship the full quantities anyway", pk.Name)
		return Result{
			Payload: action.Object{
				"requires_decision": action.Bool(true),
				"picking_id":        num(pk.ID),
				"picking_name":      action.String(pk.Name),
				"message":           action.String(msg),
				"details":           short,
			},
			Message: msg,
		}, nil
	}

	w.ship(pk, func(m *Move) float64 { return m.Demand })
	return Result{
		Payload: w.pickingPayload(pk),
		Message: fmt.Sprintf("✅ Delivery %s validated", pk.Name),
	}, nil
}

func (w *Warehouse) deliveryDecision(p params, _ ExecOptions) (Result, error) {
	pk, err := w.openPicking(p)
	if err != nil {
		return Result{}, err
	}
	decision := strings.ToLower(p.str("decision"))

	var reserved float64
	for _, m := range pk.Moves {
		reserved += m.Reserved
	}

	switch decision {
	case DecisionImmediate:
		w.ship(pk, func(m *Move) float64 { return m.Demand })
		return Result{
			Payload: w.pickingPayload(pk),
			Message: fmt.Sprintf("✅ Delivery %s shipped in full", pk.Name),
		}, nil

	case DecisionBackorder:
		if reserved == 0 {
			return Result{
				Payload: w.pickingPayload(pk),
				Message: fmt.Sprintf("ℹ️ Nothing is available for %s yet, it stays pending", pk.Name),
			}, nil
		}
		type rest struct {
			product *Product
			qty     float64
		}
		var remaining []rest
		for _, m := range pk.Moves {
			if left := m.Demand - m.Reserved; left > 0 {
				remaining = append(remaining, rest{w.products[m.ProductID], left})
			}
		}
		w.ship(pk, func(m *Move) float64 { return m.Reserved })

		back := w.newPicking(pk.Kind, w.partners[pk.PartnerID], pk.Scheduled, pk.Origin)
		back.OrderID = pk.OrderID
		for _, r := range remaining {
			w.addMove(back, r.product, r.qty)
		}
		w.reserve(back)
		if o, ok := w.orders[pk.OrderID]; ok {
			o.PickingIDs = append(o.PickingIDs, back.ID)
		}
		payload := w.pickingPayload(pk)
		payload["backorder"] = action.String(back.Name)
		return Result{
			Payload: payload,
			Message: fmt.Sprintf("✅ Delivery %s shipped partially, backorder %s created", pk.Name, back.Name),
		}, nil

	case DecisionNoBackorder:
		if reserved == 0 {
			pk.State = StateCancel
			for _, m := range pk.Moves {
				m.State = StateCancel
			}
			return Result{
				Payload: w.pickingPayload(pk),
				Message: fmt.Sprintf("✅ Delivery %s cancelled, nothing was available", pk.Name),
			}, nil
		}
		w.ship(pk, func(m *Move) float64 { return m.Reserved })
		return Result{
			Payload: w.pickingPayload(pk),
			Message: fmt.Sprintf("✅ Delivery %s shipped partially, the remainder was dropped", pk.Name),
		}, nil
	}
	return Result{}, &Error{
		Action:  p.act,
		Message: fmt.Sprintf("unknown decision %q", decision),
		Details: "Use backorder, no_backorder or immediate.",
	}
}

func (w *Warehouse) createDeliveryOrder(p params, _ ExecOptions) (Result, error) {
	partner, err := w.requirePartner(p, "partner_name")
	if err != nil {
		return Result{}, err
	}
	lines, err := w.draftLines(p, "product_items")
	if err != nil {
		return Result{}, err
	}
	pk := w.newPicking(KindOutgoing, partner, w.now(), "")
	for _, l := range lines {
		w.addMove(pk, l.product, l.qty)
	}
	w.reserve(pk)

	payload := w.pickingPayload(pk)
	payload["warning"] = action.String("Delivery created without a sales order: nothing will be invoiced.")
	return Result{
		Payload: payload,
		Message: fmt.Sprintf("✅ Delivery %s created for %s", pk.Name, partner.Name),
	}, nil
}

func (w *Warehouse) updateDelivery(p params, _ ExecOptions) (Result, error) {
	pk, err := w.openPicking(p)
	if err != nil {
		return Result{}, err
	}
	updates, err := p.objects("move_updates")
	if err != nil {
		return Result{}, err
	}
	if len(updates) == 0 {
		return Result{}, Rejectf(p.act, "move_updates is required")
	}

	type change struct {
		move    *Move
		product *Product
		qty     float64
		remove  bool
	}
	changes := make([]change, 0, len(updates))
	for i, u := range updates {
		var c change
		var hasQty bool
		c.qty, hasQty = objFloat(u, "quantity")
		c.remove = action.Truthy(u["delete"])
		if mid, ok := objInt(u, "move_id"); ok {
			for _, m := range pk.Moves {
				if m.ID == mid {
					c.move = m
				}
			}
			if c.move == nil {
				return Result{}, &Error{
					Action:  p.act,
					Message: fmt.Sprintf("move %d is not on delivery %s", mid, pk.Name),
					Details: "Call get_delivery_details to read the move ids.",
				}
			}
		} else if pid, ok := objInt(u, "product_id"); ok {
			if c.product = w.products[pid]; c.product == nil {
				return Result{}, Rejectf(p.act, "product %d not found", pid)
			}
		} else {
			return Result{}, Rejectf(p.act, "move_updates[%d] needs move_id or product_id", i)
		}
		if c.remove && c.move == nil {
			return Result{}, Rejectf(p.act, "move_updates[%d]: delete needs move_id", i)
		}
		if !c.remove && (!hasQty || c.qty < 0) {
			return Result{}, Rejectf(p.act, "move_updates[%d]: quantity must be a number", i)
		}
		changes = append(changes, c)
	}

	var updated, added, deleted action.Array
	for _, c := range changes {
		switch {
		case c.remove:
			kept := pk.Moves[:0]
			for _, m := range pk.Moves {
				if m != c.move {
					kept = append(kept, m)
				}
			}
			pk.Moves = kept
			deleted = append(deleted, num(c.move.ID))
		case c.move != nil:
			c.move.Demand = c.qty
			updated = append(updated, action.Object{"move_id": num(c.move.ID), "quantity": num(c.qty)})
		default:
			m := w.addMove(pk, c.product, c.qty)
			added = append(added, action.Object{
				"move_id":  num(m.ID),
				"product":  action.String(c.product.Name),
				"quantity": num(c.qty),
			})
		}
	}
	w.reserve(pk)

	return Result{
		Payload: action.Object{
			"picking_id":    num(pk.ID),
			"picking_name":  action.String(pk.Name),
			"state":         action.String(pk.State),
			"updated_moves": nonNil(updated),
			"added_moves":   nonNil(added),
			"deleted_moves": nonNil(deleted),
		},
		Message: fmt.Sprintf("✅ Delivery %s updated", pk.Name),
	}, nil
}
