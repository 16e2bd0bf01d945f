package domain

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

// periodStart returns the first instant of period containing now. ok is
// false for "all".
func periodStart(act, period string, now time.Time) (start time.Time, ok bool, err error) {
	y, m, d := now.Date()
	loc := now.Location()
	switch period {
	case "all":
		return time.Time{}, false, nil
	case "day":
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true, nil
	case "week":
		offset := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc), true, nil
	case "month":
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true, nil
	case "quarter":
		q := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, q, 1, 0, 0, 0, 0, loc), true, nil
	case "year":
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), true, nil
	}
	return time.Time{}, false, Rejectf(act, "unknown period %q (use day, week, month, quarter, year or all)", period)
}

// ordersIn returns orders dated inside period, newest first, optionally
// restricted to the given states.
func (w *Warehouse) ordersIn(p params, states ...string) ([]*SalesOrder, string, error) {
	period := strings.ToLower(p.str("period"))
	if period == "" {
		period = "month"
	}
	start, bounded, err := periodStart(p.act, period, w.now().In(w.loc))
	if err != nil {
		return nil, "", err
	}
	var out []*SalesOrder
	for _, o := range w.sortedOrders() {
		if bounded && o.DateOrder.Before(start) {
			continue
		}
		if len(states) > 0 && !slices.Contains(states, o.State) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateOrder.After(out[j].DateOrder) })
	return out, period, nil
}

func (w *Warehouse) salesOverview(p params, _ ExecOptions) (Result, error) {
	var states []string
	if st := strings.ToLower(p.str("state")); st != "" {
		states = []string{st}
	}
	orders, period, err := w.ordersIn(p, states...)
	if err != nil {
		return Result{}, err
	}
	if limit := p.limit(100); len(orders) > limit {
		orders = orders[:limit]
	}

	var revenue float64
	byState := action.Object{}
	list := action.Array{}
	for _, o := range orders {
		revenue += o.Total()
		n, _ := action.AsFloat(byState[o.State])
		byState[o.State] = action.Number(n + 1)
		list = append(list, action.Object{
			"id":           num(o.ID),
			"name":         action.String(o.Name),
			"partner_id":   num(o.PartnerID),
			"partner":      action.String(w.partnerName(o.PartnerID)),
			"date_order":   w.date(o.DateOrder),
			"state":        action.String(o.State),
			"amount_total": num(o.Total()),
		})
	}
	var avg float64
	if len(orders) > 0 {
		avg = round2(revenue / float64(len(orders)))
	}
	return Result{Payload: action.Object{
		"period":          action.String(period),
		"total_orders":    num(len(orders)),
		"total_revenue":   num(round2(revenue)),
		"avg_order_value": num(avg),
		"orders_by_state": byState,
		"orders":          list,
	}}, nil
}

func (w *Warehouse) salesOrderDetails(p params, _ ExecOptions) (Result, error) {
	o, err := w.findOrder(p)
	if err != nil {
		return Result{}, err
	}
	var ordered, delivered float64
	for _, l := range o.Lines {
		ordered += l.Quantity
		delivered += l.Delivered
	}
	status := "fully_delivered"
	switch {
	case ordered == 0:
		status = "nothing_to_deliver"
	case delivered == 0:
		status = "not_delivered"
	case delivered < ordered:
		status = "partially_delivered"
	}

	lines := w.linesPayload(o)
	pickings := w.pickingsPayload(o)
	partner := w.partners[o.PartnerID]
	progress := action.Object{"ordered": num(ordered), "delivered": num(delivered)}
	return Result{Payload: action.Object{
		"order_id":                 num(o.ID),
		"order_name":               action.String(o.Name),
		"partner_id":               num(partner.ID),
		"partner":                  action.String(partner.Name),
		"partner_email":            action.String(partner.Email),
		"partner_phone":            action.String(partner.Phone),
		"date_order":               w.dateTime(o.DateOrder),
		"commitment_date":          w.date(o.Commitment),
		"state":                    action.String(o.State),
		"amount_total":             num(o.Total()),
		"delivery_status_computed": action.String(status),
		"delivery_progress":        progress,
		"order_lines":              lines,
		"order_lines_count":        num(len(lines)),
		"pickings":                 pickings,
		"pickings_count":           num(len(pickings)),
		"note":                     action.String(o.Note),
	}}, nil
}

func (w *Warehouse) topCustomers(p params, _ ExecOptions) (Result, error) {
	orders, period, err := w.ordersIn(p, StateSale, StateDone)
	if err != nil {
		return Result{}, err
	}
	type stats struct {
		partner *Partner
		orders  int
		revenue float64
	}
	byPartner := map[int64]*stats{}
	for _, o := range orders {
		s, ok := byPartner[o.PartnerID]
		if !ok {
			s = &stats{partner: w.partners[o.PartnerID]}
			byPartner[o.PartnerID] = s
		}
		s.orders++
		s.revenue += o.Total()
	}
	ranked := make([]*stats, 0, len(byPartner))
	for _, s := range byPartner {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].revenue != ranked[j].revenue {
			return ranked[i].revenue > ranked[j].revenue
		}
		return ranked[i].partner.ID < ranked[j].partner.ID
	})

	total := len(ranked)
	if limit := p.limit(10); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	top := action.Array{}
	for _, s := range ranked {
		top = append(top, action.Object{
			"partner_id":      num(s.partner.ID),
			"partner":         action.String(s.partner.Name),
			"partner_email":   action.String(s.partner.Email),
			"total_orders":    num(s.orders),
			"total_revenue":   num(round2(s.revenue)),
			"avg_order_value": num(round2(s.revenue / float64(s.orders))),
		})
	}
	return Result{Payload: action.Object{
		"period":          action.String(period),
		"total_customers": num(total),
		"top_customers":   top,
	}}, nil
}

func (w *Warehouse) productSalesStats(p params, _ ExecOptions) (Result, error) {
	orders, period, err := w.ordersIn(p, StateSale, StateDone)
	if err != nil {
		return Result{}, err
	}
	type stats struct {
		product *Product
		qty     float64
		revenue float64
		orders  map[int64]bool
	}
	byProduct := map[int64]*stats{}
	for _, o := range orders {
		for _, l := range o.Lines {
			s, ok := byProduct[l.ProductID]
			if !ok {
				s = &stats{product: w.products[l.ProductID], orders: map[int64]bool{}}
				byProduct[l.ProductID] = s
			}
			s.qty += l.Quantity
			s.revenue += l.Subtotal()
			s.orders[o.ID] = true
		}
	}
	ranked := make([]*stats, 0, len(byProduct))
	for _, s := range byProduct {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].qty != ranked[j].qty {
			return ranked[i].qty > ranked[j].qty
		}
		return ranked[i].product.ID < ranked[j].product.ID
	})

	total := len(ranked)
	if limit := p.limit(20); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	top := action.Array{}
	for _, s := range ranked {
		var avg float64
		if s.qty > 0 {
			avg = round2(s.revenue / s.qty)
		}
		top = append(top, action.Object{
			"product_id":     num(s.product.ID),
			"product":        action.String(s.product.Name),
			"product_code":   action.String(s.product.Code),
			"total_qty_sold": num(s.qty),
			"total_revenue":  num(round2(s.revenue)),
			"avg_price":      num(avg),
			"orders_count":   num(len(s.orders)),
		})
	}
	return Result{Payload: action.Object{
		"period":         action.String(period),
		"total_products": num(total),
		"top_products":   top,
	}}, nil
}
