package domain

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

// Record states shared by orders, pickings and moves.
const (
	StateDraft     = "draft"
	StateSent      = "sent"
	StateSale      = "sale"
	StateDone      = "done"
	StateCancel    = "cancel"
	StateConfirmed = "confirmed"
	StateWaiting   = "waiting"
	StateAssigned  = "assigned"
)

// Picking kinds.
const (
	KindOutgoing = "outgoing"
	KindIncoming = "incoming"
)

// Product is a stockable or service item.
type Product struct {
	ID        int64
	Name      string
	Code      string
	Type      string
	ListPrice float64
	OnHand    float64
}

// Partner is a customer, supplier or company.
type Partner struct {
	ID          int64
	Name        string
	Email       string
	Phone       string
	Mobile      string
	Street      string
	City        string
	Zip         string
	CountryCode string
	VAT         string
	IsCompany   bool
	ParentID    int64
}

// OrderLine is one product line of a sales order.
type OrderLine struct {
	ID        int64
	ProductID int64
	Quantity  float64
	PriceUnit float64
	Delivered float64
}

// Subtotal is quantity times unit price.
func (l *OrderLine) Subtotal() float64 { return round2(l.Quantity * l.PriceUnit) }

// SalesOrder is a quotation or confirmed order.
type SalesOrder struct {
	ID         int64
	Name       string
	PartnerID  int64
	State      string
	DateOrder  time.Time
	Commitment time.Time
	Lines      []*OrderLine
	PickingIDs []int64
	Note       string
}

// Total is the untaxed order amount.
func (o *SalesOrder) Total() float64 {
	var t float64
	for _, l := range o.Lines {
		t += l.Subtotal()
	}
	return round2(t)
}

// Move is one product line of a picking.
type Move struct {
	ID        int64
	ProductID int64
	Demand    float64
	Reserved  float64
	Done      float64
	State     string
}

// Picking is an incoming or outgoing transfer.
type Picking struct {
	ID        int64
	Name      string
	Kind      string
	PartnerID int64
	State     string
	Scheduled time.Time
	Origin    string
	OrderID   int64
	Moves     []*Move
}

type handler func(w *Warehouse, p params, o ExecOptions) (Result, error)

// Warehouse is an in-process order and inventory backend implementing the
// whole action catalogue. It is safe for concurrent use.
type Warehouse struct {
	mu  sync.Mutex
	now func() time.Time
	loc *time.Location

	products map[int64]*Product
	partners map[int64]*Partner
	orders   map[int64]*SalesOrder
	pickings map[int64]*Picking

	nextID       int64
	nextOrder    int
	nextOutgoing int
	nextIncoming int
}

var handlers = map[string]handler{
	"get_stock_info":            (*Warehouse).stockInfo,
	"search_partners":           (*Warehouse).searchPartners,
	"search_products":           (*Warehouse).searchProducts,
	"get_pending_orders":        (*Warehouse).pendingOrders,
	"get_delivery_details":      (*Warehouse).deliveryDetails,
	"validate_delivery":         (*Warehouse).validateDelivery,
	"process_delivery_decision": (*Warehouse).deliveryDecision,
	"create_sales_order":        (*Warehouse).createSalesOrder,
	"create_partner":            (*Warehouse).createPartner,
	"create_delivery_order":     (*Warehouse).createDeliveryOrder,
	"update_sales_order":        (*Warehouse).updateSalesOrder,
	"confirm_sales_order":       (*Warehouse).confirmSalesOrder,
	"cancel_sales_order":        (*Warehouse).cancelSalesOrder,
	"update_delivery":           (*Warehouse).updateDelivery,
	"get_sales_overview":        (*Warehouse).salesOverview,
	"get_sales_order_details":   (*Warehouse).salesOrderDetails,
	"get_top_customers":         (*Warehouse).topCustomers,
	"get_products_sales_stats":  (*Warehouse).productSalesStats,
}

// NewWarehouse returns a Warehouse seeded with demo data dated relative to
// now. A nil now selects time.Now; a nil loc selects time.Local.
func NewWarehouse(now func() time.Time, loc *time.Location) *Warehouse {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	w := &Warehouse{
		now:      now,
		loc:      loc,
		products: make(map[int64]*Product),
		partners: make(map[int64]*Partner),
		orders:   make(map[int64]*SalesOrder),
		pickings: make(map[int64]*Picking),
	}
	w.seed()
	return w
}

// Execute runs one catalogue operation.
func (w *Warehouse) Execute(ctx context.Context, inv action.Invocation, opts ...ExecOption) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	h, ok := handlers[inv.Name()]
	if !ok {
		return Result{}, Rejectf(inv.Name(), "unknown operation")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return h(w, params{act: inv.Name(), obj: inv.Params()}, Apply(opts...))
}

// Operations lists the operation names Execute understands.
func Operations() []string {
	names := make([]string, 0, len(handlers))
	for n := range handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ── Seed data ───────────────────────────────────────────────────────────────

func (w *Warehouse) seed() {
	for _, p := range []*Product{
		{Name: "Sedia Ufficio", Code: "OFF-CHAIR", Type: "product", ListPrice: 120, OnHand: 40},
		{Name: "Scrivania Ergonomica", Code: "DESK-ERG", Type: "product", ListPrice: 450, OnHand: 8},
		{Name: "Armadietto Grande", Code: "CAB-L", Type: "product", ListPrice: 320, OnHand: 15},
		{Name: "Lampada da Tavolo", Code: "LAMP-01", Type: "product", ListPrice: 35, OnHand: 0},
		{Name: "Cassettiera", Code: "DRAW-3", Type: "product", ListPrice: 180, OnHand: 12},
		{Name: "Installazione", Code: "SRV-INST", Type: "service", ListPrice: 60},
	} {
		p.ID = w.id()
		w.products[p.ID] = p
	}

	for _, p := range []*Partner{
		{Name: "Gemini Furniture", Email: "info@gemini-furniture.example", Phone: "+39 02 555 0101", IsCompany: true, City: "Milano", CountryCode: "IT"},
		{Name: "Marco Rossi", Email: "marco.rossi@example.com", Phone: "+39 333 100 2000"},
		{Name: "Anna Bianchi", Email: "anna.bianchi@example.com"},
		{Name: "Deco Addict", Email: "orders@decoaddict.example", IsCompany: true, City: "Torino", CountryCode: "IT"},
		{Name: "Forniture Legno Srl", Email: "vendite@legno.example", IsCompany: true},
	} {
		p.ID = w.id()
		w.partners[p.ID] = p
	}

	now := w.now().In(w.loc)
	w.nextOrder = 31
	w.nextOutgoing = 11
	w.nextIncoming = 4

	// Confirmed, fully reserved.
	o := w.newOrder(w.partnerByExactName("Gemini Furniture"), now.AddDate(0, 0, -3))
	w.addLine(o, w.productByCode("CAB-L"), 10, 320)
	w.confirm(o)

	// Quotation.
	o = w.newOrder(w.partnerByExactName("Marco Rossi"), now.AddDate(0, 0, -1))
	w.addLine(o, w.productByCode("OFF-CHAIR"), 4, 120)

	// Delivered long ago.
	o = w.newOrder(w.partnerByExactName("Deco Addict"), now.AddDate(0, 0, -40))
	w.addLine(o, w.productByCode("DESK-ERG"), 5, 450)
	w.confirm(o)
	for _, pid := range o.PickingIDs {
		w.ship(w.pickings[pid], func(m *Move) float64 { return m.Demand })
	}

	// Confirmed, lamps out of stock.
	o = w.newOrder(w.partnerByExactName("Gemini Furniture"), now.AddDate(0, 0, -2))
	w.addLine(o, w.productByCode("LAMP-01"), 3, 35)
	w.addLine(o, w.productByCode("OFF-CHAIR"), 2, 120)
	w.confirm(o)

	in := w.newPicking(KindIncoming, w.partnerByExactName("Forniture Legno Srl"), now.AddDate(0, 0, 2), "")
	w.addMove(in, w.productByCode("LAMP-01"), 20)
	w.reserve(in)
}

func (w *Warehouse) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *Warehouse) partnerByExactName(name string) *Partner {
	for _, p := range w.partners {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func (w *Warehouse) productByCode(code string) *Product {
	for _, p := range w.products {
		if p.Code == code {
			return p
		}
	}
	return nil
}

// ── Record helpers ──────────────────────────────────────────────────────────

func (w *Warehouse) newOrder(partner *Partner, at time.Time) *SalesOrder {
	o := &SalesOrder{
		ID:        w.id(),
		Name:      fmt.Sprintf("S%05d", w.nextOrder),
		PartnerID: partner.ID,
		State:     StateDraft,
		DateOrder: at,
	}
	w.nextOrder++
	w.orders[o.ID] = o
	return o
}

func (w *Warehouse) addLine(o *SalesOrder, p *Product, qty, price float64) *OrderLine {
	l := &OrderLine{ID: w.id(), ProductID: p.ID, Quantity: qty, PriceUnit: price}
	o.Lines = append(o.Lines, l)
	return l
}

func (w *Warehouse) newPicking(kind string, partner *Partner, scheduled time.Time, origin string) *Picking {
	var name string
	if kind == KindIncoming {
		name = fmt.Sprintf("WH/IN/%05d", w.nextIncoming)
		w.nextIncoming++
	} else {
		name = fmt.Sprintf("WH/OUT/%05d", w.nextOutgoing)
		w.nextOutgoing++
	}
	pk := &Picking{
		ID:        w.id(),
		Name:      name,
		Kind:      kind,
		PartnerID: partner.ID,
		State:     StateConfirmed,
		Scheduled: scheduled,
		Origin:    origin,
	}
	w.pickings[pk.ID] = pk
	return pk
}

func (w *Warehouse) addMove(pk *Picking, p *Product, demand float64) *Move {
	m := &Move{ID: w.id(), ProductID: p.ID, Demand: demand, State: StateConfirmed}
	pk.Moves = append(pk.Moves, m)
	return m
}

// confirm turns a quotation into an order and creates its delivery.
func (w *Warehouse) confirm(o *SalesOrder) *Picking {
	o.State = StateSale
	scheduled := o.Commitment
	if scheduled.IsZero() {
		scheduled = o.DateOrder
	}
	pk := w.newPicking(KindOutgoing, w.partners[o.PartnerID], scheduled, o.Name)
	pk.OrderID = o.ID
	for _, l := range o.Lines {
		p := w.products[l.ProductID]
		if p.Type == "service" {
			continue
		}
		w.addMove(pk, p, l.Quantity-l.Delivered)
	}
	w.reserve(pk)
	o.PickingIDs = append(o.PickingIDs, pk.ID)
	return pk
}

// free is the on-hand quantity of product not reserved by open outgoing
// moves other than skip.
func (w *Warehouse) free(productID int64, skip *Move) float64 {
	qty := w.products[productID].OnHand
	for _, pk := range w.pickings {
		if pk.Kind != KindOutgoing || isClosed(pk.State) {
			continue
		}
		for _, m := range pk.Moves {
			if m != skip && m.ProductID == productID {
				qty -= m.Reserved
			}
		}
	}
	return math.Max(qty, 0)
}

// reserve assigns available stock to every move of pk and updates states.
// Incoming moves are always available.
func (w *Warehouse) reserve(pk *Picking) {
	all := true
	for _, m := range pk.Moves {
		if pk.Kind == KindIncoming {
			m.Reserved = m.Demand
		} else {
			m.Reserved = math.Min(m.Demand, w.free(m.ProductID, m))
		}
		if m.Reserved < m.Demand {
			m.State = StateConfirmed
			all = false
		} else {
			m.State = StateAssigned
		}
	}
	if all {
		pk.State = StateAssigned
	} else {
		pk.State = StateConfirmed
	}
}

// ship moves qty(m) of every move and marks pk done.
func (w *Warehouse) ship(pk *Picking, qty func(*Move) float64) {
	for _, m := range pk.Moves {
		q := qty(m)
		p := w.products[m.ProductID]
		if pk.Kind == KindIncoming {
			p.OnHand += q
		} else {
			p.OnHand = math.Max(p.OnHand-q, 0)
		}
		m.Done = q
		m.Reserved = 0
		m.State = StateDone
		if o, ok := w.orders[pk.OrderID]; ok {
			for _, l := range o.Lines {
				if l.ProductID == m.ProductID {
					l.Delivered += q
					break
				}
			}
		}
	}
	pk.State = StateDone
}

func isClosed(state string) bool { return state == StateDone || state == StateCancel }

func (w *Warehouse) partnerName(id int64) string {
	if p, ok := w.partners[id]; ok {
		return p.Name
	}
	return ""
}

func (w *Warehouse) date(t time.Time) action.Value {
	if t.IsZero() {
		return action.String("")
	}
	return action.String(t.In(w.loc).Format("2006-01-02"))
}

func (w *Warehouse) dateTime(t time.Time) action.Value {
	if t.IsZero() {
		return action.String("")
	}
	return action.String(t.In(w.loc).Format("2006-01-02 15:04"))
}

// ── Parameter access ────────────────────────────────────────────────────────

type params struct {
	act string
	obj action.Object
}

func (p params) str(key string) string {
	if v, ok := p.obj[key]; ok {
		return strings.TrimSpace(action.Text(v))
	}
	return ""
}

func (p params) id(key string) (int64, bool, error) {
	v, ok := p.obj[key]
	if !ok {
		return 0, false, nil
	}
	n, err := action.AsInt(v)
	if err != nil {
		return 0, true, Rejectf(p.act, "%s must be a number", key)
	}
	return n, true, nil
}

func (p params) limit(def int) int {
	if v, ok := p.obj["limit"]; ok {
		if n, err := action.AsInt(v); err == nil && n > 0 {
			return int(n)
		}
	}
	return def
}

func (p params) flag(key string, def bool) bool {
	if v, ok := p.obj[key]; ok {
		return action.Truthy(v)
	}
	return def
}

// objects returns the elements of an array parameter, all of which must be
// objects.
func (p params) objects(key string) ([]action.Object, error) {
	v, ok := p.obj[key]
	if !ok {
		return nil, nil
	}
	arr, ok := v.(action.Array)
	if !ok {
		return nil, Rejectf(p.act, "%s must be a list", key)
	}
	out := make([]action.Object, 0, len(arr))
	for i, e := range arr {
		o, ok := e.(action.Object)
		if !ok {
			return nil, Rejectf(p.act, "%s[%d] must be an object", key, i)
		}
		out = append(out, o)
	}
	return out, nil
}

func objInt(o action.Object, key string) (int64, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	n, err := action.AsInt(v)
	return n, err == nil
}

func objFloat(o action.Object, key string) (float64, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	return action.AsFloat(v)
}

// ── Lookups ─────────────────────────────────────────────────────────────────

func (w *Warehouse) findOrder(p params) (*SalesOrder, error) {
	id, hasID, err := p.id("order_id")
	if err != nil {
		return nil, err
	}
	if hasID {
		if o, ok := w.orders[id]; ok {
			return o, nil
		}
		return nil, Rejectf(p.act, "order %d not found", id)
	}
	name := p.str("order_name")
	if name == "" {
		return nil, Rejectf(p.act, "pass order_name or order_id")
	}
	for _, o := range w.orders {
		if strings.EqualFold(o.Name, name) {
			return o, nil
		}
	}
	return nil, Rejectf(p.act, "order %q not found", name)
}

func (w *Warehouse) findPicking(p params) (*Picking, error) {
	id, hasID, err := p.id("picking_id")
	if err != nil {
		return nil, err
	}
	if hasID {
		if pk, ok := w.pickings[id]; ok {
			return pk, nil
		}
		return nil, Rejectf(p.act, "delivery %d not found", id)
	}
	name := p.str("picking_name")
	if name == "" {
		return nil, Rejectf(p.act, "pass picking_name or picking_id")
	}
	for _, pk := range w.pickings {
		if strings.EqualFold(pk.Name, name) {
			return pk, nil
		}
	}
	return nil, Rejectf(p.act, "delivery %q not found", name)
}

// findPartner prefers a case-insensitive exact match, then the first
// partner whose name contains name.
func (w *Warehouse) findPartner(name string) *Partner {
	if p := w.partnerByExactName(name); p != nil {
		return p
	}
	needle := strings.ToLower(name)
	for _, p := range w.sortedPartners() {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			return p
		}
	}
	return nil
}

func (w *Warehouse) findProductByName(name string) *Product {
	needle := strings.ToLower(strings.TrimSpace(name))
	var partial *Product
	for _, p := range w.sortedProducts() {
		lower := strings.ToLower(p.Name)
		if lower == needle {
			return p
		}
		if partial == nil && strings.Contains(lower, needle) {
			partial = p
		}
	}
	return partial
}

func (w *Warehouse) sortedProducts() []*Product {
	out := make([]*Product, 0, len(w.products))
	for _, p := range w.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Warehouse) sortedPartners() []*Partner {
	out := make([]*Partner, 0, len(w.partners))
	for _, p := range w.partners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Warehouse) sortedOrders() []*SalesOrder {
	out := make([]*SalesOrder, 0, len(w.orders))
	for _, o := range w.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Warehouse) sortedPickings() []*Picking {
	out := make([]*Picking, 0, len(w.pickings))
	for _, pk := range w.pickings {
		out = append(out, pk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func num[T int | int64 | float64](n T) action.Number { return action.Number(float64(n)) }

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func euro(f float64) string { return fmt.Sprintf("€%.2f", f) }
