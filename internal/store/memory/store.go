// Package memory holds in-process implementations of the core store
// interfaces, used by unit tests and the server's --memory mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/core"
)

type insumo struct {
	name  string
	unit  core.Unit
	qty   decimal.Decimal
	min   decimal.Decimal
	stock bool
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	menu       map[int]core.MenuPlanEntry
	recipes    map[int]core.Recipe
	insumos    map[int]*insumo
	suppliers  map[int]core.Supplier
	ratings    []core.SupplierRating
	teachers   map[int]core.Teacher
	params     map[string]string
	orders     map[int]*core.PurchaseOrder
	tokens     map[string]*core.ConfirmationToken
	attendance []*core.AttendanceRecord
	deliveries map[string]*core.Delivery
	forecasts  []core.InsumoForecast
	forecastAt time.Time

	nextMenuID       int
	nextOrderID      int
	nextLineID       int
	nextAttendanceID int
}

func New() *Store {
	return &Store{
		menu:       make(map[int]core.MenuPlanEntry),
		recipes:    make(map[int]core.Recipe),
		insumos:    make(map[int]*insumo),
		suppliers:  make(map[int]core.Supplier),
		teachers:   make(map[int]core.Teacher),
		params:     make(map[string]string),
		orders:     make(map[int]*core.PurchaseOrder),
		tokens:     make(map[string]*core.ConfirmationToken),
		deliveries: make(map[string]*core.Delivery),
	}
}

// ── Seeding ─────────────────────────────────────────────────────────────────

// AddInsumo registers an insumo in the catalog with its canonical unit.
func (s *Store) AddInsumo(id int, name string, unit core.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insumos[id] = &insumo{name: name, unit: unit, qty: decimal.Zero, min: decimal.Zero}
}

// SetStock sets an insumo's current quantity and minimum threshold.
func (s *Store) SetStock(id int, qty, min decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.insumos[id]
	if !ok {
		in = &insumo{unit: core.UnitPiece}
		s.insumos[id] = in
	}
	in.qty, in.min, in.stock = qty, min, true
}

func (s *Store) AddRecipe(r core.Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[r.ID] = r
}

// AddMenuEntry stores e, assigning an ID when e.ID is zero.
func (s *Store) AddMenuEntry(e core.MenuPlanEntry) core.MenuPlanEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		s.nextMenuID++
		e.ID = s.nextMenuID
	}
	s.menu[e.ID] = e
	return e
}

func (s *Store) AddSupplier(sup core.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = sup
}

func (s *Store) AddRating(r core.SupplierRating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = append(s.ratings, r)
}

func (s *Store) AddTeacher(t core.Teacher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teachers[t.ID] = t
}

func (s *Store) SetParameter(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[key] = value
}

// ── Menu, recipes, catalog ──────────────────────────────────────────────────

func (s *Store) ListMenuPlan(_ context.Context, start, end time.Time) ([]core.MenuPlanEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = core.CalendarDate(start), core.CalendarDate(end)
	var out []core.MenuPlanEntry
	for _, e := range s.menu {
		d := core.CalendarDate(e.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) FinalizeMenuPlan(_ context.Context, through time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	through = core.CalendarDate(through)
	n := 0
	for id, e := range s.menu {
		if e.Finalized || core.CalendarDate(e.Date).After(through) {
			continue
		}
		e.Finalized = true
		s.menu[id] = e
		n++
	}
	return n, nil
}

// MenuEntry returns a stored entry, for assertions.
func (s *Store) MenuEntry(id int) (core.MenuPlanEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.menu[id]
	return e, ok
}

func (s *Store) GetRecipes(_ context.Context, ids []int) (map[int]core.Recipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]core.Recipe, len(ids))
	for _, id := range ids {
		if r, ok := s.recipes[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *Store) InsumoUnits(_ context.Context) (map[int]core.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]core.Unit, len(s.insumos))
	for id, in := range s.insumos {
		out[id] = in.unit
	}
	return out, nil
}

// ── Stock ───────────────────────────────────────────────────────────────────

func (s *Store) StockSnapshot(_ context.Context) (map[int]core.InsumoStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]core.InsumoStock, len(s.insumos))
	for id, in := range s.insumos {
		if !in.stock {
			continue
		}
		out[id] = core.InsumoStock{InsumoID: id, Name: in.name, CurrentQuantity: in.qty, MinimumThreshold: in.min, Unit: in.unit}
	}
	return out, nil
}

func (s *Store) IncreaseStock(_ context.Context, insumoID int, qty decimal.Decimal, unit core.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.insumos[insumoID]
	if !ok {
		return &core.NotFoundError{Entity: "insumo", ID: insumoID}
	}
	converted, err := core.ConvertQuantity(qty, unit, in.unit)
	if err != nil {
		return err
	}
	in.qty = in.qty.Add(converted)
	in.stock = true
	return nil
}

// ── Suppliers, teachers, parameters ─────────────────────────────────────────

func (s *Store) GetSupplier(_ context.Context, id int) (*core.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "supplier", ID: id}
	}
	return &sup, nil
}

func (s *Store) RatingsForInsumos(_ context.Context, insumoIDs []int) (map[int][]core.SupplierRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int]bool, len(insumoIDs))
	for _, id := range insumoIDs {
		want[id] = true
	}
	out := make(map[int][]core.SupplierRating)
	for _, r := range s.ratings {
		if want[r.InsumoID] {
			out[r.InsumoID] = append(out[r.InsumoID], r)
		}
	}
	return out, nil
}

func (s *Store) GetTeacher(_ context.Context, id int) (*core.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "teacher", ID: id}
	}
	return &t, nil
}

func (s *Store) GetParameter(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.params[key]
	return v, ok, nil
}

// ── Orders and tokens ───────────────────────────────────────────────────────

func (s *Store) CreateOrders(_ context.Context, orders []*core.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		if len(o.Lines) == 0 {
			return &core.ValidationError{Field: "lines", Message: "purchase order must have at least one line"}
		}
		if _, ok := s.suppliers[o.SupplierID]; !ok {
			return &core.NotFoundError{Entity: "supplier", ID: o.SupplierID}
		}
	}
	for _, o := range orders {
		s.nextOrderID++
		o.ID = s.nextOrderID
		o.Version = 1
		o.SupplierName = s.suppliers[o.SupplierID].Name
		for i := range o.Lines {
			s.nextLineID++
			o.Lines[i].ID = s.nextLineID
			o.Lines[i].OrderID = o.ID
			if in, ok := s.insumos[o.Lines[i].InsumoID]; ok && o.Lines[i].InsumoName == "" {
				o.Lines[i].InsumoName = in.name
			}
		}
		s.orders[o.ID] = o.Clone()
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id int) (*core.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "purchase order", ID: id}
	}
	return o.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, f core.OrderFilter) ([]core.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PurchaseOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if f.State != "" && o.State != f.State {
			continue
		}
		if f.SupplierID != 0 && o.SupplierID != f.SupplierID {
			continue
		}
		if f.Origin != "" && o.Origin != f.Origin {
			continue
		}
		out = append(out, *o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) SaveTransition(_ context.Context, t core.OrderTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[t.Order.ID]
	if !ok {
		return &core.NotFoundError{Entity: "purchase order", ID: t.Order.ID}
	}
	if cur.Version != t.ExpectedVersion {
		return core.ErrVersionConflict
	}
	if t.ConsumeTokenID != "" {
		tok, ok := s.tokens[t.ConsumeTokenID]
		if !ok {
			return &core.TokenInvalidError{Reason: "unknown token"}
		}
		if tok.UsedAt != nil {
			return &core.TokenReusedError{UsedAt: *tok.UsedAt}
		}
	}

	if t.IssueToken != nil {
		tok := *t.IssueToken
		s.tokens[tok.ID] = &tok
	}
	if t.ConsumeTokenID != "" {
		used := t.ConsumedAt
		s.tokens[t.ConsumeTokenID].UsedAt = &used
	}
	next := t.Order.Clone()
	next.Version = t.ExpectedVersion + 1
	s.orders[next.ID] = next
	return nil
}

func (s *Store) SaveToken(_ context.Context, t *core.ConfirmationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	c.Token = ""
	s.tokens[t.ID] = &c
	return nil
}

func (s *Store) GetToken(_ context.Context, id string) (*core.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "confirmation token", ID: id}
	}
	c := *t
	return &c, nil
}

// ── Attendance, forecasts ───────────────────────────────────────────────────

func (s *Store) SaveAttendance(_ context.Context, rec *core.AttendanceRecord, consumeTokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[consumeTokenID]
	if !ok {
		return &core.TokenInvalidError{Reason: "unknown token"}
	}
	if tok.UsedAt != nil {
		return &core.TokenReusedError{UsedAt: *tok.UsedAt}
	}
	used := rec.RecordedAt
	tok.UsedAt = &used
	s.nextAttendanceID++
	rec.ID = s.nextAttendanceID
	c := *rec
	s.attendance = append(s.attendance, &c)
	return nil
}

// Attendance returns every stored attendance record.
func (s *Store) Attendance() []core.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AttendanceRecord, len(s.attendance))
	for i, r := range s.attendance {
		out[i] = *r
	}
	return out
}

func (s *Store) SaveForecast(_ context.Context, generatedAt time.Time, forecasts []core.InsumoForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecastAt = generatedAt
	s.forecasts = append([]core.InsumoForecast(nil), forecasts...)
	return nil
}

// LatestForecast returns the last saved forecast and when it was generated.
func (s *Store) LatestForecast() ([]core.InsumoForecast, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.InsumoForecast(nil), s.forecasts...), s.forecastAt
}

// ── Notification deliveries ─────────────────────────────────────────────────

func (s *Store) CreateDelivery(_ context.Context, d *core.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.deliveries[d.ID] = &c
	return nil
}

func (s *Store) UpdateDelivery(_ context.Context, d *core.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return &core.NotFoundError{Entity: "delivery", ID: d.ID}
	}
	c := *d
	s.deliveries[d.ID] = &c
	return nil
}

func (s *Store) GetDelivery(_ context.Context, id string) (*core.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "delivery", ID: id}
	}
	c := *d
	return &c, nil
}

func (s *Store) DueDeliveries(_ context.Context, now time.Time, limit int) ([]core.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Delivery
	for _, d := range s.deliveries {
		if d.Status != core.DeliveryPending || d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDeliveries(_ context.Context, status core.DeliveryStatus) ([]core.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Delivery
	for _, d := range s.deliveries {
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
