package core_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/core"
	"cafeteria/internal/logger"
	"cafeteria/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notifications instead of sending them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg core.Notification) (*core.Delivery, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.err != nil {
		return &core.Delivery{Notification: msg, Status: core.DeliveryFailed, Attempts: 1, LastError: n.err.Error()}, n.err
	}
	return &core.Delivery{Notification: msg, Status: core.DeliveryDelivered, Attempts: 1}, nil
}

func (n *recordingNotifier) Sent() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ReceiptEvent
	fail   bool
}

func (p *recordingPublisher) PublishReceipt(_ context.Context, ev core.ReceiptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("inventory unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

const (
	insumoRice    = 1
	insumoChicken = 2
	insumoOil     = 3

	supplierSur   = 1
	supplierNorte = 2

	recipeArrozConPollo = 1
	teacherID           = 7
)

var (
	// start is the Friday before the scenario week.
	start  = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store       *memory.Store
	clock       *fakeClock
	notifier    *recordingNotifier
	receipts    *recordingPublisher
	tokens      *core.TokenService
	signer      *core.TokenSigner
	lifecycle   *core.OrderLifecycle
	procurement *core.ProcurementService
	attendance  *core.AttendanceService
}

// newFixture seeds one menu entry on 2024-03-04: Arroz con pollo × 100 portions
// at 0.2 kg rice per portion, with 10 kg of rice in stock and Distribuidora Sur
// as the only rated rice supplier.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.AddInsumo(insumoRice, "Arroz", core.UnitKilogram)
	st.AddInsumo(insumoChicken, "Pollo", core.UnitKilogram)
	st.AddInsumo(insumoOil, "Aceite", core.UnitLiter)
	st.SetStock(insumoRice, dec("10"), dec("5"))
	st.AddRecipe(core.Recipe{ID: recipeArrozConPollo, Name: "Arroz con pollo", Ingredients: []core.Ingredient{
		{InsumoID: insumoRice, QuantityPerPortion: dec("0.2"), Unit: core.UnitKilogram},
	}})
	st.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 1, RecipeID: recipeArrozConPollo, EstimatedPortions: 100})
	st.AddSupplier(core.Supplier{ID: supplierSur, Name: "Distribuidora Sur", Email: "ventas@sur.example"})
	st.AddSupplier(core.Supplier{ID: supplierNorte, Name: "Avícola Norte", Email: "pedidos@norte.example"})
	st.AddRating(core.SupplierRating{SupplierID: supplierSur, InsumoID: insumoRice, Tier: core.RatingGood})
	st.AddTeacher(core.Teacher{ID: teacherID, Name: "Docente Uno", Email: "docente@escuela.example"})

	f := &fixture{
		store:    st,
		clock:    newFakeClock(start),
		notifier: &recordingNotifier{},
		receipts: &recordingPublisher{},
		signer:   core.NewTokenSigner("test-secret"),
	}
	log := logger.Discard()
	f.tokens = core.NewTokenService(st, f.signer, f.clock)
	f.lifecycle = core.NewOrderLifecycle(core.LifecycleDeps{
		Orders:        st,
		Suppliers:     st,
		Catalog:       st,
		Tokens:        f.tokens,
		Notifier:      f.notifier,
		Receipts:      f.receipts,
		Params:        st,
		Clock:         f.clock,
		Logger:        log,
		PublicBaseURL: "https://comedor.example",
	})
	f.procurement = core.NewProcurementService(core.ProcurementDeps{
		Menu:      st,
		Recipes:   st,
		Catalog:   st,
		Stock:     st,
		Suppliers: st,
		Orders:    st,
		Forecasts: st,
		Params:    st,
		Lifecycle: f.lifecycle,
		Clock:     f.clock,
		Logger:    log,
	})
	f.attendance = core.NewAttendanceService(f.tokens, st, st, f.notifier, f.clock, log, "https://comedor.example")
	return f
}

// pendingOrder generates the scenario order and returns it.
func (f *fixture) pendingOrder(t *testing.T) core.PurchaseOrder {
	t.Helper()
	res, err := f.procurement.GenerateOrders(context.Background(), monday, monday, "cocina@escuela", core.OriginManual)
	if err != nil {
		t.Fatalf("generate orders: %v", err)
	}
	if len(res.Orders) != 1 {
		t.Fatalf("want 1 order, got %d", len(res.Orders))
	}
	return res.Orders[0]
}

// approvedOrder approves the scenario order and returns it with the raw supplier token.
func (f *fixture) approvedOrder(t *testing.T) (*core.PurchaseOrder, string) {
	t.Helper()
	o := f.pendingOrder(t)
	res, err := f.lifecycle.Approve(context.Background(), o.ID, "jefa@escuela")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	sent := f.notifier.Sent()
	if len(sent) == 0 {
		t.Fatalf("no supplier notification sent")
	}
	return res.Order, tokenFromLink(t, sent[len(sent)-1].Link)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("link %q has no token", link)
	}
	return tok
}
