package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MenuPlanStore reads the menu plan and finalizes planning periods.
type MenuPlanStore interface {
	// ListMenuPlan returns entries dated within [start, end], both inclusive.
	ListMenuPlan(ctx context.Context, start, end time.Time) ([]MenuPlanEntry, error)
	// FinalizeMenuPlan marks every entry dated on or before through as finalized
	// and returns how many entries changed.
	FinalizeMenuPlan(ctx context.Context, through time.Time) (int, error)
}

// RecipeReader looks up recipes with their ingredients.
type RecipeReader interface {
	// GetRecipes returns the recipes found among ids; missing IDs are absent from the map.
	GetRecipes(ctx context.Context, ids []int) (map[int]Recipe, error)
}

// StockStore reads the inventory and applies received goods.
type StockStore interface {
	// StockSnapshot reads every insumo's stock in a single point-in-time read.
	StockSnapshot(ctx context.Context) (map[int]InsumoStock, error)
	// IncreaseStock adds qty (expressed in unit) to an insumo's current quantity.
	IncreaseStock(ctx context.Context, insumoID int, qty decimal.Decimal, unit Unit) error
}

// SupplierStore reads suppliers and their per-insumo ratings.
type SupplierStore interface {
	GetSupplier(ctx context.Context, id int) (*Supplier, error)
	// RatingsForInsumos returns every rating row for the given insumos, keyed by insumo.
	RatingsForInsumos(ctx context.Context, insumoIDs []int) (map[int][]SupplierRating, error)
}

// OrderTransition is one state change persisted atomically: the order header and
// lines, an optional token to issue and an optional token to consume.
type OrderTransition struct {
	Order           *PurchaseOrder
	ExpectedVersion int
	IssueToken      *ConfirmationToken
	ConsumeTokenID  string
	ConsumedAt      time.Time
}

// OrderStore persists purchase orders. Implementations must reject a
// SaveTransition whose ExpectedVersion is stale with ErrVersionConflict, and a
// ConsumeTokenID that is already used with TokenReusedError.
type OrderStore interface {
	// CreateOrders inserts every order with its lines as one atomic unit and
	// assigns IDs, line IDs and Version.
	CreateOrders(ctx context.Context, orders []*PurchaseOrder) error
	GetOrder(ctx context.Context, id int) (*PurchaseOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error)
	SaveTransition(ctx context.Context, t OrderTransition) error
}

// TokenStore persists confirmation tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, t *ConfirmationToken) error
	GetToken(ctx context.Context, id string) (*ConfirmationToken, error)
}

// AttendanceStore persists attendance together with the consumption of its token.
type AttendanceStore interface {
	SaveAttendance(ctx context.Context, rec *AttendanceRecord, consumeTokenID string) error
}

// TeacherDirectory looks up teachers for attendance notifications.
type TeacherDirectory interface {
	GetTeacher(ctx context.Context, id int) (*Teacher, error)
}

// ForecastStore keeps the latest insumo forecast produced by the refresh job.
type ForecastStore interface {
	SaveForecast(ctx context.Context, generatedAt time.Time, forecasts []InsumoForecast) error
}

// ParameterStore is the key-value configuration store (parametros).
type ParameterStore interface {
	GetParameter(ctx context.Context, key string) (value string, ok bool, err error)
}

// InsumoCatalog exposes each insumo's canonical unit.
type InsumoCatalog interface {
	InsumoUnits(ctx context.Context) (map[int]Unit, error)
}
