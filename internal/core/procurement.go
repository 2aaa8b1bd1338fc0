package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/metrics"
)

// ProcurementDeps wires a ProcurementService.
type ProcurementDeps struct {
	Menu      MenuPlanStore
	Recipes   RecipeReader
	Catalog   InsumoCatalog
	Stock     StockStore
	Suppliers SupplierStore
	Orders    OrderStore
	Forecasts ForecastStore
	Params    ParameterStore
	Lifecycle *OrderLifecycle
	Clock     Clock
	Location  *time.Location
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// ProcurementPlan is the full computation for a period without any writes.
type ProcurementPlan struct {
	Start        time.Time            `json:"start"`
	End          time.Time            `json:"end"`
	Requirements []Requirement        `json:"requirements"`
	Skipped      []SkippedEntry       `json:"skipped,omitempty"`
	Deficits     []Deficit            `json:"deficits"`
	Assignments  []SupplierAssignment `json:"assignments"`
	Unresolved   []Deficit            `json:"unresolved,omitempty"`
	Orders       []*PurchaseOrder     `json:"orders"`
}

// GenerationResult is a plan plus the orders it persisted.
type GenerationResult struct {
	Plan      *ProcurementPlan `json:"plan"`
	Orders    []PurchaseOrder  `json:"orders"`
	Approvals []ApprovalResult `json:"approvals,omitempty"`
}

// ProcurementService chains aggregation, deficit calculation, supplier
// selection and order building, and exposes the scheduled jobs built on them.
type ProcurementService struct {
	aggregator *RequirementAggregator
	selector   *SupplierSelector
	builder    *OrderBuilder
	menu       MenuPlanStore
	stock      StockStore
	forecasts  ForecastStore
	params     ParameterStore
	lifecycle  *OrderLifecycle
	clock      Clock
	loc        *time.Location
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func NewProcurementService(d ProcurementDeps) *ProcurementService {
	logger := orDefault(d.Logger)
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ProcurementService{
		aggregator: NewRequirementAggregator(d.Menu, d.Recipes, d.Catalog, logger),
		selector:   NewSupplierSelector(d.Suppliers, logger),
		builder:    NewOrderBuilder(d.Orders, d.Clock),
		menu:       d.Menu,
		stock:      d.Stock,
		forecasts:  d.Forecasts,
		params:     d.Params,
		lifecycle:  d.Lifecycle,
		clock:      d.Clock,
		loc:        loc,
		metrics:    d.Metrics,
		logger:     logger,
	}
}

// Preview computes what GenerateOrders would create for [start, end].
func (s *ProcurementService) Preview(ctx context.Context, start, end time.Time) (*ProcurementPlan, error) {
	req, err := s.aggregator.Aggregate(ctx, start, end)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.stock.StockSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stock snapshot: %w", err)
	}
	deficits, err := ComputeDeficits(req.Requirements, snapshot)
	if err != nil {
		return nil, err
	}
	selection, err := s.selector.Select(ctx, deficits)
	if err != nil {
		return nil, err
	}
	return &ProcurementPlan{
		Start:        req.Start,
		End:          req.End,
		Requirements: req.Sorted(),
		Skipped:      req.Skipped,
		Deficits:     deficits,
		Assignments:  selection.Assignments,
		Unresolved:   selection.Unresolved,
		Orders:       GroupBySupplier(selection.Assignments),
	}, nil
}

// GenerateOrders creates one PENDING order per supplier covering the deficits
// of [start, end]. Automatic runs approve the new orders when
// PEDIDO_AUTOMATICO_APROBAR is enabled; an approval failure is logged and the
// order stays PENDING.
func (s *ProcurementService) GenerateOrders(ctx context.Context, start, end time.Time, createdBy string, origin OrderOrigin) (*GenerationResult, error) {
	plan, err := s.Preview(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.metrics.Unresolved(len(plan.Unresolved))

	orders, err := s.builder.Build(ctx, plan.Assignments, createdBy, origin)
	if err != nil {
		return nil, err
	}
	s.metrics.OrderCreated(string(origin), len(orders))
	s.logger.Info("purchase orders generated",
		"start", plan.Start.Format(DateLayout), "end", plan.End.Format(DateLayout),
		"orders", len(orders), "deficits", len(plan.Deficits), "unresolved", len(plan.Unresolved))

	result := &GenerationResult{Plan: plan, Orders: orders}
	if origin != OriginAutomatic || s.lifecycle == nil || len(orders) == 0 {
		return result, nil
	}
	auto, err := ParamBool(ctx, s.params, ParamAutoApprove, false)
	if err != nil {
		return nil, err
	}
	if !auto {
		return result, nil
	}
	for i := range orders {
		res, err := s.lifecycle.Approve(ctx, orders[i].ID, createdBy)
		if err != nil {
			s.logger.Error("auto-approval failed", "order_id", orders[i].ID, "error", err)
			continue
		}
		orders[i] = *res.Order
		result.Approvals = append(result.Approvals, *res)
	}
	return result, nil
}

// horizon returns [tomorrow, tomorrow+days-1] in the service's location.
func (s *ProcurementService) horizon(ctx context.Context) (time.Time, time.Time, error) {
	days, err := ParamInt(ctx, s.params, ParamHorizonDays, 7)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if days < 1 {
		return time.Time{}, time.Time{}, &ValidationError{Field: ParamHorizonDays, Message: "must be at least 1"}
	}
	tomorrow := s.tomorrow()
	return tomorrow, tomorrow.AddDate(0, 0, days-1), nil
}

func (s *ProcurementService) tomorrow() time.Time {
	return CalendarDate(s.clock.Now().In(s.loc)).AddDate(0, 0, 1)
}

// RefreshInsumos recomputes the forecast of every stocked or required insumo
// over the upcoming horizon and stores it.
func (s *ProcurementService) RefreshInsumos(ctx context.Context) ([]InsumoForecast, error) {
	start, end, err := s.horizon(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.aggregator.Aggregate(ctx, start, end)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.stock.StockSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stock snapshot: %w", err)
	}

	ids := make(map[int]bool, len(snapshot)+len(req.Requirements))
	for id := range snapshot {
		ids[id] = true
	}
	for id := range req.Requirements {
		ids[id] = true
	}

	forecasts := make([]InsumoForecast, 0, len(ids))
	for id := range ids {
		st, hasStock := snapshot[id]
		r, hasReq := req.Requirements[id]
		f := InsumoForecast{InsumoID: id, Name: st.Name, Required: decimal.Zero, CurrentStock: decimal.Zero, Deficit: decimal.Zero}
		switch {
		case hasReq:
			f.Unit = r.Unit
			f.Required = r.Quantity
		case hasStock:
			f.Unit = st.Unit
		}
		if hasStock {
			qty, err := ConvertQuantity(st.CurrentQuantity, st.Unit, f.Unit)
			if err != nil {
				return nil, fmt.Errorf("stock of insumo %d: %w", id, err)
			}
			f.CurrentStock = qty
			f.BelowThreshold = st.BelowThreshold()
		}
		available := f.CurrentStock
		if available.IsNegative() {
			available = decimal.Zero
		}
		if short := f.Required.Sub(available); short.IsPositive() {
			f.Deficit = short
		}
		forecasts = append(forecasts, f)
	}
	sort.Slice(forecasts, func(i, j int) bool { return forecasts[i].InsumoID < forecasts[j].InsumoID })

	if err := s.forecasts.SaveForecast(ctx, s.clock.Now(), forecasts); err != nil {
		return nil, fmt.Errorf("save insumo forecast: %w", err)
	}
	return forecasts, nil
}

// FinalizePlan freezes every menu entry dated up to and including tomorrow.
func (s *ProcurementService) FinalizePlan(ctx context.Context) (int, error) {
	through := s.tomorrow()
	n, err := s.menu.FinalizeMenuPlan(ctx, through)
	if err != nil {
		return 0, fmt.Errorf("finalize menu plan through %s: %w", through.Format(DateLayout), err)
	}
	return n, nil
}

// RunInsumoRefresh is the body of the weekly insumo refresh job.
func (s *ProcurementService) RunInsumoRefresh(ctx context.Context) (string, error) {
	forecasts, err := s.RefreshInsumos(ctx)
	if err != nil {
		return "", err
	}
	short, low := 0, 0
	for _, f := range forecasts {
		if f.Deficit.IsPositive() {
			short++
		}
		if f.BelowThreshold {
			low++
		}
	}
	return fmt.Sprintf("%d insumos evaluados, %d con déficit, %d bajo el mínimo", len(forecasts), short, low), nil
}

// RunAutoOrder is the body of the weekly automatic order job.
func (s *ProcurementService) RunAutoOrder(ctx context.Context) (string, error) {
	start, end, err := s.horizon(ctx)
	if err != nil {
		return "", err
	}
	res, err := s.GenerateOrders(ctx, start, end, SystemActor, OriginAutomatic)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d pedidos generados para %s a %s, %d aprobados, %d déficits sin proveedor",
		len(res.Orders), start.Format(DateLayout), end.Format(DateLayout), len(res.Approvals), len(res.Plan.Unresolved)), nil
}

// RunPlanFinalization is the body of the daily plan finalization job.
func (s *ProcurementService) RunPlanFinalization(ctx context.Context) (string, error) {
	n, err := s.FinalizePlan(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d entradas del plan finalizadas", n), nil
}
