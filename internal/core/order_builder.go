package core

import (
	"context"
	"fmt"
	"sort"
)

// OrderBuilder groups supplier assignments into one pending order per supplier.
type OrderBuilder struct {
	orders OrderStore
	clock  Clock
}

func NewOrderBuilder(orders OrderStore, clock Clock) *OrderBuilder {
	return &OrderBuilder{orders: orders, clock: clock}
}

// GroupBySupplier builds unsaved orders, one per supplier, ordered by supplier ID.
// Lines are ordered by insumo ID; repeated insumos for the same supplier are merged
// into one line so that no order references an insumo twice.
func GroupBySupplier(assignments []SupplierAssignment) []*PurchaseOrder {
	bySupplier := make(map[int]map[int]*OrderLine)
	for _, a := range assignments {
		lines, ok := bySupplier[a.SupplierID]
		if !ok {
			lines = make(map[int]*OrderLine)
			bySupplier[a.SupplierID] = lines
		}
		if existing, ok := lines[a.Deficit.InsumoID]; ok {
			existing.RequestedQuantity = existing.RequestedQuantity.Add(a.Deficit.Quantity)
			continue
		}
		lines[a.Deficit.InsumoID] = &OrderLine{
			InsumoID:          a.Deficit.InsumoID,
			InsumoName:        a.Deficit.Name,
			RequestedQuantity: a.Deficit.Quantity,
			Unit:              a.Deficit.Unit,
			Availability:      AvailabilityPending,
		}
	}

	supplierIDs := make([]int, 0, len(bySupplier))
	for id := range bySupplier {
		supplierIDs = append(supplierIDs, id)
	}
	sort.Ints(supplierIDs)

	orders := make([]*PurchaseOrder, 0, len(supplierIDs))
	for _, sid := range supplierIDs {
		lines := make([]OrderLine, 0, len(bySupplier[sid]))
		for _, l := range bySupplier[sid] {
			lines = append(lines, *l)
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].InsumoID < lines[j].InsumoID })
		for i := range lines {
			lines[i].LineNumber = i + 1
		}
		orders = append(orders, &PurchaseOrder{SupplierID: sid, State: OrderPending, Lines: lines})
	}
	return orders
}

// Build groups assignments by supplier and persists the resulting orders, each
// header with its lines, atomically. An empty assignment list creates nothing.
func (b *OrderBuilder) Build(ctx context.Context, assignments []SupplierAssignment, createdBy string, origin OrderOrigin) ([]PurchaseOrder, error) {
	orders := GroupBySupplier(assignments)
	if len(orders) == 0 {
		return nil, nil
	}

	now := b.clock.Now()
	for _, o := range orders {
		if len(o.Lines) == 0 {
			return nil, fmt.Errorf("supplier %d: purchase order must have at least one line", o.SupplierID)
		}
		o.CreatedBy = createdBy
		o.Origin = origin
		o.CreatedAt = now
	}

	if err := b.orders.CreateOrders(ctx, orders); err != nil {
		return nil, fmt.Errorf("persist purchase orders: %w", err)
	}

	out := make([]PurchaseOrder, len(orders))
	for i, o := range orders {
		out[i] = *o
	}
	return out, nil
}
