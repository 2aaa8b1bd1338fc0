package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Deficit is the shortfall of one insumo: max(0, required − stock).
type Deficit struct {
	InsumoID int             `json:"insumo_id"`
	Name     string          `json:"name,omitempty"`
	Required decimal.Decimal `json:"required"`
	Stock    decimal.Decimal `json:"stock"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     Unit            `json:"unit"`
}

// ComputeDeficits subtracts the stock snapshot from each requirement. Insumos
// whose stock covers the requirement are dropped; only insumos present in
// requirements can appear in the result. Output is ordered by insumo ID.
func ComputeDeficits(requirements map[int]Requirement, snapshot map[int]InsumoStock) ([]Deficit, error) {
	deficits := make([]Deficit, 0, len(requirements))
	for id, req := range requirements {
		stock := decimal.Zero
		name := ""
		if s, ok := snapshot[id]; ok {
			name = s.Name
			converted, err := ConvertQuantity(s.CurrentQuantity, s.Unit, req.Unit)
			if err != nil {
				return nil, fmt.Errorf("stock of insumo %d: %w", id, err)
			}
			stock = converted
		}
		if stock.IsNegative() {
			stock = decimal.Zero
		}

		shortfall := req.Quantity.Sub(stock)
		if !shortfall.IsPositive() {
			continue
		}
		deficits = append(deficits, Deficit{
			InsumoID: id,
			Name:     name,
			Required: req.Quantity,
			Stock:    stock,
			Quantity: shortfall,
			Unit:     req.Unit,
		})
	}
	sort.Slice(deficits, func(i, j int) bool { return deficits[i].InsumoID < deficits[j].InsumoID })
	return deficits, nil
}
