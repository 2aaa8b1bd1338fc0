package core

import "github.com/shopspring/decimal"

// InsumoStock is the current stock of one insumo, in the insumo's canonical unit.
type InsumoStock struct {
	InsumoID         int             `json:"insumo_id"`
	Name             string          `json:"name"`
	CurrentQuantity  decimal.Decimal `json:"current_quantity"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	Unit             Unit            `json:"unit"`
}

// BelowThreshold reports whether stock has fallen under the configured minimum.
func (s InsumoStock) BelowThreshold() bool {
	return s.CurrentQuantity.LessThan(s.MinimumThreshold)
}

// InsumoForecast is the refresh job's view of one insumo over the upcoming horizon.
type InsumoForecast struct {
	InsumoID       int             `json:"insumo_id"`
	Name           string          `json:"name"`
	Required       decimal.Decimal `json:"required"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	Deficit        decimal.Decimal `json:"deficit"`
	BelowThreshold bool            `json:"below_threshold"`
	Unit           Unit            `json:"unit"`
}
