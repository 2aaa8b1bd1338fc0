package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuPlanEntry is one planned dish for one service on one date.
// Entries are immutable once Finalized is set.
type MenuPlanEntry struct {
	ID                int       `json:"id"`
	Date              time.Time `json:"date"`
	ServiceID         int       `json:"service_id"`
	RecipeID          int       `json:"recipe_id"`
	EstimatedPortions int       `json:"estimated_portions"`
	Finalized         bool      `json:"finalized"`
}

// Recipe converts per-portion insumo quantities into a dish.
type Recipe struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	OutputUnit  string       `json:"output_unit"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Ingredient is one insumo requirement of a recipe, per portion.
type Ingredient struct {
	InsumoID           int             `json:"insumo_id"`
	QuantityPerPortion decimal.Decimal `json:"quantity_per_portion"`
	Unit               Unit            `json:"unit"`
}
