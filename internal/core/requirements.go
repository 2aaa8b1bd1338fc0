package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Requirement is the total quantity of one insumo needed over a period.
type Requirement struct {
	InsumoID      int             `json:"insumo_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          Unit            `json:"unit"`
	Contributions int             `json:"contributions"`
}

// SkippedEntry records a menu entry (or one of its ingredients) that contributed nothing.
type SkippedEntry struct {
	EntryID  int    `json:"entry_id"`
	RecipeID int    `json:"recipe_id"`
	InsumoID int    `json:"insumo_id,omitempty"`
	Reason   string `json:"reason"`
}

// RequirementResult is the aggregated need over [Start, End].
type RequirementResult struct {
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	Requirements map[int]Requirement `json:"requirements"`
	Skipped      []SkippedEntry      `json:"skipped,omitempty"`
}

// Sorted returns the requirements ordered by insumo ID.
func (r *RequirementResult) Sorted() []Requirement {
	out := make([]Requirement, 0, len(r.Requirements))
	for _, req := range r.Requirements {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InsumoID < out[j].InsumoID })
	return out
}

// RequirementAggregator sums insumo needs from planned menus and recipe ratios.
type RequirementAggregator struct {
	menu    MenuPlanStore
	recipes RecipeReader
	catalog InsumoCatalog
	logger  *slog.Logger
}

// NewRequirementAggregator constructs an aggregator over the given read-only stores.
func NewRequirementAggregator(menu MenuPlanStore, recipes RecipeReader, catalog InsumoCatalog, logger *slog.Logger) *RequirementAggregator {
	return &RequirementAggregator{menu: menu, recipes: recipes, catalog: catalog, logger: orDefault(logger)}
}

// Aggregate returns insumo → total required for every menu entry dated in [start, end].
// Quantities are converted into each insumo's canonical unit. A missing recipe or a
// recipe without ingredients contributes zero and is reported in Skipped.
func (a *RequirementAggregator) Aggregate(ctx context.Context, start, end time.Time) (*RequirementResult, error) {
	start, end = CalendarDate(start), CalendarDate(end)
	if start.After(end) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}

	entries, err := a.menu.ListMenuPlan(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list menu plan: %w", err)
	}

	recipeIDs := make([]int, 0, len(entries))
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if !seen[e.RecipeID] {
			seen[e.RecipeID] = true
			recipeIDs = append(recipeIDs, e.RecipeID)
		}
	}
	recipes, err := a.recipes.GetRecipes(ctx, recipeIDs)
	if err != nil {
		return nil, fmt.Errorf("load recipes: %w", err)
	}
	units, err := a.catalog.InsumoUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load insumo units: %w", err)
	}

	result := &RequirementResult{Start: start, End: end, Requirements: make(map[int]Requirement)}
	skip := func(s SkippedEntry) {
		a.logger.Warn("menu entry contributes no requirement",
			"entry_id", s.EntryID, "recipe_id", s.RecipeID, "insumo_id", s.InsumoID, "reason", s.Reason)
		result.Skipped = append(result.Skipped, s)
	}

	for _, e := range entries {
		d := CalendarDate(e.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		if e.EstimatedPortions < 0 {
			return nil, &ValidationError{Field: "estimated_portions",
				Message: fmt.Sprintf("menu entry %d has negative portions %d", e.ID, e.EstimatedPortions)}
		}
		recipe, ok := recipes[e.RecipeID]
		if !ok {
			skip(SkippedEntry{EntryID: e.ID, RecipeID: e.RecipeID, Reason: "recipe not found"})
			continue
		}
		if len(recipe.Ingredients) == 0 {
			skip(SkippedEntry{EntryID: e.ID, RecipeID: e.RecipeID, Reason: "recipe has no ingredients"})
			continue
		}

		portions := decimal.NewFromInt(int64(e.EstimatedPortions))
		for _, ing := range recipe.Ingredients {
			if ing.QuantityPerPortion.IsNegative() {
				return nil, &ValidationError{Field: "quantity_per_portion",
					Message: fmt.Sprintf("recipe %d insumo %d has a negative ratio", recipe.ID, ing.InsumoID)}
			}
			canonical, ok := units[ing.InsumoID]
			if !ok {
				skip(SkippedEntry{EntryID: e.ID, RecipeID: e.RecipeID, InsumoID: ing.InsumoID, Reason: "insumo not in catalog"})
				continue
			}
			qty, err := ConvertQuantity(ing.QuantityPerPortion.Mul(portions), ing.Unit, canonical)
			if err != nil {
				return nil, fmt.Errorf("recipe %d insumo %d: %w", recipe.ID, ing.InsumoID, err)
			}

			req := result.Requirements[ing.InsumoID]
			if req.Contributions == 0 {
				req = Requirement{InsumoID: ing.InsumoID, Quantity: decimal.Zero, Unit: canonical}
			}
			req.Quantity = req.Quantity.Add(qty)
			req.Contributions++
			result.Requirements[ing.InsumoID] = req
		}
	}
	return result, nil
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
