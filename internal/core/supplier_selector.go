package core

import (
	"context"
	"fmt"
	"log/slog"
)

// SupplierAssignment is a deficit paired with the supplier chosen to cover it.
type SupplierAssignment struct {
	Deficit    Deficit    `json:"deficit"`
	SupplierID int        `json:"supplier_id"`
	Tier       RatingTier `json:"rating_tier"`
}

// SelectionResult splits deficits into assigned and unresolved ones.
type SelectionResult struct {
	Assignments []SupplierAssignment `json:"assignments"`
	Unresolved  []Deficit            `json:"unresolved,omitempty"`
}

// SupplierSelector picks one supplier per insumo deficit.
type SupplierSelector struct {
	suppliers SupplierStore
	logger    *slog.Logger
}

func NewSupplierSelector(suppliers SupplierStore, logger *slog.Logger) *SupplierSelector {
	return &SupplierSelector{suppliers: suppliers, logger: orDefault(logger)}
}

// Select assigns the best-rated supplier to every deficit. Deficits no supplier
// rates are returned as Unresolved rather than failing the run.
func (s *SupplierSelector) Select(ctx context.Context, deficits []Deficit) (*SelectionResult, error) {
	ids := make([]int, len(deficits))
	for i, d := range deficits {
		ids[i] = d.InsumoID
	}
	ratings, err := s.suppliers.RatingsForInsumos(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load supplier ratings: %w", err)
	}

	result := &SelectionResult{}
	for _, d := range deficits {
		best, ok := BestSupplier(ratings[d.InsumoID])
		if !ok {
			s.logger.Warn("unresolved deficit: no supplier rates insumo",
				"insumo_id", d.InsumoID, "deficit", d.Quantity.String(), "unit", d.Unit)
			result.Unresolved = append(result.Unresolved, d)
			continue
		}
		result.Assignments = append(result.Assignments, SupplierAssignment{
			Deficit:    d,
			SupplierID: best.SupplierID,
			Tier:       best.Tier,
		})
	}
	return result, nil
}

// BestSupplier returns the rating with the highest tier; ties go to the lowest
// supplier ID. Ratings with an unknown tier are ignored.
func BestSupplier(ratings []SupplierRating) (SupplierRating, bool) {
	var best SupplierRating
	found := false
	for _, r := range ratings {
		if r.Tier == RatingUnknown {
			continue
		}
		if !found || r.Tier > best.Tier || (r.Tier == best.Tier && r.SupplierID < best.SupplierID) {
			best = r
			found = true
		}
	}
	return best, found
}
