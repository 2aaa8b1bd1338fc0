package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
	"cafeteria/internal/logger"
)

func aggregator(f *fixture) *core.RequirementAggregator {
	return core.NewRequirementAggregator(f.store, f.store, f.store, logger.Discard())
}

func TestAggregate_SingleEntry(t *testing.T) {
	f := newFixture(t)

	res, err := aggregator(f).Aggregate(context.Background(), monday, monday)
	require.NoError(t, err)
	require.Len(t, res.Requirements, 1)

	rice := res.Requirements[insumoRice]
	assert.True(t, rice.Quantity.Equal(dec("20")), "want 20 kg of rice, got %s", rice.Quantity)
	assert.Equal(t, core.UnitKilogram, rice.Unit)
	assert.Equal(t, 1, rice.Contributions)
	assert.Empty(t, res.Skipped)
}

func TestAggregate_ConvertsToCanonicalUnit(t *testing.T) {
	f := newFixture(t)
	f.store.AddRecipe(core.Recipe{ID: 2, Name: "Pollo al horno", Ingredients: []core.Ingredient{
		{InsumoID: insumoChicken, QuantityPerPortion: dec("150"), Unit: core.UnitGram},
		{InsumoID: insumoRice, QuantityPerPortion: dec("50"), Unit: "gramos"},
	}})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday.AddDate(0, 0, 1), ServiceID: 1, RecipeID: 2, EstimatedPortions: 40})

	res, err := aggregator(f).Aggregate(context.Background(), monday, monday.AddDate(0, 0, 4))
	require.NoError(t, err)

	// 100 × 0.2 kg + 40 × 50 g
	assert.True(t, res.Requirements[insumoRice].Quantity.Equal(dec("22")))
	assert.Equal(t, 2, res.Requirements[insumoRice].Contributions)
	// 40 × 150 g
	assert.True(t, res.Requirements[insumoChicken].Quantity.Equal(dec("6")))
	assert.Equal(t, core.UnitKilogram, res.Requirements[insumoChicken].Unit)

	sorted := res.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, insumoRice, sorted[0].InsumoID)
	assert.Equal(t, insumoChicken, sorted[1].InsumoID)
}

func TestAggregate_RangeIsInclusive(t *testing.T) {
	f := newFixture(t)
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday.AddDate(0, 0, 1), ServiceID: 1, RecipeID: recipeArrozConPollo, EstimatedPortions: 50})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday.AddDate(0, 0, 2), ServiceID: 1, RecipeID: recipeArrozConPollo, EstimatedPortions: 50})

	res, err := aggregator(f).Aggregate(context.Background(), monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, res.Requirements[insumoRice].Quantity.Equal(dec("30")))
}

func TestAggregate_EmptyRangeYieldsNothing(t *testing.T) {
	f := newFixture(t)
	res, err := aggregator(f).Aggregate(context.Background(), monday.AddDate(0, 1, 0), monday.AddDate(0, 1, 6))
	require.NoError(t, err)
	assert.Empty(t, res.Requirements)
}

func TestAggregate_InvalidRange(t *testing.T) {
	f := newFixture(t)
	_, err := aggregator(f).Aggregate(context.Background(), monday, monday.AddDate(0, 0, -1))
	var rangeErr *core.InvalidRangeError
	require.True(t, errors.As(err, &rangeErr), "want InvalidRangeError, got %v", err)
}

func TestAggregate_SkipsMissingAndEmptyRecipes(t *testing.T) {
	f := newFixture(t)
	f.store.AddRecipe(core.Recipe{ID: 3, Name: "Agua"})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 2, RecipeID: 3, EstimatedPortions: 100})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 3, RecipeID: 99, EstimatedPortions: 100})

	res, err := aggregator(f).Aggregate(context.Background(), monday, monday)
	require.NoError(t, err)
	assert.Len(t, res.Requirements, 1)
	require.Len(t, res.Skipped, 2)
	reasons := []string{res.Skipped[0].Reason, res.Skipped[1].Reason}
	assert.ElementsMatch(t, []string{"recipe has no ingredients", "recipe not found"}, reasons)
}

func TestAggregate_UnsupportedUnit(t *testing.T) {
	f := newFixture(t)
	f.store.AddRecipe(core.Recipe{ID: 4, Name: "Sopa", Ingredients: []core.Ingredient{
		{InsumoID: insumoRice, QuantityPerPortion: dec("0.1"), Unit: core.UnitLiter},
	}})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 2, RecipeID: 4, EstimatedPortions: 10})

	_, err := aggregator(f).Aggregate(context.Background(), monday, monday)
	var unitErr *core.UnsupportedUnitError
	require.True(t, errors.As(err, &unitErr), "want UnsupportedUnitError, got %v", err)
	assert.Equal(t, core.UnitLiter, unitErr.From)
	assert.Equal(t, core.UnitKilogram, unitErr.To)
}

func TestAggregate_NegativePortionsRejected(t *testing.T) {
	f := newFixture(t)
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 2, RecipeID: recipeArrozConPollo, EstimatedPortions: -5})

	_, err := aggregator(f).Aggregate(context.Background(), monday, monday)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want ValidationError, got %v", err)
}

func TestComputeDeficits(t *testing.T) {
	reqs := map[int]core.Requirement{
		insumoRice:    {InsumoID: insumoRice, Quantity: dec("20"), Unit: core.UnitKilogram},
		insumoChicken: {InsumoID: insumoChicken, Quantity: dec("6"), Unit: core.UnitKilogram},
		insumoOil:     {InsumoID: insumoOil, Quantity: dec("2"), Unit: core.UnitLiter},
	}
	snapshot := map[int]core.InsumoStock{
		insumoRice:    {InsumoID: insumoRice, Name: "Arroz", CurrentQuantity: dec("10"), Unit: core.UnitKilogram},
		insumoChicken: {InsumoID: insumoChicken, Name: "Pollo", CurrentQuantity: dec("-3"), Unit: core.UnitKilogram},
		insumoOil:     {InsumoID: insumoOil, Name: "Aceite", CurrentQuantity: dec("2500"), Unit: core.UnitMilliliter},
		42:            {InsumoID: 42, Name: "Sal", CurrentQuantity: decimal.Zero, Unit: core.UnitKilogram},
	}

	deficits, err := core.ComputeDeficits(reqs, snapshot)
	require.NoError(t, err)
	require.Len(t, deficits, 2)

	assert.Equal(t, insumoRice, deficits[0].InsumoID)
	assert.True(t, deficits[0].Quantity.Equal(dec("10")))
	assert.Equal(t, "Arroz", deficits[0].Name)

	// negative stock counts as zero
	assert.Equal(t, insumoChicken, deficits[1].InsumoID)
	assert.True(t, deficits[1].Quantity.Equal(dec("6")))
	assert.True(t, deficits[1].Stock.IsZero())
}

func TestComputeDeficits_MissingStockMeansZero(t *testing.T) {
	reqs := map[int]core.Requirement{7: {InsumoID: 7, Quantity: dec("1.5"), Unit: core.UnitKilogram}}
	deficits, err := core.ComputeDeficits(reqs, nil)
	require.NoError(t, err)
	require.Len(t, deficits, 1)
	assert.True(t, deficits[0].Quantity.Equal(dec("1.5")))
}

func TestConvertQuantity(t *testing.T) {
	tests := []struct {
		name    string
		qty     string
		from    core.Unit
		to      core.Unit
		want    string
		wantErr bool
	}{
		{name: "kg to g", qty: "1.25", from: "kg", to: "g", want: "1250"},
		{name: "g to kg", qty: "250", from: "g", to: "kg", want: "0.25"},
		{name: "ml to l", qty: "750", from: "ml", to: "l", want: "0.75"},
		{name: "aliases", qty: "2", from: "Kilogramos", to: "kg", want: "2"},
		{name: "same unit", qty: "3", from: "unidad", to: "unidad", want: "3"},
		{name: "mass to volume", qty: "1", from: "kg", to: "l", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.ConvertQuantity(dec(tt.qty), tt.from, tt.to)
			if tt.wantErr {
				var unitErr *core.UnsupportedUnitError
				assert.True(t, errors.As(err, &unitErr))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestParseRatingTier_BothVocabularies(t *testing.T) {
	tests := map[string]core.RatingTier{
		"Excelente":      core.RatingExcellent,
		"Bueno":          core.RatingGood,
		"Aceptable":      core.RatingGood,
		"regular":        core.RatingRegular,
		"Malo":           core.RatingPoor,
		"Poco Eficiente": core.RatingPoor,
	}
	for label, want := range tests {
		got, err := core.ParseRatingTier(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}

	_, err := core.ParseRatingTier("Sobresaliente")
	assert.Error(t, err)
}

func TestCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	got := core.CalendarDate(time.Date(2024, 3, 4, 23, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), got)
}
