package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
)

// addChickenDemand adds a second recipe whose chicken is best supplied by
// Avícola Norte, while rice stays with Distribuidora Sur.
func addChickenDemand(f *fixture) {
	f.store.AddRecipe(core.Recipe{ID: 2, Name: "Pollo al horno", Ingredients: []core.Ingredient{
		{InsumoID: insumoChicken, QuantityPerPortion: dec("150"), Unit: core.UnitGram},
	}})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday.AddDate(0, 0, 1), ServiceID: 1, RecipeID: 2, EstimatedPortions: 40})
	f.store.AddRating(core.SupplierRating{SupplierID: supplierNorte, InsumoID: insumoChicken, Tier: core.RatingExcellent})
	f.store.AddRating(core.SupplierRating{SupplierID: supplierSur, InsumoID: insumoChicken, Tier: core.RatingPoor})
	f.store.AddRating(core.SupplierRating{SupplierID: supplierNorte, InsumoID: insumoRice, Tier: core.RatingRegular})
}

func TestGenerateOrders_SingleDeficit(t *testing.T) {
	f := newFixture(t)

	res, err := f.procurement.GenerateOrders(context.Background(), monday, monday, "cocina@escuela", core.OriginManual)
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)

	o := res.Orders[0]
	assert.Equal(t, supplierSur, o.SupplierID)
	assert.Equal(t, core.OrderPending, o.State)
	assert.Equal(t, core.OriginManual, o.Origin)
	assert.Equal(t, "cocina@escuela", o.CreatedBy)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, insumoRice, o.Lines[0].InsumoID)
	assert.True(t, o.Lines[0].RequestedQuantity.Equal(dec("10")), "got %s", o.Lines[0].RequestedQuantity)
	assert.Equal(t, core.UnitKilogram, o.Lines[0].Unit)

	stored, err := f.lifecycle.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "Distribuidora Sur", stored.SupplierName)
}

func TestGenerateOrders_OneOrderPerSupplier(t *testing.T) {
	f := newFixture(t)
	addChickenDemand(f)

	res, err := f.procurement.GenerateOrders(context.Background(), monday, monday.AddDate(0, 0, 4), "cocina@escuela", core.OriginManual)
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)

	bySupplier := map[int]core.PurchaseOrder{}
	for _, o := range res.Orders {
		bySupplier[o.SupplierID] = o
	}
	sur, norte := bySupplier[supplierSur], bySupplier[supplierNorte]
	require.Len(t, sur.Lines, 1)
	assert.Equal(t, insumoRice, sur.Lines[0].InsumoID)
	require.Len(t, norte.Lines, 1)
	assert.Equal(t, insumoChicken, norte.Lines[0].InsumoID)
	assert.True(t, norte.Lines[0].RequestedQuantity.Equal(dec("6")))
}

func TestGenerateOrders_NoDeficitCreatesNoOrders(t *testing.T) {
	f := newFixture(t)
	f.store.SetStock(insumoRice, dec("50"), dec("5"))

	res, err := f.procurement.GenerateOrders(context.Background(), monday, monday, "cocina@escuela", core.OriginManual)
	require.NoError(t, err)
	assert.Empty(t, res.Orders)
	assert.Empty(t, res.Plan.Deficits)
}

func TestPreview_WritesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.AddRecipe(core.Recipe{ID: 5, Name: "Ensalada", Ingredients: []core.Ingredient{
		{InsumoID: insumoOil, QuantityPerPortion: dec("10"), Unit: core.UnitMilliliter},
	}})
	f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday, ServiceID: 2, RecipeID: 5, EstimatedPortions: 100})

	plan, err := f.procurement.Preview(context.Background(), monday, monday)
	require.NoError(t, err)
	assert.Len(t, plan.Requirements, 2)
	assert.Len(t, plan.Deficits, 2)
	require.Len(t, plan.Unresolved, 1)
	assert.Equal(t, insumoOil, plan.Unresolved[0].InsumoID)
	assert.True(t, plan.Unresolved[0].Quantity.Equal(dec("1")))
	require.Len(t, plan.Orders, 1)
	assert.Zero(t, plan.Orders[0].ID)

	orders, err := f.store.ListOrders(context.Background(), core.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRunAutoOrder_ApprovesWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.store.SetParameter(core.ParamAutoApprove, "si")

	summary, err := f.procurement.RunAutoOrder(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary, "1 pedidos generados")
	assert.Contains(t, summary, "1 aprobados")

	orders, err := f.lifecycle.List(context.Background(), core.OrderFilter{Origin: core.OriginAutomatic})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, core.OrderApproved, orders[0].State)
	assert.Equal(t, core.SystemActor, orders[0].CreatedBy)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestRunAutoOrder_LeavesPendingByDefault(t *testing.T) {
	f := newFixture(t)

	_, err := f.procurement.RunAutoOrder(context.Background())
	require.NoError(t, err)

	orders, err := f.lifecycle.List(context.Background(), core.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, core.OrderPending, orders[0].State)
	assert.Empty(t, f.notifier.Sent())
}

func TestRunAutoOrder_HorizonFromParameter(t *testing.T) {
	f := newFixture(t)
	// Friday + 1 day covers Saturday only, so Monday's menu is outside the horizon.
	f.store.SetParameter(core.ParamHorizonDays, "1")

	summary, err := f.procurement.RunAutoOrder(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary, "0 pedidos generados para 2024-03-02 a 2024-03-02")
}

func TestRefreshInsumos(t *testing.T) {
	f := newFixture(t)
	f.store.SetStock(insumoOil, dec("1"), dec("3"))

	forecasts, err := f.procurement.RefreshInsumos(context.Background())
	require.NoError(t, err)
	require.Len(t, forecasts, 2)

	rice := forecasts[0]
	assert.Equal(t, insumoRice, rice.InsumoID)
	assert.True(t, rice.Required.Equal(dec("20")))
	assert.True(t, rice.Deficit.Equal(dec("10")))
	assert.False(t, rice.BelowThreshold)

	oil := forecasts[1]
	assert.Equal(t, insumoOil, oil.InsumoID)
	assert.True(t, oil.Required.IsZero())
	assert.True(t, oil.Deficit.IsZero())
	assert.True(t, oil.BelowThreshold)

	saved, at := f.store.LatestForecast()
	assert.Len(t, saved, 2)
	assert.Equal(t, start, at)
}

func TestFinalizePlan_ThroughTomorrow(t *testing.T) {
	f := newFixture(t)
	saturday := f.store.AddMenuEntry(core.MenuPlanEntry{Date: monday.AddDate(0, 0, -2), ServiceID: 1, RecipeID: recipeArrozConPollo, EstimatedPortions: 10})

	summary, err := f.procurement.RunPlanFinalization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 entradas del plan finalizadas", summary)

	got, ok := f.store.MenuEntry(saturday.ID)
	require.True(t, ok)
	assert.True(t, got.Finalized)

	n, err := f.procurement.FinalizePlan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
