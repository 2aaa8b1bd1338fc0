package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/core"
)

// demoParameters mirrors the defaults installed by migrations/002.
var demoParameters = map[string]string{
	"ACTUALIZACION_INSUMOS_HABILITADO":           "true",
	"ACTUALIZACION_INSUMOS_DIA":                  "Lunes",
	"ACTUALIZACION_INSUMOS_HORA":                 "06:00",
	"CANTIDAD_REINTENTOS_ACTUALIZACION_INSUMOS":  "3",
	"INTERVALO_REINTENTOS_ACTUALIZACION_INSUMOS": "10",
	"PEDIDO_AUTOMATICO_HABILITADO":               "true",
	"PEDIDO_AUTOMATICO_DIA":                      "Viernes",
	"PEDIDO_AUTOMATICO_HORA":                     "18:00",
	"CANTIDAD_REINTENTOS_PEDIDO_AUTOMATICO":      "3",
	"INTERVALO_REINTENTOS_PEDIDO_AUTOMATICO":     "15",
	"NOTIFICAR_EXITO_PEDIDO_AUTOMATICO":          "true",
	"PEDIDO_AUTOMATICO_APROBAR":                  "false",
	"PEDIDO_AUTOMATICO_DIAS_HORIZONTE":           "7",
	"FINALIZACION_PLAN_HABILITADO":               "true",
	"FINALIZACION_PLAN_DIA":                      "Todos",
	"FINALIZACION_PLAN_HORA":                     "20:00",
	"CANTIDAD_REINTENTOS_FINALIZACION_PLAN":      "2",
	"INTERVALO_REINTENTOS_FINALIZACION_PLAN":     "5",
	"PEDIDO_ENTREGA_DIAS":                        "2",
	"CANTIDAD_REINTENTOS_NOTIFICACION":           "3",
	"INTERVALO_REINTENTOS_NOTIFICACION":          "5",
}

// SeedDemo loads a small catalog and a five-day lunch menu starting at from,
// enough to exercise generation, approval and confirmation in --memory mode.
func SeedDemo(s *Store, from time.Time) {
	d := decimal.RequireFromString
	for k, v := range demoParameters {
		s.SetParameter(k, v)
	}

	s.AddInsumo(1, "Arroz", core.UnitKilogram)
	s.AddInsumo(2, "Pollo", core.UnitKilogram)
	s.AddInsumo(3, "Aceite", core.UnitLiter)
	s.AddInsumo(4, "Leche", core.UnitLiter)
	s.AddInsumo(5, "Pan", core.UnitPiece)
	s.SetStock(1, d("15"), d("10"))
	s.SetStock(2, d("4"), d("5"))
	s.SetStock(3, d("2"), d("3"))
	s.SetStock(4, d("30"), d("20"))

	s.AddRecipe(core.Recipe{ID: 1, Name: "Arroz con pollo", OutputUnit: "porcion", Ingredients: []core.Ingredient{
		{InsumoID: 1, QuantityPerPortion: d("0.12"), Unit: core.UnitKilogram},
		{InsumoID: 2, QuantityPerPortion: d("150"), Unit: core.UnitGram},
		{InsumoID: 3, QuantityPerPortion: d("10"), Unit: core.UnitMilliliter},
	}})
	s.AddRecipe(core.Recipe{ID: 2, Name: "Leche con pan", OutputUnit: "porcion", Ingredients: []core.Ingredient{
		{InsumoID: 4, QuantityPerPortion: d("0.25"), Unit: core.UnitLiter},
		{InsumoID: 5, QuantityPerPortion: d("1"), Unit: core.UnitPiece},
	}})

	day := core.CalendarDate(from)
	for i := 0; i < 5; i++ {
		date := day.AddDate(0, 0, i)
		s.AddMenuEntry(core.MenuPlanEntry{Date: date, ServiceID: 1, RecipeID: 2, EstimatedPortions: 120})
		s.AddMenuEntry(core.MenuPlanEntry{Date: date, ServiceID: 2, RecipeID: 1, EstimatedPortions: 150})
	}

	s.AddSupplier(core.Supplier{ID: 1, Name: "Distribuidora Sur", Email: "ventas@sur.example"})
	s.AddSupplier(core.Supplier{ID: 2, Name: "Avícola Norte", Email: "pedidos@norte.example", TelegramChatID: "100200300"})
	s.AddSupplier(core.Supplier{ID: 3, Name: "Lácteos del Valle", Email: "ventas@lacteos.example"})
	s.AddRating(core.SupplierRating{SupplierID: 1, InsumoID: 1, Tier: core.RatingGood})
	s.AddRating(core.SupplierRating{SupplierID: 1, InsumoID: 3, Tier: core.RatingRegular})
	s.AddRating(core.SupplierRating{SupplierID: 1, InsumoID: 2, Tier: core.RatingPoor})
	s.AddRating(core.SupplierRating{SupplierID: 2, InsumoID: 2, Tier: core.RatingExcellent})
	s.AddRating(core.SupplierRating{SupplierID: 3, InsumoID: 4, Tier: core.RatingGood})
	s.AddRating(core.SupplierRating{SupplierID: 3, InsumoID: 5, Tier: core.RatingRegular})

	s.AddTeacher(core.Teacher{ID: 1, Name: "Docente Primero A", Email: "primero.a@escuela.example"})
	s.AddTeacher(core.Teacher{ID: 2, Name: "Docente Segundo B", Email: "segundo.b@escuela.example"})
}
