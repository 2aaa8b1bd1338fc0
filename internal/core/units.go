package core

import (
	"github.com/shopspring/decimal"
)

// Unit is a measurement unit in its canonical short form.
type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "l"
	UnitMilliliter Unit = "ml"
	UnitPiece      Unit = "unidad"
)

var unitAliases = map[string]Unit{
	"kg":         UnitKilogram,
	"kgs":        UnitKilogram,
	"kilo":       UnitKilogram,
	"kilos":      UnitKilogram,
	"kilogramo":  UnitKilogram,
	"kilogramos": UnitKilogram,
	"kilogram":   UnitKilogram,
	"kilograms":  UnitKilogram,
	"g":          UnitGram,
	"gr":         UnitGram,
	"grs":        UnitGram,
	"gramo":      UnitGram,
	"gramos":     UnitGram,
	"gram":       UnitGram,
	"grams":      UnitGram,
	"l":          UnitLiter,
	"lt":         UnitLiter,
	"lts":        UnitLiter,
	"litro":      UnitLiter,
	"litros":     UnitLiter,
	"liter":      UnitLiter,
	"liters":     UnitLiter,
	"ml":         UnitMilliliter,
	"mililitro":  UnitMilliliter,
	"mililitros": UnitMilliliter,
	"milliliter": UnitMilliliter,
	"u":          UnitPiece,
	"un":         UnitPiece,
	"und":        UnitPiece,
	"unidad":     UnitPiece,
	"unidades":   UnitPiece,
	"unit":       UnitPiece,
	"units":      UnitPiece,
}

var thousand = decimal.NewFromInt(1000)

// conversionFactors maps (from, to) to the multiplier applied to a quantity in from.
var conversionFactors = map[[2]Unit]decimal.Decimal{
	{UnitKilogram, UnitGram}:    thousand,
	{UnitGram, UnitKilogram}:    decimal.NewFromInt(1).Div(thousand),
	{UnitLiter, UnitMilliliter}: thousand,
	{UnitMilliliter, UnitLiter}: decimal.NewFromInt(1).Div(thousand),
}

// NormalizeUnit maps a free-text unit label onto its canonical form.
// Unknown labels are returned folded but otherwise untouched so that
// conversion reports them precisely.
func NormalizeUnit(label string) Unit {
	key := FoldLabel(label)
	if u, ok := unitAliases[key]; ok {
		return u
	}
	return Unit(key)
}

// ConvertQuantity converts qty expressed in from into to.
func ConvertQuantity(qty decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	from, to = NormalizeUnit(string(from)), NormalizeUnit(string(to))
	if from == to {
		return qty, nil
	}
	factor, ok := conversionFactors[[2]Unit{from, to}]
	if !ok {
		return decimal.Zero, &UnsupportedUnitError{From: from, To: to}
	}
	return qty.Mul(factor), nil
}
