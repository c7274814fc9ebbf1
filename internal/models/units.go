// internal/models/units.go
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type unitScale struct {
	dimension string
	factor    decimal.Decimal
}

var units = map[string]unitScale{
	"mcg":  {"mass", decimal.New(1, -6)},
	"ug":   {"mass", decimal.New(1, -6)},
	"mg":   {"mass", decimal.New(1, -3)},
	"g":    {"mass", decimal.New(1, 0)},
	"kg":   {"mass", decimal.New(1, 3)},
	"ml":   {"volume", decimal.New(1, -3)},
	"l":    {"volume", decimal.New(1, 0)},
	"unit": {"count", decimal.New(1, 0)},
}

// ConvertQuantity converts qty between units of the same dimension. It
// reports false for unknown units or a dimension mismatch.
func ConvertQuantity(qty decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	f, ok := units[strings.ToLower(strings.TrimSpace(from))]
	if !ok {
		return decimal.Zero, false
	}
	t, ok := units[strings.ToLower(strings.TrimSpace(to))]
	if !ok || f.dimension != t.dimension {
		return decimal.Zero, false
	}
	return qty.Mul(f.factor).Div(t.factor), true
}

func IsKnownUnit(unit string) bool {
	_, ok := units[strings.ToLower(strings.TrimSpace(unit))]
	return ok
}
