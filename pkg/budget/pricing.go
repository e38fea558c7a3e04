package budget

import (
	"github.com/shopspring/decimal"

	"github.com/ilearnhow/lessongen/pkg/models"
)

// CostFunc computes the dollar cost of one call from reported usage.
type CostFunc func(models.Usage) float64

// DefaultPricing is $3 per million input tokens and $15 per million output tokens.
var DefaultPricing = models.ModelPricing{InputPerMillion: 3, OutputPerMillion: 15}

// costPlaces is the precision costs are rounded to (micro-dollars).
const costPlaces = 6

var million = decimal.NewFromInt(1_000_000)

// PerMillion returns a CostFunc for per-million-token pricing. A zero
// pricing falls back to DefaultPricing.
func PerMillion(p models.ModelPricing) CostFunc {
	if p.InputPerMillion == 0 && p.OutputPerMillion == 0 {
		p = DefaultPricing
	}
	in := decimal.NewFromFloat(p.InputPerMillion)
	out := decimal.NewFromFloat(p.OutputPerMillion)
	return func(u models.Usage) float64 {
		c := in.Mul(decimal.NewFromInt(int64(u.InputTokens))).
			Add(out.Mul(decimal.NewFromInt(int64(u.OutputTokens)))).
			Div(million)
		return c.Round(costPlaces).InexactFloat64()
	}
}

// round normalizes an accumulated float so repeated additions compare exactly.
func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(costPlaces)
}
