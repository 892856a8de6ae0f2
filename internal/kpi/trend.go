package kpi

import (
	"github.com/shopspring/decimal"

	"painel/internal/core"
)

var hundred = decimal.NewFromInt(100)

// CompareTotals reports the month-over-month change of revenue, ROAS,
// profit and investment. The percent change is relative to the absolute
// previous value and rounded to one decimal; it is omitted when the
// previous value is zero.
func CompareTotals(current, previous core.KPISummary) []core.Trend {
	return []core.Trend{
		trend("revenue", current.TotalRevenueNet, previous.TotalRevenueNet),
		trend("roas", current.ROAS, previous.ROAS),
		trend("profit", current.Profit, previous.Profit),
		trend("investment", current.TotalInvestment, previous.TotalInvestment),
	}
}

func trend(metric string, cur, prev decimal.Decimal) core.Trend {
	t := core.Trend{Metric: metric, Current: cur, Previous: prev, Direction: core.TrendNeutral}
	if prev.IsZero() {
		return t
	}
	pct := cur.Sub(prev).Div(prev.Abs()).Mul(hundred).Round(1)
	t.PercentChange = &pct
	switch pct.Sign() {
	case 1:
		t.Direction = core.TrendUp
	case -1:
		t.Direction = core.TrendDown
	}
	return t
}
