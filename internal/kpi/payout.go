package kpi

import (
	"github.com/shopspring/decimal"

	"painel/internal/core"
)

// ComputePayout splits a period's profit for a partnership:
//
//	platformFee = revenueNet * platformTax%
//	tax         = revenueNet * tax%
//	amount      = (profit - platformFee - tax) * participation%
//
// Money values are rounded to cents.
func ComputePayout(projectID string, period core.PeriodKey, totals core.KPISummary, s core.ProjectSettings) core.Payout {
	platformFee := pct(totals.TotalRevenueNet, s.PlatformTaxPct)
	tax := pct(totals.TotalRevenueNet, s.TaxPct)
	amount := pct(totals.Profit.Sub(platformFee).Sub(tax), s.ParticipationPct)

	return core.Payout{
		ProjectID:     projectID,
		Period:        period.String(),
		RevenueNet:    totals.TotalRevenueNet,
		Profit:        totals.Profit,
		PlatformFee:   platformFee.Round(2),
		Tax:           tax.Round(2),
		Participation: s.ParticipationPct,
		Amount:        amount.Round(2),
	}
}

func pct(v, p decimal.Decimal) decimal.Decimal {
	return v.Mul(p).Div(hundred)
}
