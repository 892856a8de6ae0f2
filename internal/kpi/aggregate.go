// Package kpi computes dashboard indicators from period rows. Every function
// is pure: the same input always yields the same output.
package kpi

import (
	"sort"

	"github.com/shopspring/decimal"

	"painel/internal/core"
)

type dayAgg struct {
	investment   decimal.Decimal
	sales        int
	revenueNet   decimal.Decimal
	revenueGross decimal.Decimal
}

type productAgg struct {
	sales   int
	revenue decimal.Decimal
}

// Aggregate builds the period report. Divisions by zero yield zero, so the
// result of empty input is a zeroed report with empty breakdowns.
func Aggregate(adSpend []core.AdSpendRow, sales []core.SaleRow) core.Report {
	return AggregateWith(adSpend, sales, nil)
}

// AggregateWith is Aggregate with explicit product classifications taking
// precedence over the keyword heuristic.
func AggregateWith(adSpend []core.AdSpendRow, sales []core.SaleRow, overrides map[string]core.Classification) core.Report {
	days := map[string]*dayAgg{}
	day := func(date string) *dayAgg {
		d, ok := days[date]
		if !ok {
			d = &dayAgg{}
			days[date] = d
		}
		return d
	}

	for _, r := range adSpend {
		d := day(r.Date)
		d.investment = d.investment.Add(r.Investment)
	}

	products := map[string]*productAgg{}
	for _, s := range sales {
		d := day(s.Date)
		d.sales++
		d.revenueNet = d.revenueNet.Add(s.Net)
		d.revenueGross = d.revenueGross.Add(s.Gross)

		p, ok := products[s.Product]
		if !ok {
			p = &productAgg{}
			products[s.Product] = p
		}
		p.sales++
		p.revenue = p.revenue.Add(s.Net)
	}

	report := core.EmptyReport()
	totals := &report.Totals

	for date, d := range days {
		totals.TotalInvestment = totals.TotalInvestment.Add(d.investment)
		totals.TotalSales += d.sales
		totals.TotalRevenueNet = totals.TotalRevenueNet.Add(d.revenueNet)
		totals.TotalRevenueGross = totals.TotalRevenueGross.Add(d.revenueGross)

		sales := decimal.NewFromInt(int64(d.sales))
		report.ByDay = append(report.ByDay, core.DailyKPI{
			Date:          date,
			Investment:    d.investment,
			Sales:         d.sales,
			Revenue:       d.revenueNet,
			AverageTicket: safeDiv(d.revenueNet, sales),
			ROAS:          safeDiv(d.revenueNet, d.investment),
			CAC:           safeDiv(d.investment, sales),
		})
	}
	sort.Slice(report.ByDay, func(i, j int) bool { return report.ByDay[i].Date < report.ByDay[j].Date })

	totals.TotalDays = len(days)
	totals.AverageTicket = safeDiv(totals.TotalRevenueNet, decimal.NewFromInt(int64(totals.TotalSales)))
	totals.ROAS = safeDiv(totals.TotalRevenueNet, totals.TotalInvestment)
	totals.Profit = totals.TotalRevenueNet.Sub(totals.TotalInvestment)
	// Refund detection is not implemented; every counted sale is effective.
	totals.EffectiveSales = totals.TotalSales
	totals.Refunds = 0

	for name, p := range products {
		report.ByProduct = append(report.ByProduct, core.ProductKPI{
			Product:        name,
			Sales:          p.sales,
			RevenueNet:     p.revenue,
			AverageTicket:  safeDiv(p.revenue, decimal.NewFromInt(int64(p.sales))),
			Classification: ClassifyWith(name, overrides),
		})
	}
	sort.Slice(report.ByProduct, func(i, j int) bool {
		a, b := report.ByProduct[i], report.ByProduct[j]
		if c := a.RevenueNet.Cmp(b.RevenueNet); c != 0 {
			return c > 0
		}
		return a.Product < b.Product
	})

	return report
}

// AggregateBucket aggregates the rows of a stored bucket.
func AggregateBucket(b core.PeriodBucket, settings core.ProjectSettings) core.Report {
	return AggregateWith(b.AdSpend, b.Sales, settings.Classifications)
}

func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}
