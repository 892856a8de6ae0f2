package services

import (
	"fmt"
	"sort"

	"painel/internal/core"
)

// ReplaceAdSpend swaps the bucket's ad-spend rows for rows.
func ReplaceAdSpend(b *core.PeriodBucket, rows []core.AdSpendRow) {
	b.AdSpend = append([]core.AdSpendRow{}, rows...)
}

// MergeSalesBySource drops every sale of source and appends rows, so
// re-uploading a platform export replaces that platform's data only.
func MergeSalesBySource(b *core.PeriodBucket, source core.Source, rows []core.SaleRow) {
	kept := make([]core.SaleRow, 0, len(b.Sales)+len(rows))
	for _, s := range b.Sales {
		if s.Source != source {
			kept = append(kept, s)
		}
	}
	b.Sales = append(kept, rows...)
}

// AppendSales adds rows without touching existing sales.
func AppendSales(b *core.PeriodBucket, rows ...core.SaleRow) {
	b.Sales = append(b.Sales, rows...)
}

// UpsertSaleByExternalID replaces the sale with the same source and
// external id, or appends it. It reports whether a row was replaced.
func UpsertSaleByExternalID(b *core.PeriodBucket, row core.SaleRow) bool {
	if row.ExternalID != "" {
		for i, s := range b.Sales {
			if s.Source == row.Source && s.ExternalID == row.ExternalID {
				b.Sales[i] = row
				return true
			}
		}
	}
	b.Sales = append(b.Sales, row)
	return false
}

// UpsertAdSpendByDate drops existing rows on the dates present in rows and
// appends rows. Dates not fetched are left alone.
func UpsertAdSpendByDate(b *core.PeriodBucket, rows []core.AdSpendRow) {
	fetched := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		fetched[r.Date] = struct{}{}
	}
	kept := make([]core.AdSpendRow, 0, len(b.AdSpend)+len(rows))
	for _, r := range b.AdSpend {
		if _, ok := fetched[r.Date]; !ok {
			kept = append(kept, r)
		}
	}
	b.AdSpend = append(kept, rows...)
}

// RemoveSale deletes the sale with the given source and external id.
func RemoveSale(b *core.PeriodBucket, source core.Source, externalID string) bool {
	for i, s := range b.Sales {
		if s.Source == source && s.ExternalID == externalID {
			b.Sales = append(b.Sales[:i], b.Sales[i+1:]...)
			return true
		}
	}
	return false
}

// splitByPeriod groups rows by calendar month and returns the months in
// ascending order.
func splitByPeriod[T any](rows []T, date func(T) string) (map[core.PeriodKey][]T, []core.PeriodKey, error) {
	groups := make(map[core.PeriodKey][]T)
	for _, r := range rows {
		p, err := core.PeriodOf(date(r))
		if err != nil {
			return nil, nil, fmt.Errorf("group rows by month: %w", err)
		}
		groups[p] = append(groups[p], r)
	}
	keys := make([]core.PeriodKey, 0, len(groups))
	for p := range groups {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return groups, keys, nil
}

func adSpendDate(r core.AdSpendRow) string { return r.Date }
func saleDate(r core.SaleRow) string       { return r.Date }
