package parsers

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/sheets"
)

// column lists the accepted header spellings of one logical field, in
// order of preference.
type column struct {
	spellings []string
	required  bool
}

var (
	hotmartDate     = column{[]string{"DATA CORRIGIDA", "Data da transação"}, true}
	hotmartStatus   = column{[]string{"STATUS DA TRANSAÇÃO"}, true}
	hotmartProducer = column{[]string{"FATURAMENTO LÍQUIDO DO(A) PRODUTOR(A)"}, true}
	hotmartCoProd   = column{[]string{"FATURAMENTO DO(A) COPRODUTOR(A)"}, false}
	hotmartProduct  = column{[]string{"PRODUTO"}, false}
	hotmartStatuses = []string{"aprovado", "completo", "approved", "complete"}
	kiwifyDate      = column{[]string{"Data de Criação", "Created At", "Data"}, true}
	kiwifyStatus    = column{[]string{"Status"}, true}
	kiwifyBasePrice = column{[]string{"Preço base do produto"}, true}
	kiwifyFees      = column{[]string{"Taxas"}, false}
	kiwifyProduct   = column{[]string{"Produto"}, false}
	kiwifyStatuses  = []string{"paid"}
)

// salesLayout describes one platform export.
type salesLayout struct {
	platform string
	source   core.Source
	date     column
	status   column
	product  column
	statuses []string
	values   []column
	// amounts returns net and gross for a row given the resolved value
	// column indices, in the order of values.
	amounts func(row []string, idx []int) (net, gross decimal.Decimal, ok bool)
}

var hotmartLayout = salesLayout{
	platform: "hotmart",
	source:   core.SourceHotmart,
	date:     hotmartDate,
	status:   hotmartStatus,
	product:  hotmartProduct,
	statuses: hotmartStatuses,
	values:   []column{hotmartProducer, hotmartCoProd},
	amounts: func(row []string, idx []int) (decimal.Decimal, decimal.Decimal, bool) {
		net := amountOrZero(sheets.SafeGet(row, idx[0])).Add(amountOrZero(sheets.SafeGet(row, idx[1])))
		return net, net, true
	},
}

var kiwifyLayout = salesLayout{
	platform: "kiwify",
	source:   core.SourceKiwify,
	date:     kiwifyDate,
	status:   kiwifyStatus,
	product:  kiwifyProduct,
	statuses: kiwifyStatuses,
	values:   []column{kiwifyBasePrice, kiwifyFees},
	amounts: func(row []string, idx []int) (decimal.Decimal, decimal.Decimal, bool) {
		base, err := amountOrZeroStrict(sheets.SafeGet(row, idx[0]))
		if err != nil {
			return decimal.Zero, decimal.Zero, false
		}
		fees, err := amountOrZeroStrict(sheets.SafeGet(row, idx[1]))
		if err != nil {
			return decimal.Zero, decimal.Zero, false
		}
		return base.Sub(fees), base, true
	},
}

// ParseHotmart extracts approved or complete sales from a Hotmart export.
// Net revenue is the producer share plus the co-producer share; Hotmart has
// no separate gross, so gross equals net.
func ParseHotmart(m sheets.Matrix) ([]core.SaleRow, error) {
	return parseSales(m, hotmartLayout)
}

// ParseKiwify extracts paid sales from a Kiwify export. Net is base price
// minus fees and gross is the base price.
func ParseKiwify(m sheets.Matrix) ([]core.SaleRow, error) {
	return parseSales(m, kiwifyLayout)
}

func parseSales(m sheets.Matrix, l salesLayout) ([]core.SaleRow, error) {
	hr := firstNonEmptyRow(m)
	header := m.Row(hr)

	dateCol := resolve(header, l.date)
	statusCol := resolve(header, l.status)
	productCol := resolve(header, l.product)
	valueCols := make([]int, len(l.values))
	for i, c := range l.values {
		valueCols[i] = resolve(header, c)
	}

	var missing []string
	for _, c := range append([]column{l.date, l.status}, l.values...) {
		if c.required && resolve(header, c) == -1 {
			missing = append(missing, c.spellings[0])
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Platform: l.platform, Missing: missing, Headers: trimAll(header)}
	}

	stats := NoValidTransactionsError{
		Platform:     l.platform,
		Statuses:     l.statuses,
		ValueColumns: valueSpellings(l),
	}
	var out []core.SaleRow
	for r := hr + 1; r < len(m); r++ {
		row := m[r]
		if isBlank(row) {
			continue
		}
		stats.RowsSeen++

		status := lower(sheets.SafeGet(row, statusCol))
		if !contains(l.statuses, status) {
			stats.SkippedStatus++
			continue
		}

		rawDate := sheets.SafeGet(row, dateCol)
		if rawDate == "" {
			stats.SkippedDate++
			continue
		}
		date, err := normalizedDate(rawDate)
		if err != nil {
			stats.SkippedDate++
			continue
		}

		net, gross, ok := l.amounts(row, valueCols)
		if !ok || !net.IsPositive() {
			stats.SkippedValue++
			continue
		}

		product := sheets.SafeGet(row, productCol)
		if product == "" {
			product = core.UnknownProduct
		}

		out = append(out, core.SaleRow{
			Date:    date,
			Product: product,
			Net:     net,
			Gross:   gross,
			Source:  l.source,
		})
	}

	slog.Debug("Sales parsed",
		log.FieldComponent, log.ComponentParser,
		"platform", l.platform,
		"rows_seen", stats.RowsSeen,
		"skipped_status", stats.SkippedStatus,
		"skipped_date", stats.SkippedDate,
		"skipped_value", stats.SkippedValue,
		"parsed", len(out))

	if len(out) == 0 {
		return nil, &stats
	}
	return out, nil
}

func resolve(header []string, c column) int {
	for _, name := range c.spellings {
		if i := sheets.IndexOf(header, name); i != -1 {
			return i
		}
	}
	return -1
}

// amountOrZero parses a revenue cell, treating empty or unparsable cells as 0.
func amountOrZero(s string) decimal.Decimal {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// amountOrZeroStrict treats an empty cell as 0 but rejects garbage.
func amountOrZeroStrict(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrUnparsableAmount
	}
	return d, nil
}

func firstNonEmptyRow(m sheets.Matrix) int {
	for i, row := range m {
		if !isBlank(row) {
			return i
		}
	}
	return -1
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func trimAll(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func valueSpellings(l salesLayout) []string {
	out := make([]string, len(l.values))
	for i, c := range l.values {
		out[i] = c.spellings[0]
	}
	return out
}
