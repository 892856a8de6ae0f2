package parsers

import (
	"log/slog"
	"strings"

	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/sheets"
)

// Meta Ads exports put the header on row 2 in the default layout, with the
// reporting start date at column 19 and the amount spent at column 11.
const (
	defaultHeaderRow = 2
	fastDateCol      = 19
	fastAmountCol    = 11
)

var defaultHeaderRows = []int{2, 1, 0, 3, 4, 5, 6, 7, 8, 9}

var (
	adDateLabels   = []string{"início dos relatórios", "inicio dos relatorios", "reporting starts"}
	adAmountLabels = []string{"valor usado", "amount spent", "valor gasto", "investimento"}

	fastDateLabels   = []string{"início", "reporting"}
	fastAmountLabels = []string{"valor usado", "amount spent"}
)

// ParseAdSpend extracts daily investment rows from a Meta Ads export.
// headerRow pins the header row (0-based); nil tries the usual positions.
// Rows on the same date are kept separate.
func ParseAdSpend(m sheets.Matrix, headerRow *int) ([]core.AdSpendRow, error) {
	candidates := defaultHeaderRows
	if headerRow != nil {
		candidates = []int{*headerRow}
	}

	for _, hr := range candidates {
		header := m.Row(hr)
		if len(header) == 0 {
			continue
		}
		dateCol, amountCol := locateAdColumns(header, hr)
		if dateCol == -1 || amountCol == -1 {
			continue
		}

		var out []core.AdSpendRow
		for r := hr + 1; r < len(m); r++ {
			row, ok := parseAdRow(m[r], dateCol, amountCol)
			if ok {
				out = append(out, row)
			}
		}
		if len(out) > 0 {
			slog.Debug("Ad spend parsed", log.FieldComponent, log.ComponentParser, "header_row", hr, "rows", len(out))
			return out, nil
		}
	}

	return nil, &HeaderNotFoundError{
		Tried:        candidates,
		DateLabels:   append(append([]string(nil), adDateLabels...), "data"),
		AmountLabels: adAmountLabels,
	}
}

func locateAdColumns(header []string, hr int) (dateCol, amountCol int) {
	dateCol, amountCol = -1, -1
	if hr == defaultHeaderRow {
		if containsAny(lower(sheets.SafeGet(header, fastDateCol)), fastDateLabels) {
			dateCol = fastDateCol
		}
		if containsAny(lower(sheets.SafeGet(header, fastAmountCol)), fastAmountLabels) {
			amountCol = fastAmountCol
		}
	}
	if dateCol != -1 && amountCol != -1 {
		return dateCol, amountCol
	}

	for i, h := range header {
		h = lower(h)
		if dateCol == -1 && isAdDateHeader(h) {
			dateCol = i
		}
		if amountCol == -1 && containsAny(h, adAmountLabels) {
			amountCol = i
		}
	}
	return dateCol, amountCol
}

func isAdDateHeader(h string) bool {
	if containsAny(h, adDateLabels) {
		return true
	}
	return strings.Contains(h, "data") && len([]rune(h)) < 10
}

func parseAdRow(row []string, dateCol, amountCol int) (core.AdSpendRow, bool) {
	rawDate := sheets.SafeGet(row, dateCol)
	if rawDate == "" || amountCol >= len(row) {
		return core.AdSpendRow{}, false
	}
	amount, err := core.ParsePositiveAmount(sheets.SafeGet(row, amountCol))
	if err != nil {
		return core.AdSpendRow{}, false
	}
	date, err := normalizedDate(rawDate)
	if err != nil {
		return core.AdSpendRow{}, false
	}
	return core.AdSpendRow{Date: date, Investment: amount}, true
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
