// Package parsers turns spreadsheet matrices exported by Meta Ads, Hotmart
// and Kiwify into canonical rows.
package parsers

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"painel/internal/core"
	"painel/internal/log"
)

const isoLayout = "2006-01-02"

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Layouts tried after the explicit encodings. The time of day has already
// been cut at the first space, so only single-token layouts apply.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-1-2",
	"2006.01.02",
	"02-Jan-2006",
}

// NormalizeDate converts a raw date cell into YYYY-MM-DD. It never fails:
// when no encoding matches it returns the date part unchanged and logs a
// warning, leaving rejection to the ISO shape check of the caller.
//
// Encodings, first match wins: DD/MM/YYYY (time of day dropped), ISO,
// spreadsheet serial day numbers and a few generic layouts.
func NormalizeDate(raw string) string {
	datePart := strings.TrimSpace(raw)
	if i := strings.IndexByte(datePart, ' '); i >= 0 {
		datePart = datePart[:i]
	}

	if strings.Contains(datePart, "/") {
		if d, err := fromDayMonthYear(datePart); err == nil {
			return d
		}
		slog.Warn("Could not normalize date", log.FieldComponent, log.ComponentParser, "input", raw)
		return datePart
	}

	if len(datePart) == 10 && strings.Contains(datePart, "-") {
		return datePart
	}

	if n, ok := serialDay(datePart); ok {
		return excelEpoch.AddDate(0, 0, n).Format(isoLayout)
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, datePart); err == nil {
			return t.Format(isoLayout)
		}
	}

	slog.Warn("Could not normalize date", log.FieldComponent, log.ComponentParser, "input", raw)
	return datePart
}

// serialDay reads a spreadsheet serial such as "45520" or, for datetime
// cells, "45520.51342". The time of day is dropped.
func serialDay(s string) (int, bool) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !allDigits(whole) || (hasFrac && !allDigits(frac)) {
		return 0, false
	}
	n, err := strconv.Atoi(whole)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fromDayMonthYear rewrites D/M/YYYY into YYYY-MM-DD with zero padding.
func fromDayMonthYear(s string) (string, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	day, month, year := parts[0], parts[1], parts[2]
	if day == "" || month == "" || year == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return year + "-" + pad2(month) + "-" + pad2(day), nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// normalizedDate is NormalizeDate followed by the ISO shape check and a
// calendar check, so "2025-13-15" or "2025-02-30" is a skipped row rather
// than a bad month bucket.
func normalizedDate(raw string) (string, error) {
	d := NormalizeDate(raw)
	if !core.IsISODate(d) {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	if _, err := time.Parse(isoLayout, d); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	return d, nil
}
