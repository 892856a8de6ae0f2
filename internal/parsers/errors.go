package parsers

import (
	"errors"
	"fmt"
	"strings"
)

// Row-level problems. They are recovered by skipping the row and never
// returned from a parser.
var (
	ErrMalformedDate    = errors.New("malformed date")
	ErrUnparsableAmount = errors.New("unparsable amount")
)

// HeaderNotFoundError means no candidate header row had both a date and an
// amount column.
type HeaderNotFoundError struct {
	Tried        []int
	DateLabels   []string
	AmountLabels []string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("required columns not found: expected a date column (%s) and an amount column (%s) in header rows %v; try passing the header row explicitly",
		quoteJoin(e.DateLabels), quoteJoin(e.AmountLabels), e.Tried)
}

// MissingColumnsError means the sales header row lacks required columns.
type MissingColumnsError struct {
	Platform string
	Missing  []string
	Headers  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: required columns not found: %s; got headers=%v",
		e.Platform, quoteJoin(e.Missing), e.Headers)
}

// NoValidTransactionsError means the file was readable but no row passed
// the status and value filters.
type NoValidTransactionsError struct {
	Platform      string
	Statuses      []string
	ValueColumns  []string
	RowsSeen      int
	SkippedStatus int
	SkippedDate   int
	SkippedValue  int
}

func (e *NoValidTransactionsError) Error() string {
	return fmt.Sprintf("%s: no valid transactions found in %d rows: expected status %s and a positive value in %s (skipped: status=%d date=%d value=%d)",
		e.Platform, e.RowsSeen, quoteJoin(e.Statuses), quoteJoin(e.ValueColumns),
		e.SkippedStatus, e.SkippedDate, e.SkippedValue)
}

// IsParseError reports whether err is one of the file-level parse errors.
func IsParseError(err error) bool {
	var h *HeaderNotFoundError
	var m *MissingColumnsError
	var n *NoValidTransactionsError
	return errors.As(err, &h) || errors.As(err, &m) || errors.As(err, &n)
}

func quoteJoin(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, " or ")
}
