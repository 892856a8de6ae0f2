package sheets

import (
	"context"
	"strings"
)

// Matrix is the cell grid of one worksheet, row major. Rows may have
// different lengths; missing cells read as "".
type Matrix [][]string

// Ports for spreadsheet sources other than uploaded files.
type (
	// MatrixReader returns the cells of a spreadsheet range, for example
	// "Vendas!A1:Z" on a Google spreadsheet.
	MatrixReader interface {
		ReadMatrix(ctx context.Context, spreadsheetID, rng string) (Matrix, error)
	}
)

// Cell returns the trimmed value at row r, column c or "" when out of range.
func (m Matrix) Cell(r, c int) string {
	if r < 0 || r >= len(m) {
		return ""
	}
	return SafeGet(m[r], c)
}

// Row returns row r or nil when out of range.
func (m Matrix) Row(r int) []string {
	if r < 0 || r >= len(m) {
		return nil
	}
	return m[r]
}

// IndexOf finds target in a header row, ignoring case and surrounding space.
func IndexOf(headers []string, target string) int {
	for i, v := range headers {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

// SafeGet returns the trimmed cell at idx or "" when out of range.
func SafeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
