package sheets

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrEmptySheet        = errors.New("spreadsheet has no rows")
)

// zip local file header; every XLSX workbook starts with it.
var zipMagic = []byte("PK\x03\x04")

// utf-8 byte order mark written by spreadsheet exporters.
var bom = []byte("\xef\xbb\xbf")

// Decode reads the first worksheet of an XLSX workbook or a CSV file.
// XLSX cells are returned unformatted so numbers and date serials come
// through as stored; CSV delimiter is sniffed between ';', ',' and tab.
func Decode(data []byte) (Matrix, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptySheet
	}
	if bytes.HasPrefix(data, zipMagic) {
		return decodeXLSX(data)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not a workbook and not utf-8 text", ErrUnsupportedFormat)
	}
	return decodeCSV(bytes.TrimPrefix(data, bom))
}

func decodeXLSX(data []byte) (Matrix, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return Matrix(rows), nil
}

func decodeCSV(data []byte) (Matrix, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out Matrix
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrUnsupportedFormat, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrEmptySheet
	}
	return out, nil
}

// sniffDelimiter picks the candidate that occurs most often on the first line.
func sniffDelimiter(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
