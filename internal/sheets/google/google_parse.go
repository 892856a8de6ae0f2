package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "painel/internal/sheets"
)

func toMatrix(values [][]interface{}) ports.Matrix {
	out := make(ports.Matrix, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

// toStrings renders API values the way an XLSX raw read would: numbers
// without exponent or trailing zeros.
func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(x)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(x))
		}
	}
	return out
}
