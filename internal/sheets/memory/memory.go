package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ports "painel/internal/sheets"
)

// Reader serves matrices from memory, falling back to "<id>.csv" or
// "<id>.xlsx" files under a base directory. It stands in for Google Sheets
// in local setups and tests.
type Reader struct {
	mu    sync.Mutex
	base  string
	items map[string]ports.Matrix
}

var _ ports.MatrixReader = (*Reader)(nil)

func New() *Reader {
	return &Reader{items: map[string]ports.Matrix{}}
}

func NewFromDir(base string) *Reader {
	r := New()
	r.base = base
	return r
}

// Put registers a matrix for a spreadsheet id and range.
func (r *Reader) Put(spreadsheetID, rng string, m ports.Matrix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key(spreadsheetID, rng)] = m
}

func (r *Reader) ReadMatrix(_ context.Context, spreadsheetID, rng string) (ports.Matrix, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	r.mu.Lock()
	m, ok := r.items[key(spreadsheetID, rng)]
	r.mu.Unlock()
	if ok {
		return cloneMatrix(m), nil
	}
	if r.base == "" || strings.ContainsAny(spreadsheetID, `/\`) {
		return nil, fmt.Errorf("spreadsheet %q not found", spreadsheetID)
	}
	for _, ext := range []string{".csv", ".xlsx"} {
		data, err := os.ReadFile(filepath.Join(r.base, spreadsheetID+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read spreadsheet %q: %w", spreadsheetID, err)
		}
		return ports.Decode(data)
	}
	return nil, fmt.Errorf("spreadsheet %q not found in %s", spreadsheetID, r.base)
}

func key(id, rng string) string {
	return strings.TrimSpace(id) + "!" + strings.TrimSpace(rng)
}

func cloneMatrix(m ports.Matrix) ports.Matrix {
	out := make(ports.Matrix, len(m))
	for i, row := range m {
		out[i] = append([]string(nil), row...)
	}
	return out
}
