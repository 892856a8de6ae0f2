package backend

import (
	"context"
	"time"

	"painel/internal/cache"
	"painel/internal/core"
	"painel/internal/services"
	"painel/internal/sheets"
	"painel/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything a process needs to build a
// DashboardService: the bucket store, the optional spreadsheet source and
// the report cache with its expiry loop.
type BackendResult struct {
	Store   storage.Store
	Sheets  sheets.MatrixReader
	Reports *cache.LRUCache[core.Report]
	Caches  *cache.Manager
	Cleanup CleanupFunc
}

// ServiceOptions wires the cache and spreadsheet source into a service.
func (b *BackendResult) ServiceOptions() []services.Option {
	var opts []services.Option
	if b.Reports != nil {
		opts = append(opts, services.WithReportCache(b.Reports))
	}
	if b.Sheets != nil {
		opts = append(opts, services.WithSheetReader(b.Sheets))
	}
	return opts
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Spreadsheet imports
	SheetsSource SheetsSource
	SheetsDir    string

	// Report cache
	ReportCacheSize      int
	ReportCacheTTL       time.Duration
	CacheCleanupInterval time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// SheetsSource selects where ImportSheet reads spreadsheets from.
type SheetsSource string

const (
	SheetsDisabled SheetsSource = ""
	SheetsGoogle   SheetsSource = "google"
	SheetsDir      SheetsSource = "dir"
)

func (s SheetsSource) IsValid() bool {
	switch s {
	case SheetsDisabled, SheetsGoogle, SheetsDir:
		return true
	default:
		return false
	}
}
