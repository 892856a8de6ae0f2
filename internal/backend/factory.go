package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"painel/internal/cache"
	"painel/internal/core"
	"painel/internal/log"
	"painel/internal/sheets"
	gsheet "painel/internal/sheets/google"
	"painel/internal/sheets/memory"
	"painel/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. The returned Cleanup
// stops the cache loop and closes the store.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	reader, err := f.createSheetReader(ctx, config)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reports := cache.NewLRUCache[core.Report](config.ReportCacheSize, config.ReportCacheTTL)
	manager := cache.NewManager(f.logger)
	manager.Register(reports)
	manager.StartCleanup(config.cleanupInterval())

	f.logger.Info("Initialized backend",
		log.FieldComponent, log.ComponentBackend,
		"type", config.Type,
		"sheets_source", string(config.SheetsSource),
		"report_cache_size", config.ReportCacheSize,
		"report_cache_ttl", config.ReportCacheTTL)

	return &BackendResult{
		Store:   store,
		Sheets:  reader,
		Reports: reports,
		Caches:  manager,
		Cleanup: func() error {
			manager.Stop()
			return store.Close()
		},
	}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", log.FieldComponent, log.ComponentBackend, "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store, data is lost on restart", log.FieldComponent, log.ComponentBackend)
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createSheetReader returns nil when imports are disabled.
func (f *DefaultFactory) createSheetReader(ctx context.Context, config Config) (sheets.MatrixReader, error) {
	switch config.SheetsSource {
	case SheetsDisabled:
		return nil, nil
	case SheetsGoogle:
		r, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		return r, nil
	case SheetsDir:
		return memory.NewFromDir(config.SheetsDir), nil
	default:
		return nil, errors.New("unsupported sheets source: " + string(config.SheetsSource))
	}
}
