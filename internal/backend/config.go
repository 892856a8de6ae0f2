package backend

import (
	"fmt"
	"time"

	"painel/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	source := SheetsSource(appConfig.SheetsSource)
	if !source.IsValid() {
		return Config{}, fmt.Errorf("invalid sheets source in config: %s", appConfig.SheetsSource)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		SheetsSource: source,
		SheetsDir:    appConfig.SheetsDir,

		ReportCacheSize:      appConfig.ReportCacheSize,
		ReportCacheTTL:       appConfig.ReportCacheTTL,
		CacheCleanupInterval: appConfig.ReportCacheTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	switch c.SheetsSource {
	case SheetsDisabled, SheetsGoogle:
	case SheetsDir:
		if c.SheetsDir == "" {
			return fmt.Errorf("sheets directory is required when the sheets source is %q", SheetsDir)
		}
	default:
		return fmt.Errorf("invalid sheets source: %s", c.SheetsSource)
	}

	if c.ReportCacheSize < 1 {
		return fmt.Errorf("report cache size must be at least 1, got %d", c.ReportCacheSize)
	}
	if c.ReportCacheTTL <= 0 {
		return fmt.Errorf("report cache TTL must be positive, got %v", c.ReportCacheTTL)
	}
	return nil
}

func (c Config) cleanupInterval() time.Duration {
	if c.CacheCleanupInterval > 0 {
		return c.CacheCleanupInterval
	}
	return c.ReportCacheTTL
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
