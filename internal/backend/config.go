package backend

import (
	"fmt"
	"path/filepath"

	"presupuestos/internal/config"
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

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		BlobServiceURL: appConfig.BlobServiceURL,
		BlobContainer:  appConfig.BlobContainer,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleImportSheet:   appConfig.GoogleImportSheet,
		GoogleExportSheet:   appConfig.GoogleExportSheet,
		FiscalYear:          appConfig.FiscalYear,

		ExportDir: filepath.Join(filepath.Dir(appConfig.SQLiteDBPath), "reportes"),
		SeedDir:   filepath.Dir(appConfig.SQLiteDBPath),
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q: must be one of %v", c.Type, GetBackendTypes())
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if c.GoogleSpreadsheetID == "" && c.ExportDir == "" {
		return fmt.Errorf("an export directory is required when no spreadsheet is configured")
	}
	if c.GoogleSpreadsheetID != "" && c.FiscalYear == 0 {
		return fmt.Errorf("fiscal year is required for the Google Sheets workbook")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
