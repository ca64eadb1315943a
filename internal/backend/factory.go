package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"presupuestos/internal/blob"
	"presupuestos/internal/budget"
	"presupuestos/internal/export"
	gsheet "presupuestos/internal/sheets/google"
	sheetsmem "presupuestos/internal/sheets/memory"
	"presupuestos/internal/storage"
	"presupuestos/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the store and the adapters. Receipts fall back to an
// in-process store and reports to CSV files when their remote services are
// not configured.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}
	res := &BackendResult{Store: store, Cleanup: store.Close}

	if err := f.attachAdapters(ctx, config, res); err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return res, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (budget.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		s, err := storage.NewSQLiteStore(ctx, config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return s, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) attachAdapters(ctx context.Context, config Config, res *BackendResult) error {
	if config.BlobServiceURL != "" {
		receipts, err := blob.NewAzureStore(ctx, config.BlobServiceURL, config.BlobContainer)
		if err != nil {
			return fmt.Errorf("failed to initialize receipt store: %w", err)
		}
		res.Receipts = receipts
	} else {
		f.logger.Warn("No blob service configured, receipts are kept in memory")
		res.Receipts = blob.NewMemoryStore()
	}

	if config.GoogleSpreadsheetID != "" {
		cli, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID: config.GoogleSpreadsheetID,
			ImportSheet:   config.GoogleImportSheet,
			ExportPrefix:  config.GoogleExportSheet,
			FiscalYear:    config.FiscalYear,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		res.Rows, res.Reports = cli, cli
		f.logger.Info("Initialized Google Sheets workbook", "spreadsheet_id", config.GoogleSpreadsheetID)
	} else {
		res.Reports = export.FileWriter{Dir: config.ExportDir}
		f.logger.Info("Reports are written as CSV files", "dir", config.ExportDir)

		if config.Type == MemoryBackend && config.SeedDir != "" {
			wb, err := sheetsmem.NewFromFiles(config.SeedDir)
			if err != nil {
				return fmt.Errorf("failed to load seed workbook: %w", err)
			}
			res.Rows = wb
		}
	}
	return nil
}
