// Package backend assembles the storage and the outbound adapters selected
// by configuration.
package backend

import (
	"context"

	"presupuestos/internal/blob"
	"presupuestos/internal/budget"
	"presupuestos/internal/sheets"
)

// BackendType selects the budget store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (t BackendType) IsValid() bool {
	return t == SQLiteBackend || t == MemoryBackend
}

func (t BackendType) String() string { return string(t) }

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult holds everything a binary needs to run the budget engine.
type BackendResult struct {
	Store    budget.Store
	Receipts blob.Store
	// Rows is nil when no remote budget workbook is configured.
	Rows    sheets.RowSource
	Reports sheets.ReportWriter
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string

	BlobServiceURL string
	BlobContainer  string

	GoogleSpreadsheetID string
	GoogleImportSheet   string
	GoogleExportSheet   string
	FiscalYear          int

	// ExportDir receives CSV reports when no spreadsheet is configured.
	ExportDir string
	// SeedDir holds presupuesto.csv, the import source of the memory
	// backend when no spreadsheet is configured.
	SeedDir string
}
