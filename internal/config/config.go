package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets import source and export sink
	GoogleSpreadsheetID string
	GoogleImportSheet   string
	GoogleExportSheet   string

	// Receipt blob store
	BlobServiceURL string
	BlobContainer  string

	// Access and overflow policy
	PolicyFile string
	FiscalYear int

	// Outbox relay
	OutboxBatchSize    int
	OutboxPollInterval time.Duration

	ReportCacheTTL time.Duration
	LogLevel       string
}

var validBackends = []string{"memory", "sqlite"}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/presupuestos.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "presupuestos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleImportSheet:   getEnv("GOOGLE_IMPORT_SHEET", "Presupuesto"),
		GoogleExportSheet:   getEnv("GOOGLE_EXPORT_SHEET", "Reporte"),

		BlobServiceURL: getEnv("BLOB_SERVICE_URL", ""),
		BlobContainer:  getEnv("BLOB_CONTAINER", "facturas"),

		PolicyFile: getEnv("POLICY_FILE", ""),
		FiscalYear: getEnvInt("FISCAL_YEAR", time.Now().Year()),

		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 20),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),

		ReportCacheTTL: getEnvDuration("REPORT_CACHE_TTL", 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && (c.GoogleImportSheet == "" || c.GoogleExportSheet == "") {
		errs = append(errs, "Google import and export sheet names are required when a spreadsheet ID is set")
	}

	if c.BlobServiceURL != "" {
		if u, err := url.Parse(c.BlobServiceURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid blob service URL '%s'", c.BlobServiceURL))
		}
		if c.BlobContainer == "" {
			errs = append(errs, "blob container cannot be empty when a blob service URL is provided")
		}
	}

	if c.PolicyFile != "" {
		if _, err := os.Stat(c.PolicyFile); err != nil {
			errs = append(errs, fmt.Sprintf("policy file does not exist: %s", c.PolicyFile))
		}
	}

	if c.FiscalYear < 2000 || c.FiscalYear > 2100 {
		errs = append(errs, fmt.Sprintf("invalid fiscal year %d: must be between 2000 and 2100", c.FiscalYear))
	}

	if c.OutboxBatchSize < 1 || c.OutboxBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid outbox batch size %d: must be between 1 and 1000", c.OutboxBatchSize))
	}
	if c.OutboxPollInterval < 100*time.Millisecond || c.OutboxPollInterval > time.Hour {
		errs = append(errs, fmt.Sprintf("invalid outbox poll interval %v: must be between 100ms and 1h", c.OutboxPollInterval))
	}
	if c.ReportCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid report cache TTL %v: must not be negative", c.ReportCacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
