package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"presupuestos/internal/core"
	"presupuestos/internal/export"
	ports "presupuestos/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name of the budget tab; the fiscal year is prefixed ("2025 Presupuesto").
	importSheet string
	// Prefix of the report tabs written by WriteReport.
	exportPrefix string
	year         int
}

// Ensure interface conformance
var (
	_ ports.RowSource    = (*Client)(nil)
	_ ports.ReportWriter = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	SpreadsheetID string
	ImportSheet   string
	ExportPrefix  string
	FiscalYear    int
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.ImportSheet == "" {
		opts.ImportSheet = "Presupuesto"
	}
	if opts.ExportPrefix == "" {
		opts.ExportPrefix = "Reporte"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		importSheet:   yearPrefixedName(opts.ImportSheet, opts.FiscalYear),
		exportPrefix:  opts.ExportPrefix,
		year:          opts.FiscalYear,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadRows implements ports.RowSource. The first row of the budget tab is
// the header.
func (c *Client) ReadRows(ctx context.Context) ([]ports.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("'%s'!A:Z", c.importSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := rowsFromValues(resp.Values)
	slog.InfoContext(ctx, "Read budget rows from Google Sheets", "sheet", c.importSheet, "rows", len(rows))
	return rows, nil
}

// WriteReport implements ports.ReportWriter. Each store/view pair owns one
// tab, created on first use and overwritten afterwards.
func (c *Client) WriteReport(ctx context.Context, rep core.Report) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := c.tabTitle(rep.Query)
	if err := c.ensureSheet(ctx, title); err != nil {
		return err
	}

	clearRng := fmt.Sprintf("'%s'!A:E", title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRng, err)
	}

	rng := fmt.Sprintf("'%s'!A1", title)
	vr := &gsheet.ValueRange{Values: reportValues(rep)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Report written to Google Sheets", "sheet", title, "rows", len(vr.Values))
	return nil
}

func (c *Client) tabTitle(q core.ReportQuery) string {
	title := export.Title(q)
	if c.exportPrefix != "" && c.exportPrefix != "Reporte" {
		title = c.exportPrefix + strings.TrimPrefix(title, "Reporte")
	}
	return title
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	return nil
}

// rowsFromValues converts a values matrix (as returned by the Sheets API)
// into header-keyed rows. Fully blank rows are dropped.
func rowsFromValues(values [][]interface{}) []ports.Row {
	if len(values) == 0 {
		return nil
	}
	header := toStrings(values[0])
	var rows []ports.Row
	for _, raw := range values[1:] {
		cells := toStrings(raw)
		if strings.TrimSpace(strings.Join(cells, "")) == "" {
			continue
		}
		rows = append(rows, ports.Zip(header, cells))
	}
	return rows
}

// reportValues converts export rows, keeping amounts numeric so the sheet
// can sum them.
func reportValues(rep core.Report) [][]interface{} {
	rows := export.Rows(rep)
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if i > 0 && j >= 2 {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cells[j] = f
					continue
				}
			}
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" || year == 0 {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
