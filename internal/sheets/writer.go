package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/report"
	"github.com/Veraticus/tally/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ReportWriter renders a ledger report somewhere.
type ReportWriter interface {
	Write(ctx context.Context, l *report.Ledger) error
}

// Writer writes ledger reports to a Google spreadsheet, one tab per report table.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		config:  config,
		service: srv,
		logger:  logger.With("component", "sheets"),
	}, nil
}

// Write replaces the contents of every report tab.
func (w *Writer) Write(ctx context.Context, l *report.Ledger) error {
	tables := l.Tables()
	w.logger.Info("starting report export",
		"transactions", len(l.Transactions),
		"date_range", fmt.Sprintf("%s to %s", l.Start.Format(time.DateOnly), l.End.Format(time.DateOnly)))

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}

	spreadsheetID, sheetIDs, err := w.prepareSpreadsheet(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to prepare spreadsheet: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 1
	}

	rows := 0
	for _, t := range tables {
		values := tableValues(t)
		err := common.WithRetry(ctx, func() error {
			if err := w.clearTab(ctx, spreadsheetID, t.Name); err != nil {
				return err
			}
			return w.writeData(ctx, spreadsheetID, t.Name, values)
		}, retryOpts)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", t.Name, err)
		}
		rows += len(values)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, tables, sheetIDs)
		}, retryOpts)
		if err != nil {
			// Data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report export completed",
		"spreadsheet_id", spreadsheetID,
		"tabs", len(tables),
		"rows_written", rows)
	return nil
}

// tableValues turns a report table into sheet rows: the header then every row.
func tableValues(t report.Table) [][]any {
	values := make([][]any, 0, len(t.Rows)+1)

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	values = append(values, header)

	for _, row := range t.Rows {
		out := make([]any, len(row))
		for i, cell := range row {
			out[i] = report.Cell(cell)
		}
		values = append(values, out)
	}
	return values
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// prepareSpreadsheet opens the configured spreadsheet (or creates one) and
// makes sure every named tab exists. It returns the sheet id of each tab.
func (w *Writer) prepareSpreadsheet(ctx context.Context, names []string) (string, map[string]int64, error) {
	if w.config.SpreadsheetID == "" {
		return w.createSpreadsheet(ctx, names)
	}

	existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
	}

	ids := make(map[string]int64, len(names))
	for _, s := range existing.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	var requests []*sheets.Request
	for _, name := range missingTabs(names, ids) {
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
		})
	}
	if len(requests) > 0 {
		resp, err := w.service.Spreadsheets.BatchUpdate(w.config.SpreadsheetID,
			&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
		if err != nil {
			return "", nil, fmt.Errorf("unable to add tabs: %w", err)
		}
		for _, r := range resp.Replies {
			if r.AddSheet != nil {
				ids[r.AddSheet.Properties.Title] = r.AddSheet.Properties.SheetId
			}
		}
		w.logger.Debug("added tabs", "count", len(requests))
	}

	return w.config.SpreadsheetID, ids, nil
}

func (w *Writer) createSpreadsheet(ctx context.Context, names []string) (string, map[string]int64, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
	}
	for _, name := range names {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: name},
		})
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	ids := make(map[string]int64, len(created.Sheets))
	for _, s := range created.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)
	return created.SpreadsheetId, ids, nil
}

func missingTabs(names []string, existing map[string]int64) []string {
	var missing []string
	for _, name := range names {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func (w *Writer) clearTab(ctx context.Context, spreadsheetID, tab string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, tabRange(tab, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// writeData writes values to a tab in batches to stay under API limits.
func (w *Writer) writeData(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := i + w.config.BatchSize
		if end > len(values) {
			end = len(values)
		}

		batch := values[i:end]
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, tabRange(tab, fmt.Sprintf("A%d", i+1)),
			&sheets.ValueRange{Values: batch}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "tab", tab, "start_row", i+1, "rows", len(batch))
	}
	return nil
}

func tabRange(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", tab, cells)
}

// applyFormatting bolds and freezes every header row and auto-sizes the columns.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, tables []report.Table, sheetIDs map[string]int64) error {
	requests := make([]*sheets.Request, 0, len(tables)*3)
	for _, t := range tables {
		id, ok := sheetIDs[t.Name]
		if !ok {
			continue
		}
		requests = append(requests, formattingRequests(id, len(t.Header))...)
	}
	if len(requests) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}

func formattingRequests(sheetID int64, columns int) []*sheets.Request {
	return []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}
}
