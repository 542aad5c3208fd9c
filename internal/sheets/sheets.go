// Package sheets stores leads in a Google Sheets worksheet, or in memory for
// rehearsals and tests. Rows are addressed by their 1-based sheet row and
// fields by header name.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const defaultRetryDelay = 3 * time.Second

// valuesAPI abstracts the Sheets values endpoints we use, enabling test mocks.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheetsapi.ValueRange) error
}

// googleValues wraps *sheetsapi.Service to implement valuesAPI.
type googleValues struct {
	svc *sheetsapi.Service
}

func (g *googleValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleValues) BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheetsapi.ValueRange) error {
	// RAW keeps dates as typed text; USER_ENTERED would reformat them per locale.
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

// Store is a lead store backed by one worksheet.
type Store struct {
	api           valuesAPI
	spreadsheetID string
	worksheet     string
	retryDelay    time.Duration
	log           *slog.Logger
}

// Opts holds parameters for creating a Store.
type Opts struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string // service account JSON key
	Logger          *slog.Logger
	// For testing: inject a values API and skip credential loading.
	API        valuesAPI
	RetryDelay time.Duration
}

// New creates a Store authenticated with a service account key.
func New(ctx context.Context, opts Opts) (*Store, error) {
	if opts.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if opts.Worksheet == "" {
		return nil, fmt.Errorf("sheets: worksheet name is required")
	}

	s := &Store{
		api:           opts.API,
		spreadsheetID: opts.SpreadsheetID,
		worksheet:     opts.Worksheet,
		retryDelay:    opts.RetryDelay,
		log:           opts.Logger,
	}
	if s.retryDelay == 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	if s.api == nil {
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials %s: %w", opts.CredentialsFile, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets: parse credentials: %w", err)
		}
		svc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("sheets: create service: %w", err)
		}
		s.api = &googleValues{svc: svc}
	}
	return s, nil
}

// Leads returns every data row keyed by header. Rows shorter than the header
// row are padded with empty strings; interior blank rows are kept so row
// numbering stays aligned with the sheet.
func (s *Store) Leads(ctx context.Context) ([]map[string]string, error) {
	values, err := s.api.Get(ctx, s.spreadsheetID, quoteSheet(s.worksheet))
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", s.worksheet, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	headers := cellsToStrings(values[0])
	rows := make([]map[string]string, 0, len(values)-1)
	for _, raw := range values[1:] {
		cells := cellsToStrings(raw)
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UpdateFields writes updates on the given row in a single batch request.
// Header names not present in the sheet are ignored. A failed write is
// retried once.
func (s *Store) UpdateFields(ctx context.Context, row int, updates map[string]string) error {
	if row < 2 {
		return fmt.Errorf("sheets: row %d is not a data row", row)
	}

	var data []*sheetsapi.ValueRange
	err := s.withRetry(ctx, "read headers", func() error {
		headerValues, err := s.api.Get(ctx, s.spreadsheetID, quoteSheet(s.worksheet)+"!1:1")
		if err != nil {
			return err
		}
		var headers []string
		if len(headerValues) > 0 {
			headers = cellsToStrings(headerValues[0])
		}
		data = s.buildRanges(headers, row, updates)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sheets: update row %d: %w", row, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := s.withRetry(ctx, "write", func() error {
		return s.api.BatchUpdate(ctx, s.spreadsheetID, data)
	}); err != nil {
		return fmt.Errorf("sheets: update row %d: %w", row, err)
	}
	return nil
}

func (s *Store) buildRanges(headers []string, row int, updates map[string]string) []*sheetsapi.ValueRange {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup && h != "" {
			index[h] = i
		}
	}

	var data []*sheetsapi.ValueRange
	for field, value := range updates {
		col, ok := index[field]
		if !ok {
			s.log.Debug("sheets: ignoring unknown header", "header", field, "row", row)
			continue
		}
		data = append(data, &sheetsapi.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", quoteSheet(s.worksheet), columnLetter(col), row),
			Values: [][]interface{}{{value}},
		})
	}
	return data
}

// withRetry runs fn and, on failure, once more after the retry delay.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	s.log.Warn("sheets: retrying after failure", "op", op, "error", err, "delay", s.retryDelay)

	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return fn()
}

// quoteSheet quotes a worksheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnLetter converts a 0-based column index to A1 letters (0 → A, 26 → AA).
func columnLetter(i int) string {
	var b []byte
	for i++; i > 0; i = (i - 1) / 26 {
		b = append([]byte{byte('A' + (i-1)%26)}, b...)
	}
	return string(b)
}

func cellsToStrings(raw []interface{}) []string {
	out := make([]string, len(raw))
	for i, c := range raw {
		if c == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(c))
	}
	return out
}
