package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	applog "github.com/elpatron68/sheetdash/internal/log"
)

// APIConfig configures the Sheets API source.
type APIConfig struct {
	SpreadsheetID   string
	Range           string // A1 notation, e.g. "Master!A1:P"
	CredentialsFile string // service account or authorized user JSON
	APIKey          string
	Endpoint        string // override, used against test servers
	Timeout         time.Duration
	Options         []option.ClientOption
}

// APISource reads rows through spreadsheets.values.get.
type APISource struct {
	srv           *sheets.Service
	spreadsheetID string
	rng           string
	timeout       time.Duration
}

// NewAPISource creates the Sheets service. Credentials are resolved in this
// order: explicit options, credentials file, API key, application default
// credentials.
func NewAPISource(ctx context.Context, cfg APIConfig) (*APISource, error) {
	opts := append([]option.ClientOption(nil), cfg.Options...)
	switch {
	case len(cfg.Options) > 0:
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file %s: %w", cfg.CredentialsFile, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		opts = append(opts, option.WithScopes(sheets.SpreadsheetsReadonlyScope))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	applog.Debugf("sheets api source: spreadsheet=%s range=%s", cfg.SpreadsheetID, cfg.Range)
	return &APISource{srv: srv, spreadsheetID: cfg.SpreadsheetID, rng: cfg.Range, timeout: cfg.Timeout}, nil
}

func (s *APISource) FetchRows(ctx context.Context) ([]Row, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, &FetchError{Kind: ErrTransport, StatusCode: gerr.Code, Err: errors.New(gerr.Message)}
		}
		return nil, &FetchError{Kind: ErrTransport, Err: err}
	}
	if resp.HTTPStatusCode != 0 && resp.HTTPStatusCode != http.StatusOK {
		return nil, &FetchError{Kind: ErrStatus, StatusCode: resp.HTTPStatusCode}
	}
	return RowsFromValues(resp.Values), nil
}

// RowsFromValues converts a values.get matrix to rows. Strings are
// formatted cells, other values raw cells.
func RowsFromValues(values [][]interface{}) []Row {
	rows := make([]Row, 0, len(values))
	for _, vals := range values {
		cells := make([]Cell, len(vals))
		for i, v := range vals {
			if s, ok := v.(string); ok {
				cells[i] = NewCell(s, nil)
				continue
			}
			cells[i] = NewCell("", v)
		}
		rows = append(rows, Row{Cells: cells})
	}
	return rows
}
