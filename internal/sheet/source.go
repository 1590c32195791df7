package sheet

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/elpatron68/sheetdash/internal/config"
)

// Source delivers the raw rows of the task sheet, header row included.
type Source interface {
	FetchRows(ctx context.Context) ([]Row, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Row, error)

func (f SourceFunc) FetchRows(ctx context.Context) ([]Row, error) { return f(ctx) }

// NewFromConfig builds the source selected by cfg.Source.Kind.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Source, error) {
	sc := cfg.Source
	switch strings.ToLower(strings.TrimSpace(sc.Kind)) {
	case "", config.SourceGviz:
		u := sc.URL
		if u == "" {
			if sc.SheetID == "" {
				return nil, fmt.Errorf("source: sheetId or url required")
			}
			u = GvizURL(sc.SheetID, sc.SheetName, sc.Range)
		}
		return NewGvizSource(u, &http.Client{Timeout: sc.Timeout}), nil
	case config.SourceSheetsAPI:
		if sc.SheetID == "" {
			return nil, fmt.Errorf("source: sheetId required for kind %q", sc.Kind)
		}
		return NewAPISource(ctx, APIConfig{
			SpreadsheetID:   sc.SheetID,
			Range:           a1Range(sc.SheetName, sc.Range),
			CredentialsFile: sc.CredentialsFile,
			APIKey:          sc.APIKey,
			Endpoint:        sc.URL,
			Timeout:         sc.Timeout,
		})
	default:
		return nil, fmt.Errorf("source: unknown kind %q", sc.Kind)
	}
}

func a1Range(sheetName, rng string) string {
	if sheetName == "" {
		return rng
	}
	if rng == "" {
		return sheetName
	}
	return sheetName + "!" + rng
}
