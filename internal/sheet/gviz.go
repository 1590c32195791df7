package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	applog "github.com/elpatron68/sheetdash/internal/log"
)

const gvizBase = "https://docs.google.com/spreadsheets/d/"

// GvizURL builds the visualization query export URL for a sheet tab and range.
func GvizURL(sheetID, sheetName, rng string) string {
	q := url.Values{}
	q.Set("tqx", "out:json")
	if sheetName != "" {
		q.Set("sheet", sheetName)
	}
	if rng != "" {
		q.Set("range", rng)
	}
	return gvizBase + url.PathEscape(sheetID) + "/gviz/tq?" + q.Encode()
}

// GvizSource reads rows from the gviz JSON export of a published sheet.
type GvizSource struct {
	url    string
	client *http.Client
}

func NewGvizSource(u string, client *http.Client) *GvizSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &GvizSource{url: u, client: client}
}

type gvizResponse struct {
	Status string `json:"status"`
	Table  *struct {
		Rows []Row `json:"rows"`
	} `json:"table"`
}

func (s *GvizSource) FetchRows(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Kind: ErrTransport, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, StatusCode: resp.StatusCode, Err: err}
	}
	applog.Debugf("gviz fetch: status=%d bytes=%d", resp.StatusCode, len(body))
	return DecodeGviz(body)
}

// DecodeGviz parses a gviz response. The payload is wrapped in a JSONP
// callback, so only the text between the first '{' and the last '}' is
// decoded.
func DecodeGviz(body []byte) ([]Row, error) {
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return nil, &FetchError{Kind: ErrParse, Err: fmt.Errorf("no JSON object in response")}
	}
	var parsed gvizResponse
	if err := json.Unmarshal(body[start:end+1], &parsed); err != nil {
		return nil, &FetchError{Kind: ErrParse, Err: err}
	}
	if parsed.Status != "ok" {
		return nil, &FetchError{Kind: ErrStatus, Err: fmt.Errorf("status %q", parsed.Status)}
	}
	if parsed.Table == nil {
		return nil, &FetchError{Kind: ErrParse, Err: fmt.Errorf("response has no table")}
	}
	return parsed.Table.Rows, nil
}
