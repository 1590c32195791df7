package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CellKind tells which representation a cell carries.
type CellKind int

const (
	CellAbsent CellKind = iota
	CellFormatted
	CellRaw
)

// Cell is a decoded spreadsheet cell.
type Cell struct {
	Kind CellKind
	Text string
}

func Formatted(s string) Cell { return Cell{Kind: CellFormatted, Text: s} }
func Raw(s string) Cell       { return Cell{Kind: CellRaw, Text: s} }

// String returns the display value: formatted text, else raw text, else "".
func (c Cell) String() string {
	if c.Kind == CellAbsent {
		return ""
	}
	return c.Text
}

// NewCell classifies a cell that may carry a formatted value f and a raw
// value v. Formatted wins when non-empty; a raw value whose string form is
// empty counts as absent.
func NewCell(f string, v any) Cell {
	if f != "" {
		return Formatted(f)
	}
	if s := rawString(v); s != "" {
		return Raw(s)
	}
	return Cell{}
}

func rawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return t.String()
		}
		return formatNumber(f)
	case float64:
		return formatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatNumber renders a number in its shortest decimal form, so 101.0 is
// "101" and 1e3 is "1000".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// UnmarshalJSON decodes a gviz cell: null, or {"v": ..., "f": "..."}.
func (c *Cell) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = Cell{}
		return nil
	}
	var wire struct {
		V any    `json:"v"`
		F string `json:"f"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return err
	}
	*c = NewCell(wire.F, wire.V)
	return nil
}
