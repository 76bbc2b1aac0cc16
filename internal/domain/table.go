package domain

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// CellRef addresses a physical cell of a table grid.
type CellRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c CellRef) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Table is the recognized structure of one table: a grid of physical cells,
// optional header overlays and a merge map collapsing several physical cells
// into one logical cell. A Table is immutable once built.
type Table struct {
	bbox       BBox
	cells      [][]string
	rowHeaders []string
	colHeaders []string
	rowBoxes   []BBox
	colBoxes   []BBox
	merges     map[CellRef][]CellRef
}

// TableOption configures optional parts of a Table.
type TableOption func(*Table)

// WithRowHeaders sets one header per row.
func WithRowHeaders(h []string) TableOption {
	return func(t *Table) { t.rowHeaders = append([]string(nil), h...) }
}

// WithColHeaders sets one header per column.
func WithColHeaders(h []string) TableOption {
	return func(t *Table) { t.colHeaders = append([]string(nil), h...) }
}

// WithRowBoxes sets the geometric boundary of every row.
func WithRowBoxes(b []BBox) TableOption {
	return func(t *Table) { t.rowBoxes = append([]BBox(nil), b...) }
}

// WithColBoxes sets the geometric boundary of every column.
func WithColBoxes(b []BBox) TableOption {
	return func(t *Table) { t.colBoxes = append([]BBox(nil), b...) }
}

// WithMerges sets the merge map.
func WithMerges(m map[CellRef][]CellRef) TableOption {
	return func(t *Table) {
		t.merges = make(map[CellRef][]CellRef, len(m))
		for k, v := range m {
			t.merges[k] = append([]CellRef(nil), v...)
		}
	}
}

// NewTable builds a table and checks its invariants: rows are rectangular,
// headers and boxes match the grid size, and every merge key and target is a
// valid physical coordinate.
func NewTable(bbox BBox, cells [][]string, opts ...TableOption) (*Table, error) {
	t := &Table{bbox: bbox, cells: make([][]string, len(cells))}
	for i, row := range cells {
		t.cells[i] = append([]string(nil), row...)
	}
	for _, o := range opts {
		o(t)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	rows, cols := t.Rows(), t.Cols()
	for i, row := range t.cells {
		if len(row) != cols {
			return t.violation(fmt.Sprintf("row %d has %d cells, want %d", i, len(row), cols))
		}
	}
	if t.rowHeaders != nil && len(t.rowHeaders) != rows {
		return t.violation(fmt.Sprintf("%d row headers for %d rows", len(t.rowHeaders), rows))
	}
	if t.colHeaders != nil && len(t.colHeaders) != cols {
		return t.violation(fmt.Sprintf("%d column headers for %d columns", len(t.colHeaders), cols))
	}
	if t.rowBoxes != nil && len(t.rowBoxes) != rows {
		return t.violation(fmt.Sprintf("%d row boxes for %d rows", len(t.rowBoxes), rows))
	}
	if t.colBoxes != nil && len(t.colBoxes) != cols {
		return t.violation(fmt.Sprintf("%d column boxes for %d columns", len(t.colBoxes), cols))
	}
	for k, targets := range t.merges {
		if !t.inGrid(k) {
			return t.violation(fmt.Sprintf("merge key %s outside %dx%d grid", k, rows, cols))
		}
		for _, c := range targets {
			if !t.inGrid(c) {
				return t.violation(fmt.Sprintf("merge target %s of %s outside %dx%d grid", c, k, rows, cols))
			}
		}
	}
	return nil
}

func (t *Table) violation(detail string) error {
	return &IntegrityViolationError{Component: "table", Page: -1, Detail: detail}
}

func (t *Table) inGrid(c CellRef) bool {
	return c.Row >= 0 && c.Row < t.Rows() && c.Col >= 0 && c.Col < t.Cols()
}

// BBox returns the table's bounding box.
func (t *Table) BBox() BBox { return t.bbox }

// Rows returns the number of physical rows.
func (t *Table) Rows() int { return len(t.cells) }

// Cols returns the number of physical columns.
func (t *Table) Cols() int {
	if len(t.cells) == 0 {
		return 0
	}
	return len(t.cells[0])
}

// RowHeaders returns a copy of the row headers, nil if absent.
func (t *Table) RowHeaders() []string { return append([]string(nil), t.rowHeaders...) }

// ColHeaders returns a copy of the column headers, nil if absent.
func (t *Table) ColHeaders() []string { return append([]string(nil), t.colHeaders...) }

// RowBoxes returns a copy of the row boundaries, nil if absent.
func (t *Table) RowBoxes() []BBox { return append([]BBox(nil), t.rowBoxes...) }

// ColBoxes returns a copy of the column boundaries, nil if absent.
func (t *Table) ColBoxes() []BBox { return append([]BBox(nil), t.colBoxes...) }

// Content returns the raw content of a physical cell.
func (t *Table) Content(row, col int) (string, bool) {
	if !t.inGrid(CellRef{row, col}) {
		return "", false
	}
	return t.cells[row][col], true
}

// MergedWith returns the physical cells a coordinate stands for, or nil
// when the cell is not merged.
func (t *Table) MergedWith(row, col int) []CellRef {
	return append([]CellRef(nil), t.merges[CellRef{row, col}]...)
}

// CellView is the logical content at a coordinate. For a merged cell every
// list holds one entry per physical cell it represents.
type CellView struct {
	Content    []string `json:"c"`
	RowHeaders []string `json:"rh,omitempty"`
	ColHeaders []string `json:"ch,omitempty"`
}

// Cell returns the logical cell at (row, col).
func (t *Table) Cell(row, col int) (CellView, error) {
	if !t.inGrid(CellRef{row, col}) {
		return CellView{}, fmt.Errorf("cell (%d,%d) outside %dx%d table", row, col, t.Rows(), t.Cols())
	}
	refs, ok := t.merges[CellRef{row, col}]
	if !ok {
		refs = []CellRef{{row, col}}
	}
	var v CellView
	for _, r := range refs {
		v.Content = append(v.Content, t.cells[r.Row][r.Col])
		if t.rowHeaders != nil {
			v.RowHeaders = append(v.RowHeaders, t.rowHeaders[r.Row])
		}
		if t.colHeaders != nil {
			v.ColHeaders = append(v.ColHeaders, t.colHeaders[r.Col])
		}
	}
	return v, nil
}

// HTML renders the table as a plain HTML table.
func (t *Table) HTML() string {
	var sb strings.Builder
	sb.WriteString("<table>")
	if t.colHeaders != nil {
		sb.WriteString("<tr>")
		if t.rowHeaders != nil {
			sb.WriteString("<th></th>")
		}
		for _, h := range t.colHeaders {
			sb.WriteString("<th>" + html.EscapeString(h) + "</th>")
		}
		sb.WriteString("</tr>")
	}
	for i, row := range t.cells {
		sb.WriteString("<tr>")
		if t.rowHeaders != nil {
			sb.WriteString("<th>" + html.EscapeString(t.rowHeaders[i]) + "</th>")
		}
		for _, c := range row {
			sb.WriteString("<td>" + html.EscapeString(c) + "</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</table>")
	return sb.String()
}

type tableMerge struct {
	Cell   CellRef   `json:"cell"`
	Covers []CellRef `json:"covers"`
}

type tableJSON struct {
	Type       string       `json:"type"`
	BBox       BBox         `json:"bbox"`
	RowHeaders []string     `json:"rh,omitempty"`
	ColHeaders []string     `json:"ch,omitempty"`
	Cells      [][]string   `json:"cells"`
	Merges     []tableMerge `json:"merges,omitempty"`
}

// MarshalJSON encodes the table; merges are listed in row-major key order.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Type:       "table",
		BBox:       t.bbox,
		RowHeaders: t.rowHeaders,
		ColHeaders: t.colHeaders,
		Cells:      t.cells,
	}
	if out.Cells == nil {
		out.Cells = [][]string{}
	}
	for k, v := range t.merges {
		out.Merges = append(out.Merges, tableMerge{Cell: k, Covers: v})
	}
	sort.Slice(out.Merges, func(i, j int) bool {
		a, b := out.Merges[i].Cell, out.Merges[j].Cell
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return json.Marshal(out)
}
