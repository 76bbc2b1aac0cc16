package domain

import "fmt"

// TablePartLabel tags a region produced by table structure recognition.
// The numeric values match the recognizer's class ids.
type TablePartLabel int

const (
	PartTable TablePartLabel = iota
	PartColumn
	PartRow
	PartColumnHeader
	PartRowHeader
	PartSpanningCell
)

var partNames = [...]string{
	PartTable:        "table",
	PartColumn:       "column",
	PartRow:          "row",
	PartColumnHeader: "column_header",
	PartRowHeader:    "row_header",
	PartSpanningCell: "spanning_cell",
}

// Valid reports whether l is one of the known labels.
func (l TablePartLabel) Valid() bool {
	return l >= PartTable && l <= PartSpanningCell
}

func (l TablePartLabel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("TablePartLabel(%d)", int(l))
	}
	return partNames[l]
}

// ParseTablePartLabel resolves a label name as produced by String.
func ParseTablePartLabel(s string) (TablePartLabel, error) {
	for i, n := range partNames {
		if n == s {
			return TablePartLabel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown table part label %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l TablePartLabel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid table part label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *TablePartLabel) UnmarshalText(b []byte) error {
	v, err := ParseTablePartLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// TablePart is one labeled region of a detected table in page coordinates.
type TablePart struct {
	Label TablePartLabel `json:"label"`
	BBox  BBox           `json:"bbox"`
	Score float64        `json:"score"`
}

// DetectedTable is the ordered part sequence of one detected table region.
// The TABLE part is always at index 0.
type DetectedTable []TablePart

// Head returns the TABLE part.
func (t DetectedTable) Head() TablePart {
	return t[0]
}

// Parts returns the parts carrying the given label, in sequence order.
func (t DetectedTable) Parts(label TablePartLabel) []TablePart {
	var out []TablePart
	for _, p := range t {
		if p.Label == label {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the head invariant: non-empty, TABLE first, TABLE unique.
func (t DetectedTable) Validate() error {
	if len(t) == 0 {
		return &IntegrityViolationError{Component: "table", Page: -1, Detail: "detected table has no parts"}
	}
	if t[0].Label != PartTable {
		return &IntegrityViolationError{Component: "table", Page: -1,
			Detail: fmt.Sprintf("first part is %s, want %s", t[0].Label, PartTable)}
	}
	for i, p := range t[1:] {
		if p.Label == PartTable {
			return &IntegrityViolationError{Component: "table", Page: -1,
				Detail: fmt.Sprintf("second table part at index %d", i+1)}
		}
	}
	return nil
}
