// Package tableexport writes extracted tables as CSV or XLSX.
package tableexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"folio/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// Title names a table by its one-based page and index on that page.
func Title(pt domain.PageTable) string {
	return fmt.Sprintf("Table %d.%d", pt.Page+1, pt.Index+1)
}

// Grid lays a table out as rows of strings: the column headers first when
// present, and each row prefixed by its row header when present.
func Grid(t *domain.Table) [][]string {
	rh, ch := t.RowHeaders(), t.ColHeaders()
	var out [][]string
	if ch != nil {
		row := make([]string, 0, len(ch)+1)
		if rh != nil {
			row = append(row, "")
		}
		out = append(out, append(row, ch...))
	}
	for r := 0; r < t.Rows(); r++ {
		row := make([]string, 0, t.Cols()+1)
		if rh != nil {
			row = append(row, rh[r])
		}
		for c := 0; c < t.Cols(); c++ {
			v, _ := t.Content(r, c)
			row = append(row, v)
		}
		out = append(out, row)
	}
	return out
}

// Writer wraps csv.Writer for exporting tables as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteTable writes a single table grid.
func (w *Writer) WriteTable(t *domain.Table) error {
	return w.csv.WriteAll(Grid(t))
}

// WriteTables writes every table preceded by a title row, with a blank
// record between tables.
func (w *Writer) WriteTables(tables []domain.PageTable) error {
	for i, pt := range tables {
		if i > 0 {
			if err := w.csv.Write([]string{""}); err != nil {
				return err
			}
		}
		if err := w.csv.Write([]string{Title(pt)}); err != nil {
			return err
		}
		for _, row := range Grid(pt.Table) {
			if err := w.csv.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a document name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for Content-Disposition header.
// Format: {sanitized_name}_tables_{YYYY-MM-DD}.{ext}
func BuildFilename(name, ext string, now time.Time) string {
	return fmt.Sprintf("%s_tables_%s.%s", SanitizeFilename(name), now.Format("2006-01-02"), ext)
}
