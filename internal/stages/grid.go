package stages

import (
	"sort"
	"strings"

	"folio/internal/domain"
)

// headerOverlap is the share of a row (column) that must lie inside a
// header part for the row (column) to count as a header.
const headerOverlap = 0.5

// CellText reads the text inside a box given in the detected table's
// coordinates.
type CellText func(box domain.BBox) (string, error)

// BuildTable turns the parts of one detected table into a structure model.
// Rows and columns form the grid; rows covered by a COLUMN-HEADER part become
// column headers, columns covered by a ROW-HEADER part become row headers and
// every SPANNING-CELL part merges the body cells it covers. Boxes are scaled
// by (sx, sy) into the page's coordinate system. read may be nil.
func BuildTable(dt domain.DetectedTable, sx, sy float64, read CellText) (*domain.Table, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	head := dt.Head()

	rows := sortedParts(dt.Parts(domain.PartRow), func(b domain.BBox) float64 { return b.Y0 })
	if len(rows) == 0 {
		rows = []domain.TablePart{head}
	}
	cols := sortedParts(dt.Parts(domain.PartColumn), func(b domain.BBox) float64 { return b.X0 })
	if len(cols) == 0 {
		cols = []domain.TablePart{head}
	}

	headRows, bodyRows := splitHeaders(rows, dt.Parts(domain.PartColumnHeader), domain.BBox.YOverlap)
	headCols, bodyCols := splitHeaders(cols, dt.Parts(domain.PartRowHeader), domain.BBox.XOverlap)

	text := make([][]string, len(rows))
	for i, r := range rows {
		text[i] = make([]string, len(cols))
		for j, c := range cols {
			if read == nil {
				continue
			}
			box := domain.BBox{
				X0: c.BBox.X0, Y0: r.BBox.Y0, X1: c.BBox.X1, Y1: r.BBox.Y1,
				PageWidth: head.BBox.PageWidth, PageHeight: head.BBox.PageHeight,
			}
			s, err := read(box)
			if err != nil {
				return nil, err
			}
			text[i][j] = s
		}
	}

	cells := make([][]string, len(bodyRows))
	for i, r := range bodyRows {
		cells[i] = make([]string, len(bodyCols))
		for j, c := range bodyCols {
			cells[i][j] = text[r][c]
		}
	}

	scale := func(b domain.BBox) domain.BBox { return b.Scale(sx, sy) }
	opts := []domain.TableOption{
		domain.WithRowBoxes(boxesOf(rows, bodyRows, scale)),
		domain.WithColBoxes(boxesOf(cols, bodyCols, scale)),
	}
	if len(headRows) > 0 {
		h := make([]string, len(bodyCols))
		for j, c := range bodyCols {
			h[j] = joinText(headRows, func(r int) string { return text[r][c] })
		}
		opts = append(opts, domain.WithColHeaders(h))
	}
	if len(headCols) > 0 {
		h := make([]string, len(bodyRows))
		for i, r := range bodyRows {
			h[i] = joinText(headCols, func(c int) string { return text[r][c] })
		}
		opts = append(opts, domain.WithRowHeaders(h))
	}
	if m := spanMerges(dt.Parts(domain.PartSpanningCell), rows, bodyRows, cols, bodyCols); len(m) > 0 {
		opts = append(opts, domain.WithMerges(m))
	}
	return domain.NewTable(scale(head.BBox), cells, opts...)
}

func sortedParts(parts []domain.TablePart, key func(domain.BBox) float64) []domain.TablePart {
	sort.SliceStable(parts, func(i, j int) bool { return key(parts[i].BBox) < key(parts[j].BBox) })
	return parts
}

// splitHeaders returns the indexes of header and body lines. When every line
// is covered by a header part the header is ignored.
func splitHeaders(lines, headers []domain.TablePart, overlap func(domain.BBox, domain.BBox) float64) (head, body []int) {
	for i, l := range lines {
		isHeader := false
		for _, h := range headers {
			if overlap(l.BBox, h.BBox) > headerOverlap {
				isHeader = true
				break
			}
		}
		if isHeader {
			head = append(head, i)
		} else {
			body = append(body, i)
		}
	}
	if len(body) == 0 {
		return nil, head
	}
	return head, body
}

func boxesOf(lines []domain.TablePart, idx []int, scale func(domain.BBox) domain.BBox) []domain.BBox {
	out := make([]domain.BBox, len(idx))
	for k, i := range idx {
		out[k] = scale(lines[i].BBox)
	}
	return out
}

func joinText(idx []int, at func(int) string) string {
	var parts []string
	for _, i := range idx {
		if s := at(i); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// spanMerges maps every body cell covered by a spanning part to the full set
// of cells that part covers. Spans covering a single cell are ignored.
func spanMerges(spans, rows []domain.TablePart, bodyRows []int, cols []domain.TablePart, bodyCols []int) map[domain.CellRef][]domain.CellRef {
	merges := map[domain.CellRef][]domain.CellRef{}
	for _, s := range spans {
		var covered []domain.CellRef
		for i, r := range bodyRows {
			if rows[r].BBox.YOverlap(s.BBox) <= headerOverlap {
				continue
			}
			for j, c := range bodyCols {
				if cols[c].BBox.XOverlap(s.BBox) > headerOverlap {
					covered = append(covered, domain.CellRef{Row: i, Col: j})
				}
			}
		}
		if len(covered) < 2 {
			continue
		}
		for _, ref := range covered {
			merges[ref] = covered
		}
	}
	return merges
}
