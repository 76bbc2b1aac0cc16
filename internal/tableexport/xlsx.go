package tableexport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"folio/internal/domain"
)

// ContentTypeXLSX is the MIME type of WriteXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxSheetName = 31

// WriteXLSX writes one sheet per table. Header cells are bold and merged
// table cells become merged ranges when they cover a rectangle.
func WriteXLSX(w io.Writer, tables []domain.PageTable) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	first := f.GetSheetName(0)
	for i, pt := range tables {
		name := sheetName(pt)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, pt.Table, bold); err != nil {
			return fmt.Errorf("writing sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func sheetName(pt domain.PageTable) string {
	name := Title(pt)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

func writeSheet(f *excelize.File, sheet string, t *domain.Table, bold int) error {
	grid := Grid(t)
	for r, row := range grid {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	rowOff, colOff := 0, 0
	if t.ColHeaders() != nil {
		rowOff = 1
		if err := styleRange(f, sheet, 0, 0, 0, len(grid[0])-1, bold); err != nil {
			return err
		}
	}
	if t.RowHeaders() != nil {
		colOff = 1
		if err := styleRange(f, sheet, 0, 0, len(grid)-1, 0, bold); err != nil {
			return err
		}
	}

	for _, m := range mergeRanges(t) {
		if err := mergeRange(f, sheet, m[0].Row+rowOff, m[0].Col+colOff, m[1].Row+rowOff, m[1].Col+colOff); err != nil {
			return err
		}
	}
	return nil
}

// mergeRanges returns the [top-left, bottom-right] corners of every merge
// group that covers a full rectangle, in row-major order.
func mergeRanges(t *domain.Table) [][2]domain.CellRef {
	var out [][2]domain.CellRef
	for r := 0; r < t.Rows(); r++ {
		for c := 0; c < t.Cols(); c++ {
			refs := t.MergedWith(r, c)
			if len(refs) < 2 {
				continue
			}
			lo, hi := refs[0], refs[0]
			for _, ref := range refs[1:] {
				lo.Row, lo.Col = min(lo.Row, ref.Row), min(lo.Col, ref.Col)
				hi.Row, hi.Col = max(hi.Row, ref.Row), max(hi.Col, ref.Col)
			}
			// Only the top-left cell of a group emits it.
			if lo.Row != r || lo.Col != c {
				continue
			}
			if (hi.Row-lo.Row+1)*(hi.Col-lo.Col+1) != len(refs) {
				continue
			}
			out = append(out, [2]domain.CellRef{lo, hi})
		}
	}
	return out
}

func cellRange(r0, c0, r1, c1 int) (string, string, error) {
	from, err := excelize.CoordinatesToCellName(c0+1, r0+1)
	if err != nil {
		return "", "", err
	}
	to, err := excelize.CoordinatesToCellName(c1+1, r1+1)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func styleRange(f *excelize.File, sheet string, r0, c0, r1, c1, style int) error {
	from, to, err := cellRange(r0, c0, r1, c1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, from, to, style)
}

func mergeRange(f *excelize.File, sheet string, r0, c0, r1, c1 int) error {
	from, to, err := cellRange(r0, c0, r1, c1)
	if err != nil {
		return err
	}
	return f.MergeCell(sheet, from, to)
}
