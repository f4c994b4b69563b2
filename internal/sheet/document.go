// Package sheet wraps an xlsx workbook behind the planning phase's cell
// accessor and applies resolved metric values back into it. Only the
// first sheet is processed; untouched cells and their formatting are
// preserved by round-tripping the workbook.
package sheet

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// Document is an open workbook positioned on its first sheet.
type Document struct {
	f      *excelize.File
	sheet  string
	maxRow int
	maxCol int
}

// Open parses workbook bytes. The document must be closed after use.
func Open(data []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open workbook")
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, eris.New("sheet: workbook has no sheets")
	}
	name := sheets[0]

	rows, err := f.GetRows(name)
	if err != nil {
		f.Close()
		return nil, eris.Wrap(err, "sheet: read rows")
	}

	maxCol := 0
	for _, row := range rows {
		if len(row) > maxCol {
			maxCol = len(row)
		}
	}

	return &Document{f: f, sheet: name, maxRow: len(rows), maxCol: maxCol}, nil
}

// Close releases the underlying workbook.
func (d *Document) Close() error {
	return d.f.Close()
}

// MaxRow returns the number of the last populated row.
func (d *Document) MaxRow() int { return d.maxRow }

// MaxCol returns the number of the last populated column.
func (d *Document) MaxCol() int { return d.maxCol }

// Value returns the effective text of a cell: the hyperlink target when
// the cell carries one (the display text is often a localized caption),
// otherwise the concatenated rich-text runs, otherwise the plain value.
// Out-of-range reads return "".
func (d *Document) Value(row, col int) string {
	if row < 1 || col < 1 {
		return ""
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}

	if ok, target, err := d.f.GetCellHyperLink(d.sheet, cell); err == nil && ok && target != "" {
		return target
	}

	if runs, err := d.f.GetCellRichText(d.sheet, cell); err == nil && len(runs) > 0 {
		var b strings.Builder
		for _, r := range runs {
			b.WriteString(r.Text)
		}
		return b.String()
	}

	v, err := d.f.GetCellValue(d.sheet, cell)
	if err != nil {
		return ""
	}
	return v
}

// SetValue writes a value into a cell, extending the tracked bounds.
func (d *Document) SetValue(row, col int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return eris.Wrapf(err, "sheet: cell name (%d,%d)", row, col)
	}
	if err := d.f.SetCellValue(d.sheet, cell, value); err != nil {
		return eris.Wrapf(err, "sheet: set cell %s", cell)
	}
	if row > d.maxRow {
		d.maxRow = row
	}
	if col > d.maxCol {
		d.maxCol = col
	}
	return nil
}

// Bytes serializes the workbook.
func (d *Document) Bytes() ([]byte, error) {
	buf, err := d.f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "sheet: serialize workbook")
	}
	return buf.Bytes(), nil
}
