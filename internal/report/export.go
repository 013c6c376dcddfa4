package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/gosuri/uitable"
	"github.com/xuri/excelize/v2"
)

var fillHex = map[Color]string{
	Green:  "#22C55E",
	Red:    "#EF4444",
	Yellow: "#EAB308",
	Gray:   "#6B7280",
}

// Export writes t to w in format f.
func Export(w io.Writer, t Table, f Format) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatPDF:
		return WritePDF(w, t)
	case FormatText:
		_, err := io.WriteString(w, Text(t))
		return err
	default:
		return fmt.Errorf("report: unknown format %q", f)
	}
}

// WriteXLSX writes a workbook with one sheet: a bold header row followed by
// one row per table row. Badge cells are filled with their color.
func WriteXLSX(w io.Writer, t Table) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, header := range t.Headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header %q: %w", header, err)
		}
		if err := file.SetCellStyle(sheet, cell, cell, bold); err != nil {
			return fmt.Errorf("style header %q: %w", header, err)
		}
		if i < len(t.Widths) {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			if err := file.SetColWidth(sheet, col, col, t.Widths[i]); err != nil {
				return fmt.Errorf("set width of %s: %w", col, err)
			}
		}
	}

	badges := map[Color]int{}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := row
		if err := file.SetSheetRow(sheet, cell, &vals); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
		if t.BadgeCol == 0 || i >= len(t.Colors) {
			continue
		}
		style, ok := badges[t.Colors[i]]
		if !ok {
			style, err = file.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillHex[t.Colors[i]]}},
			})
			if err != nil {
				return err
			}
			badges[t.Colors[i]] = style
		}
		badge, err := excelize.CoordinatesToCellName(t.BadgeCol, i+2)
		if err != nil {
			return fmt.Errorf("badge of row %d: %w", i+1, err)
		}
		if err := file.SetCellStyle(sheet, badge, badge, style); err != nil {
			return fmt.Errorf("style badge of row %d: %w", i+1, err)
		}
	}

	_, err = file.WriteTo(w)
	return err
}

// WriteCSV writes the header row and then every table row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WritePDF writes an A4 document with the title, subtitles and a bordered
// table. Wide tables are laid out in landscape.
func WritePDF(w io.Writer, t Table) error {
	return writePDF(w, t, true)
}

func writePDF(w io.Writer, t Table, compress bool) error {
	orientation := "P"
	if len(t.Headers) > 6 {
		orientation = "L"
	}
	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetMargins(14, 15, 14)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(t.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, sub := range t.Subtitles {
		pdf.CellFormat(0, 6, tr(sub), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	widths := columnWidths(pdf, t)
	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(41, 128, 185)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range t.Headers {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range t.Rows {
		if pdf.GetY()+7 > pageH-bottom {
			pdf.AddPage()
			header()
		}
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = fit(pdf, tr(row[i]), widths[i]-2)
			}
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

// columnWidths scales t.Widths to the printable page width.
func columnWidths(pdf *fpdf.Fpdf, t Table) []float64 {
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	weights := make([]float64, len(t.Headers))
	var total float64
	for i := range weights {
		weights[i] = 1
		if i < len(t.Widths) && t.Widths[i] > 0 {
			weights[i] = t.Widths[i]
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] = weights[i] / total * usable
	}
	return weights
}

// fit truncates s with an ellipsis so it fits in width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

// Text renders t as an aligned plain-text table for terminals.
func Text(t Table) string {
	tbl := uitable.New()
	tbl.MaxColWidth = 40
	tbl.Separator = "  "

	headers := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h
	}
	tbl.AddRow(headers...)
	if len(t.Rows) == 0 {
		tbl.AddRow(t.Empty)
	}
	for _, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, c := range row {
			cells[i] = c
		}
		tbl.AddRow(cells...)
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(t.Title + "\n")
	}
	for _, sub := range t.Subtitles {
		b.WriteString(sub + "\n")
	}
	b.WriteString(tbl.String())
	b.WriteString("\n")
	return b.String()
}
