// Package report projects attendance records and score sheets into tables
// and exports them as XLSX, CSV, PDF or plain text.
package report

import (
	"fmt"
	"strings"
	"time"
)

// NotAvailable fills optional cells that carry no value.
const NotAvailable = "N/A"

// Color is the badge color of a status cell.
type Color string

const (
	Green  Color = "green"
	Red    Color = "red"
	Yellow Color = "yellow"
	Gray   Color = "gray"
)

// Table is a read-only projection ready for export. Rows never include the
// header. Empty is shown by views in place of an empty body; exports leave
// the body empty instead.
type Table struct {
	Title     string
	Subtitles []string
	Sheet     string
	Headers   []string
	Widths    []float64
	Rows      [][]string
	Colors    []Color // per row badge color, parallel to Rows
	BadgeCol  int     // 1-based column the badge color applies to, 0 for none
	Empty     string
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Format is an export format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
)

// ParseFormat accepts a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "pdf":
		return FormatPDF, nil
	case "txt", "text", "table":
		return FormatText, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// ContentType is the MIME type of an exported file.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename is attendance_{sessionID}_{yyyy-MM-dd}.{ext}.
func Filename(sessionID string, f Format, now time.Time) string {
	return fmt.Sprintf("attendance_%s_%s.%s", sessionID, now.Format("2006-01-02"), f)
}

// ScoresFilename is attendance_scores_{courseCode}.{ext}.
func ScoresFilename(courseCode string, f Format) string {
	return fmt.Sprintf("attendance_scores_%s.%s", courseCode, f)
}

// humanize turns an enum value such as "within_range" into "within range".
func humanize(s string) string {
	if s == "" {
		return NotAvailable
	}
	return strings.ReplaceAll(s, "_", " ")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}
