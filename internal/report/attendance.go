package report

import (
	"time"

	"attendclient/internal/model"
)

const (
	AttendanceTitle = "Attendance Records"
	NoRecords       = "No attendance records found"

	// CheckInLayout renders capture times as "March 1, 2024 9:30 AM".
	CheckInLayout = "January 2, 2006 3:04 PM"
)

var attendanceHeaders = []string{"Student ID", "Name", "Check-in Time", "Status", "Location", "Method"}

// StatusColor maps an attendance status to its badge color.
func StatusColor(s model.AttendanceStatus) Color {
	switch s {
	case model.StatusPresent:
		return Green
	case model.StatusAbsent:
		return Red
	case model.StatusLate:
		return Yellow
	default:
		return Gray
	}
}

// AttendanceRow renders one record. Times are shown in loc; nil means UTC.
func AttendanceRow(r model.AttendanceRecord, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	checkIn := NotAvailable
	if r.CapturedAt != nil {
		checkIn = r.CapturedAt.In(loc).Format(CheckInLayout)
	}
	location := NotAvailable
	if r.LocationStatus != nil {
		location = humanize(string(*r.LocationStatus))
	}
	method := NotAvailable
	if r.VerificationMethod != nil {
		method = humanize(string(*r.VerificationMethod))
	}
	return []string{
		orNA(r.Student.UserIdentifier),
		orNA(r.Student.FullName),
		checkIn,
		orNA(string(r.Status)),
		location,
		method,
	}
}

// AttendanceTable projects the records of one session.
func AttendanceTable(records []model.AttendanceRecord, loc *time.Location) Table {
	t := Table{
		Title:    AttendanceTitle,
		Sheet:    "Attendance",
		Headers:  attendanceHeaders,
		Widths:   []float64{15, 25, 25, 12, 15, 15},
		Rows:     make([][]string, 0, len(records)),
		Colors:   make([]Color, 0, len(records)),
		BadgeCol: 4,
		Empty:    NoRecords,
	}
	for _, r := range records {
		t.Rows = append(t.Rows, AttendanceRow(r, loc))
		t.Colors = append(t.Colors, StatusColor(r.Status))
	}
	return t
}
