package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"attendclient/internal/model"
)

const (
	ScoresTitle    = "Attendance Scores Report"
	NoStudents     = "No students found in this course."
	NoSearchResult = "No students match your search criteria."
)

var scoreHeaders = []string{"Student ID", "Name", "Email", "Sessions Attended", "Attendance Rate", "Average Score", "Total Score"}

// Rate is attended/total, or zero for a course without sessions.
func Rate(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(attended) / float64(total)
}

// RateColor is green from 80%, yellow from 60%, red below.
func RateColor(rate float64) Color {
	switch {
	case rate >= 0.8:
		return Green
	case rate >= 0.6:
		return Yellow
	default:
		return Red
	}
}

// FilterScores keeps the students whose name, identifier or email contains
// query, case-insensitively. An empty query keeps everyone.
func FilterScores(students []model.StudentScore, query string) []model.StudentScore {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return students
	}
	out := make([]model.StudentScore, 0, len(students))
	for _, s := range students {
		if strings.Contains(strings.ToLower(s.FullName), q) ||
			strings.Contains(strings.ToLower(s.UserIdentifier), q) ||
			strings.Contains(strings.ToLower(s.Email), q) {
			out = append(out, s)
		}
	}
	return out
}

// ScoresTable projects the filtered students of a score sheet.
func ScoresTable(sheet model.ScoreSheet, query string) Table {
	students := FilterScores(sheet.Students, query)
	t := Table{
		Title:    ScoresTitle,
		Sheet:    "Attendance Scores",
		Headers:  scoreHeaders,
		Widths:   []float64{15, 25, 30, 18, 16, 14, 12},
		Rows:     make([][]string, 0, len(students)),
		Colors:   make([]Color, 0, len(students)),
		BadgeCol: 5,
		Empty:    NoStudents,
	}
	if strings.TrimSpace(query) != "" {
		t.Empty = NoSearchResult
	}
	if sheet.CourseName != "" || sheet.CourseCode != "" {
		t.Subtitles = append(t.Subtitles, fmt.Sprintf("Course: %s (%s)", sheet.CourseName, sheet.CourseCode))
	}
	t.Subtitles = append(t.Subtitles, fmt.Sprintf("Total Sessions: %d", sheet.TotalSessions))

	for _, s := range students {
		rate := Rate(s.AttendedSessions, sheet.TotalSessions)
		t.Rows = append(t.Rows, []string{
			orNA(s.UserIdentifier),
			orNA(s.FullName),
			orNA(s.Email),
			fmt.Sprintf("%d / %d", s.AttendedSessions, sheet.TotalSessions),
			fmt.Sprintf("%d%%", int(math.Round(rate*100))),
			formatScore(s.AverageScore),
			formatScore(s.TotalScore),
		})
		t.Colors = append(t.Colors, RateColor(rate))
	}
	return t
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
