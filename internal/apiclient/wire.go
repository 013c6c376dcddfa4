package apiclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"attendclient/internal/model"
)

// The remote API is loosely typed: references arrive either as an id string
// or as an embedded object, and numbers sometimes arrive as strings. The
// types below absorb that at the boundary so the rest of the module works
// with model types only.

// ref is an id reference that may be a string or an object with _id/id.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ref(s)
		return nil
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = ref(firstNonEmpty(obj.MongoID, obj.ID))
	return nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

type wireUser struct {
	MongoID        string `json:"_id"`
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	UserIdentifier string `json:"userIdentifier"`
	Role           string `json:"role"`
}

func (w wireUser) toModel() model.User {
	return model.User{
		ID:             firstNonEmpty(w.MongoID, w.ID),
		FullName:       firstNonEmpty(w.FullName, w.Name),
		Email:          w.Email,
		UserIdentifier: w.UserIdentifier,
		Role:           model.Role(strings.ToLower(w.Role)),
	}
}

type wireCourse struct {
	MongoID          string     `json:"_id"`
	ID               string     `json:"id"`
	Code             string     `json:"course_code"`
	Name             string     `json:"course_name"`
	Lecturer         ref        `json:"lecturer"`
	Semester         flexString `json:"semester"`
	AcademicYear     string     `json:"academic_year"`
	Status           string     `json:"status"`
	IsEnrollmentOpen *bool      `json:"isEnrollmentOpen"`
	CreatedAt        *time.Time `json:"created_at"`
}

func (w wireCourse) toModel() model.Course {
	c := model.Course{
		ID:           firstNonEmpty(w.MongoID, w.ID),
		Code:         w.Code,
		Name:         w.Name,
		LecturerID:   string(w.Lecturer),
		Semester:     string(w.Semester),
		AcademicYear: w.AcademicYear,
		Status:       model.CourseStatus(w.Status),
		CreatedAt:    w.CreatedAt,
	}
	if c.Status == "" {
		c.Status = model.CourseInactive
	}
	if w.IsEnrollmentOpen != nil {
		c.EnrollmentOpen = *w.IsEnrollmentOpen
	}
	return c
}

type wireLocation struct {
	Name      string     `json:"name"`
	Latitude  flexNumber `json:"latitude"`
	Longitude flexNumber `json:"longitude"`
	Radius    flexNumber `json:"radius"`
}

type wireSession struct {
	MongoID          string        `json:"_id"`
	ID               string        `json:"id"`
	Course           ref           `json:"course"`
	Topic            string        `json:"topic"`
	SessionDate      *time.Time    `json:"session_date"`
	Duration         flexNumber    `json:"duration"`
	Status           string        `json:"status"`
	AttendanceType   string        `json:"attendance_type"`
	AttendanceWeight *flexNumber   `json:"attendance_weight"`
	Location         *wireLocation `json:"location"`
}

func (w wireSession) toModel() model.Session {
	s := model.Session{
		ID:              firstNonEmpty(w.MongoID, w.ID),
		CourseID:        string(w.Course),
		Topic:           w.Topic,
		DurationMinutes: int(w.Duration),
		Status:          model.SessionStatus(w.Status),
		AttendanceType:  model.AttendanceType(w.AttendanceType),
	}
	if w.SessionDate != nil {
		s.ScheduledAt = *w.SessionDate
	}
	if s.Status != model.SessionActive {
		s.Status = model.SessionInactive
	}
	if s.AttendanceType == "" {
		s.AttendanceType = model.TypeFaceRecognition
	}
	if w.AttendanceWeight != nil {
		s.AttendanceWeight = float64(*w.AttendanceWeight)
	}
	if w.Location != nil {
		s.Location = model.Location{
			Name:      w.Location.Name,
			Latitude:  float64(w.Location.Latitude),
			Longitude: float64(w.Location.Longitude),
			Radius:    float64(w.Location.Radius),
		}
	}
	return s
}

type wireStudent struct {
	MongoID        string `json:"_id"`
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	UserIdentifier string `json:"userIdentifier"`
	Email          string `json:"email"`
}

type wireRecord struct {
	MongoID            string      `json:"_id"`
	ID                 string      `json:"id"`
	Student            wireStudent `json:"student"`
	Session            ref         `json:"session"`
	CapturedAt         *time.Time  `json:"captured_at"`
	CheckInTime        *time.Time  `json:"check_in_time"`
	AttendanceStatus   string      `json:"attendance_status"`
	Status             string      `json:"status"`
	LocationStatus     *string     `json:"location_status"`
	VerificationMethod *string     `json:"verification_method"`
	FaceMatched        *bool       `json:"face_matched"`
	Score              *float64    `json:"score"`
	CreatedAt          *time.Time  `json:"created_at"`
}

func (w wireRecord) toModel() model.AttendanceRecord {
	r := model.AttendanceRecord{
		ID:        firstNonEmpty(w.MongoID, w.ID),
		SessionID: string(w.Session),
		Student: model.Student{
			ID:             firstNonEmpty(w.Student.MongoID, w.Student.ID),
			FullName:       w.Student.FullName,
			UserIdentifier: w.Student.UserIdentifier,
			Email:          w.Student.Email,
		},
		CapturedAt:  w.CapturedAt,
		Status:      model.AttendanceStatus(firstNonEmpty(w.AttendanceStatus, w.Status)),
		FaceMatched: w.FaceMatched,
		Score:       w.Score,
		CreatedAt:   w.CreatedAt,
	}
	if r.CapturedAt == nil {
		r.CapturedAt = w.CheckInTime
	}
	if w.LocationStatus != nil && *w.LocationStatus != "" {
		ls := model.LocationStatus(*w.LocationStatus)
		r.LocationStatus = &ls
	}
	if w.VerificationMethod != nil && *w.VerificationMethod != "" {
		vm := model.VerificationMethod(*w.VerificationMethod)
		r.VerificationMethod = &vm
	}
	return r
}

// wireSessionAttendance is the object form of the session attendance payload.
type wireSessionAttendance struct {
	AttendanceDetails []wireRecord `json:"attendance_details"`
	PresentCount      int          `json:"present_count"`
	AbsentCount       int          `json:"absent_count"`
	FlaggedCount      int          `json:"flagged_count"`
	TotalStudents     int          `json:"total_students"`
}

type wireStudentScore struct {
	MongoID          string     `json:"_id"`
	StudentID        string     `json:"studentId"`
	FullName         string     `json:"fullName"`
	UserIdentifier   string     `json:"userIdentifier"`
	Email            string     `json:"email"`
	AttendedSessions int        `json:"attendedSessions"`
	AverageScore     flexNumber `json:"averageScore"`
	TotalScore       flexNumber `json:"totalScore"`
}

type wireScoreSheet struct {
	Course struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
		Code    string `json:"course_code"`
		Name    string `json:"course_name"`
	} `json:"course"`
	TotalSessions int                `json:"totalSessions"`
	StudentScores []wireStudentScore `json:"studentScores"`
}

func (w wireScoreSheet) toModel(courseID string) model.ScoreSheet {
	sheet := model.ScoreSheet{
		CourseID:      firstNonEmpty(w.Course.MongoID, w.Course.ID, courseID),
		CourseCode:    w.Course.Code,
		CourseName:    w.Course.Name,
		TotalSessions: w.TotalSessions,
		Students:      make([]model.StudentScore, 0, len(w.StudentScores)),
	}
	for _, s := range w.StudentScores {
		sheet.Students = append(sheet.Students, model.StudentScore{
			StudentID:        firstNonEmpty(s.StudentID, s.MongoID),
			FullName:         s.FullName,
			UserIdentifier:   s.UserIdentifier,
			Email:            s.Email,
			AttendedSessions: s.AttendedSessions,
			AverageScore:     float64(s.AverageScore),
			TotalScore:       float64(s.TotalScore),
		})
	}
	return sheet
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
