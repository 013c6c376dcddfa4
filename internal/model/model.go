package model

import "time"

// Role is the role carried by an authenticated user.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
)

// User is the profile returned by the remote API after login or auth check.
type User struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	UserIdentifier string `json:"user_identifier"`
	Role           Role   `json:"role"`
}

// IsStaff reports whether the user may use the lecturer pages.
func (u User) IsStaff() bool {
	return u.Role == RoleLecturer || u.Role == RoleAdmin
}

type CourseStatus string

const (
	CourseActive    CourseStatus = "active"
	CourseInactive  CourseStatus = "inactive"
	CourseCompleted CourseStatus = "completed"
)

// Course is owned by the lecturer who created it.
type Course struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	Name           string       `json:"name"`
	LecturerID     string       `json:"lecturer_id,omitempty"`
	Semester       string       `json:"semester"`
	AcademicYear   string       `json:"academic_year"`
	Status         CourseStatus `json:"status"`
	EnrollmentOpen bool         `json:"enrollment_open"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
}

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
)

type AttendanceType string

const (
	TypeFaceRecognition AttendanceType = "face_recognition"
	TypeStudentBased    AttendanceType = "student_based"
	TypeHybrid          AttendanceType = "hybrid"
)

// Location is the geofence configured on a session.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Session is a single scheduled class meeting of a course.
type Session struct {
	ID               string         `json:"id"`
	CourseID         string         `json:"course_id"`
	Topic            string         `json:"topic"`
	ScheduledAt      time.Time      `json:"scheduled_at"`
	DurationMinutes  int            `json:"duration_minutes"`
	Status           SessionStatus  `json:"status"`
	AttendanceType   AttendanceType `json:"attendance_type"`
	Location         Location       `json:"location"`
	AttendanceWeight float64        `json:"attendance_weight"`
}

// IsActive reports whether the session currently accepts attendance.
func (s Session) IsActive() bool {
	return s.Status == SessionActive
}

// AcceptsFaceCapture reports whether the lecturer-driven camera flow applies.
func (s Session) AcceptsFaceCapture() bool {
	return s.AttendanceType == TypeFaceRecognition || s.AttendanceType == TypeHybrid
}

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
)

type LocationStatus string

const (
	LocationWithinRange  LocationStatus = "within_range"
	LocationOutsideRange LocationStatus = "outside_range"
	LocationNotVerified  LocationStatus = "not_verified"
)

type VerificationMethod string

const (
	MethodManual          VerificationMethod = "manual"
	MethodFaceRecognition VerificationMethod = "face_recognition"
	MethodLocation        VerificationMethod = "location"
)

// Student is the student reference embedded in an attendance record.
type Student struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	UserIdentifier string `json:"user_identifier"`
	Email          string `json:"email,omitempty"`
}

// AttendanceRecord is created server-side; the client only reads it.
// Pointer fields are optional on the wire.
type AttendanceRecord struct {
	ID                 string              `json:"id"`
	SessionID          string              `json:"session_id"`
	Student            Student             `json:"student"`
	CapturedAt         *time.Time          `json:"captured_at,omitempty"`
	Status             AttendanceStatus    `json:"status"`
	LocationStatus     *LocationStatus     `json:"location_status,omitempty"`
	VerificationMethod *VerificationMethod `json:"verification_method,omitempty"`
	FaceMatched        *bool               `json:"face_matched,omitempty"`
	Score              *float64            `json:"score,omitempty"`
	CreatedAt          *time.Time          `json:"created_at,omitempty"`
}

// Coordinates is a transient position fix taken right before submission.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// StudentScore is one row of a course attendance score sheet.
type StudentScore struct {
	StudentID        string  `json:"student_id"`
	FullName         string  `json:"full_name"`
	UserIdentifier   string  `json:"user_identifier"`
	Email            string  `json:"email"`
	AttendedSessions int     `json:"attended_sessions"`
	AverageScore     float64 `json:"average_score"`
	TotalScore       float64 `json:"total_score"`
}

// ScoreSheet aggregates attendance scores for a course.
type ScoreSheet struct {
	CourseID      string         `json:"course_id"`
	CourseCode    string         `json:"course_code"`
	CourseName    string         `json:"course_name"`
	TotalSessions int            `json:"total_sessions"`
	Students      []StudentScore `json:"students"`
}
