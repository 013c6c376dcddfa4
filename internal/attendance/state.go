// Package attendance drives the lecturer attendance flow: course and session
// selection, the attendance list of the selected session, and face capture
// submissions.
package attendance

import (
	"fmt"
	"time"

	"attendclient/internal/model"
)

// Phase is the single tagged state of a Controller.
type Phase string

const (
	PhaseNoSession         Phase = "no-session-selected"
	PhaseLoadingSessions   Phase = "loading-sessions"
	PhaseSessionSelected   Phase = "session-selected"
	PhaseLoadingAttendance Phase = "loading-attendance"
	PhaseAttendanceLoaded  Phase = "attendance-loaded"
	PhaseAttendanceError   Phase = "attendance-error"
	PhaseCameraActive      Phase = "camera-active"
	PhaseSubmitting        Phase = "submitting"
)

var transitions = map[Phase][]Phase{
	PhaseNoSession: {
		PhaseLoadingSessions, PhaseSessionSelected,
	},
	PhaseLoadingSessions: {
		PhaseNoSession, PhaseLoadingSessions,
	},
	PhaseSessionSelected: {
		PhaseLoadingAttendance, PhaseSessionSelected, PhaseLoadingSessions,
	},
	PhaseLoadingAttendance: {
		PhaseAttendanceLoaded, PhaseAttendanceError, PhaseSessionSelected, PhaseLoadingSessions,
	},
	PhaseAttendanceLoaded: {
		PhaseCameraActive, PhaseLoadingAttendance, PhaseSessionSelected, PhaseLoadingSessions,
	},
	PhaseAttendanceError: {
		PhaseCameraActive, PhaseLoadingAttendance, PhaseSessionSelected, PhaseLoadingSessions,
	},
	PhaseCameraActive: {
		PhaseSubmitting, PhaseAttendanceLoaded, PhaseAttendanceError, PhaseSessionSelected, PhaseLoadingSessions,
	},
	PhaseSubmitting: {
		PhaseLoadingAttendance, PhaseAttendanceLoaded, PhaseAttendanceError,
	},
}

// CanTransition reports whether the machine may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError is returned when an operation is not allowed in the
// current phase.
type TransitionError struct {
	From, To Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("attendance: cannot move from %s to %s", e.From, e.To)
}

// State is a snapshot of a Controller. Slices are copies.
type State struct {
	Phase           Phase                    `json:"phase"`
	Courses         []model.Course           `json:"courses"`
	CourseID        string                   `json:"course_id,omitempty"`
	Sessions        []model.Session          `json:"sessions"`
	Session         *model.Session           `json:"session,omitempty"`
	Records         []model.AttendanceRecord `json:"records"`
	Location        *model.Coordinates       `json:"location,omitempty"`
	LocationError   string                   `json:"location_error,omitempty"`
	SessionError    string                   `json:"session_error,omitempty"`
	AttendanceError string                   `json:"attendance_error,omitempty"`
	CaptureError    string                   `json:"capture_error,omitempty"`
	Message         string                   `json:"message,omitempty"`
	CameraActive    bool                     `json:"camera_active"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// CameraAvailable reports whether the capture widget should be offered: a
// session is selected, active, and takes face captures.
func (s State) CameraAvailable() bool {
	return s.Session != nil && s.Session.IsActive() && s.Session.AcceptsFaceCapture()
}

func (s State) clone() State {
	out := s
	out.Courses = append([]model.Course(nil), s.Courses...)
	out.Sessions = append([]model.Session(nil), s.Sessions...)
	out.Records = append([]model.AttendanceRecord(nil), s.Records...)
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	return out
}
