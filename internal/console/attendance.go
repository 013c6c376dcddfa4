package console

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendclient/internal/attendance"
	"attendclient/internal/journal"
	"attendclient/internal/report"
)

type selectRequest struct {
	ID string `json:"id"`
}

// stateResponse pairs the controller snapshot with what the page may offer.
type stateResponse struct {
	attendance.State
	CameraAvailable bool `json:"camera_available"`
}

func snapshot(ctrl *attendance.Controller) stateResponse {
	st := ctrl.Snapshot()
	return stateResponse{State: st, CameraAvailable: st.CameraAvailable()}
}

func (s *server) attendanceState(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) reloadCourses(c *gin.Context) {
	if err := s.Attendance.LoadCourses(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) selectCourse(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// A failed fetch is recorded in the state and rendered by the page.
	if err := s.Attendance.SelectCourse(c.Request.Context(), req.ID); err != nil {
		s.logger.Debug("select course", "course_id", req.ID, "err", err)
		if isControllerErr(err) {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) selectSession(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	if err := s.Attendance.SelectSession(c.Request.Context(), req.ID); err != nil {
		s.logger.Debug("select session", "session_id", req.ID, "err", err)
		if isControllerErr(err) {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) refreshAttendance(c *gin.Context) {
	if err := s.Attendance.RefreshAttendance(c.Request.Context()); err != nil && isControllerErr(err) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) refreshLocation(c *gin.Context) {
	if err := s.Attendance.RefreshLocation(c.Request.Context()); err != nil && isControllerErr(err) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) startCamera(c *gin.Context) {
	if err := s.Attendance.StartCamera(c.Request.Context()); err != nil && isControllerErr(err) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) stopCamera(c *gin.Context) {
	if err := s.Attendance.StopCamera(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot(s.Attendance))
}

func (s *server) submit(c *gin.Context) {
	res, err := s.Attendance.Submit(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message, "record": res.Record, "state": snapshot(s.Attendance)})
}

// currentRecords renders the records held by the controller for the
// selected session.
func (s *server) currentRecords(c *gin.Context) {
	st := s.Attendance.Snapshot()
	if st.Session == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": attendance.MsgNoSession})
		return
	}
	id := st.Session.ID
	s.writeTable(c, report.AttendanceTable(st.Records, s.Location), func(f report.Format) string {
		return report.Filename(id, f, time.Now().In(s.Location))
	})
}

func (s *server) listJournal(c *gin.Context) {
	if s.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal not configured"})
		return
	}
	ctx := c.Request.Context()
	f := journal.Filter{
		CourseID:  c.Query("course_id"),
		SessionID: c.Query("session_id"),
		Outcome:   journal.Outcome(c.Query("outcome")),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	entries, err := s.Journal.List(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	body := gin.H{"entries": entries}
	if f.SessionID != "" {
		counts, err := s.Journal.Counts(ctx, f.SessionID)
		if err != nil {
			s.fail(c, err)
			return
		}
		body["counts"] = counts
	}
	c.JSON(http.StatusOK, body)
}

// isControllerErr separates precondition failures, which the caller must
// fix, from fetch failures already recorded in the state.
func isControllerErr(err error) bool {
	for _, target := range []error{
		attendance.ErrSubmissionInFlight, attendance.ErrNoCourse, attendance.ErrNoSession,
		attendance.ErrUnknownSession, attendance.ErrSessionInactive, attendance.ErrCaptureUnsupported,
		attendance.ErrCameraInactive, attendance.ErrClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var terr *attendance.TransitionError
	return errors.As(err, &terr)
}
