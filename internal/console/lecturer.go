package console

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendclient/internal/auth"
	"attendclient/internal/forms"
	"attendclient/internal/report"
)

var errConfirm = errors.New("confirmation required: repeat the request with confirm=true")

func (s *server) dashboard(c *gin.Context) {
	summary, err := s.API.LecturerDashboard(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *server) systemStatus(c *gin.Context) {
	services, err := s.API.SystemStatus(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (s *server) listCourses(c *gin.Context) {
	courses, err := s.API.ListCourses(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (s *server) getCourse(c *gin.Context) {
	course, err := s.API.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course, "form": forms.CourseFormFrom(course)})
}

func (s *server) createCourse(c *gin.Context) {
	form := forms.NewCourseForm()
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := form.Input(s.userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	course, err := s.API.CreateCourse(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course, "message": "Course created successfully"})
}

func (s *server) updateCourse(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := s.API.GetCourse(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	form := forms.CourseFormFrom(current)
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := form.Input(current.LecturerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	course, err := s.API.UpdateCourse(ctx, current.ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course, "message": "Course updated successfully"})
}

func (s *server) deleteCourse(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": errConfirm.Error()})
		return
	}
	if err := s.API.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted successfully"})
}

func (s *server) listCourseSessions(c *gin.Context) {
	sessions, err := s.API.ListSessionsByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type sessionRequest struct {
	forms.SessionForm
	HallSize string `json:"hall_size"`
}

func (s *server) createSession(c *gin.Context) {
	req := sessionRequest{SessionForm: forms.NewSessionForm()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.HallSize != "" && !req.UseHallSize(req.HallSize) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown hall size " + req.HallSize})
		return
	}
	in, err := req.Input(c.Param("id"), s.Location)
	if err != nil {
		s.fail(c, err)
		return
	}
	session, err := s.API.CreateSession(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session, "message": "Session created successfully"})
}

func (s *server) getSession(c *gin.Context) {
	session, err := s.API.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (s *server) toggleSession(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := s.API.GetSession(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	session, err := s.API.UpdateSession(ctx, current.ID, forms.ToggleStatus(current))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (s *server) deleteSession(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": errConfirm.Error()})
		return
	}
	if err := s.API.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

// sessionRecords renders the records of any session, independent of the
// capture controller's selection.
func (s *server) sessionRecords(c *gin.Context) {
	id := c.Param("id")
	records, err := s.API.SessionAttendance(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeTable(c, report.AttendanceTable(records, s.Location), func(f report.Format) string {
		return report.Filename(id, f, time.Now().In(s.Location))
	})
}

func (s *server) courseScores(c *gin.Context) {
	sheet, err := s.API.CourseScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeTable(c, report.ScoresTable(sheet, c.Query("q")), func(f report.Format) string {
		return report.ScoresFilename(sheet.CourseCode, f)
	})
}

// writeTable answers with the table as JSON, or as a download when the
// format query parameter names an export format.
func (s *server) writeTable(c *gin.Context, t report.Table, filename func(report.Format) string) {
	format := c.Query("format")
	if format == "" || format == "json" {
		c.JSON(http.StatusOK, gin.H{
			"title":     t.Title,
			"subtitles": t.Subtitles,
			"headers":   t.Headers,
			"rows":      t.Rows,
			"colors":    t.Colors,
			"empty":     t.Empty,
			"count":     t.Len(),
		})
		return
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := report.Export(&buf, t, f); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename(f)+`"`)
	c.Data(http.StatusOK, f.ContentType(), buf.Bytes())
}

func (s *server) userID(c *gin.Context) string {
	st, ok := auth.FromContext(c)
	if !ok || st.User == nil {
		return ""
	}
	return st.User.ID
}
