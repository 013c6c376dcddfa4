// Package console serves the operator console: the role-gated pages of the
// attendance client as JSON routes plus a websocket live feed.
package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendclient/internal/apiclient"
	"attendclient/internal/attendance"
	"attendclient/internal/auth"
	"attendclient/internal/forms"
	"attendclient/internal/httpmiddleware"
	"attendclient/internal/journal"
	"attendclient/internal/logging"
	"attendclient/internal/model"
)

// MsgUnexpected is the body of the fallback error boundary.
const MsgUnexpected = "Something went wrong. Please reload the page."

// HealthCheck reports whether one backing service is reachable.
type HealthCheck = func(ctx context.Context) bool

// Deps are the collaborators of the console routes.
type Deps struct {
	API        *apiclient.Client
	Auth       *auth.Store
	Attendance *attendance.Controller
	Locator    attendance.Locator
	Journal    *journal.Repository
	Hub        *Hub
	Limiter    *httpmiddleware.SimpleTokenBucket
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthCheck
	Location   *time.Location
	Origins    []string
	Logger     *slog.Logger
}

type server struct {
	Deps
	logger *slog.Logger
}

// NewRouter builds the console engine.
func NewRouter(d Deps) *gin.Engine {
	s := &server{Deps: d, logger: logging.OrDiscard(d.Logger)}
	if s.Location == nil {
		s.Location = time.Local
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(s.recovered))
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(d.Origins)))
	r.Use(securityHeaders())
	if d.Limiter != nil {
		r.Use(d.Limiter.GinMiddleware())
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)
	if d.Hub != nil {
		d.Hub.AllowOrigins(d.Origins)
		r.GET("/ws", auth.RequireRole(d.Auth, auth.Staff...), d.Hub.Serve)
	}

	r.POST("/login", s.login)
	r.POST("/logout", s.logout)
	r.GET("/auth-check", s.authCheck)

	lecturer := r.Group(auth.LecturerPath, auth.RequireRole(d.Auth, auth.Staff...))
	lecturer.GET("/dashboard", s.dashboard)
	lecturer.GET("/system-status", s.systemStatus)

	lecturer.GET("/courses", s.listCourses)
	lecturer.POST("/courses", s.createCourse)
	lecturer.GET("/courses/:id", s.getCourse)
	lecturer.PUT("/courses/:id", s.updateCourse)
	lecturer.DELETE("/courses/:id", s.deleteCourse)
	lecturer.GET("/courses/:id/sessions", s.listCourseSessions)
	lecturer.POST("/courses/:id/sessions", s.createSession)
	lecturer.GET("/courses/:id/scores", s.courseScores)

	lecturer.GET("/sessions/:id", s.getSession)
	lecturer.PATCH("/sessions/:id/toggle", s.toggleSession)
	lecturer.DELETE("/sessions/:id", s.deleteSession)
	lecturer.GET("/sessions/:id/records", s.sessionRecords)

	att := lecturer.Group("/attendance")
	att.GET("", s.attendanceState)
	att.POST("/courses/reload", s.reloadCourses)
	att.POST("/course", s.selectCourse)
	att.POST("/session", s.selectSession)
	att.POST("/refresh", s.refreshAttendance)
	att.POST("/location", s.refreshLocation)
	att.POST("/camera/start", s.startCamera)
	att.POST("/camera/stop", s.stopCamera)
	att.POST("/submit", s.submit)
	att.GET("/records", s.currentRecords)
	att.GET("/journal", s.listJournal)

	student := r.Group(auth.StudentPath, auth.RequireRole(d.Auth, model.RoleStudent))
	student.GET("/courses", s.studentCourses)
	student.GET("/sessions/:id", s.getSession)
	student.POST("/sessions/:id/verify-location", s.verifyLocation)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// recovered is the last error boundary: the caller is told to reload.
func (s *server) recovered(c *gin.Context, err any) {
	s.logger.Error("handler panicked", "path", c.FullPath(), "panic", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": MsgUnexpected, "action": "reload"})
}

func (s *server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// fail maps err onto a status and a body the pages can render.
func (s *server) fail(c *gin.Context, err error) {
	if ve, ok := forms.AsValidationError(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Error(), "fields": ve.Fields})
		return
	}

	var serr *attendance.SubmitError
	if errors.As(err, &serr) {
		s.failSubmit(c, serr)
		return
	}

	var terr *attendance.TransitionError
	switch {
	case errors.As(err, &terr),
		errors.Is(err, attendance.ErrSubmissionInFlight),
		errors.Is(err, attendance.ErrSessionInactive),
		errors.Is(err, attendance.ErrCaptureUnsupported),
		errors.Is(err, attendance.ErrCameraInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrNoCourse),
		errors.Is(err, attendance.ErrNoSession),
		errors.Is(err, attendance.ErrUnknownSession):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, attendance.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if apiErr, ok := apiclient.AsError(err); ok {
		s.failRemote(c, apiErr)
		return
	}

	s.logger.Error("request failed", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *server) failRemote(c *gin.Context, apiErr *apiclient.Error) {
	msg := apiErr.Message
	switch {
	case apiErr.Unauthorized():
		c.JSON(http.StatusUnauthorized, gin.H{"error": attendance.MsgUnauthorized, "redirect": auth.LoginPath})
	case apiErr.Forbidden():
		c.JSON(http.StatusForbidden, gin.H{"error": orDefault(msg, "Access denied"), "redirect": s.home(c)})
	case apiErr.Timeout():
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": attendance.MsgTimeout})
	case apiErr.Transport():
		c.JSON(http.StatusBadGateway, gin.H{"error": attendance.MsgNetwork})
	case apiErr.Status >= 400 && apiErr.Status < 500:
		c.JSON(apiErr.Status, gin.H{"error": orDefault(msg, http.StatusText(apiErr.Status))})
	default:
		s.logger.Warn("remote call failed", "op", apiErr.Op, "status", apiErr.Status, "err", apiErr)
		c.JSON(http.StatusBadGateway, gin.H{"error": orDefault(msg, "The server could not complete the request")})
	}
}

func (s *server) failSubmit(c *gin.Context, serr *attendance.SubmitError) {
	status := http.StatusUnprocessableEntity
	body := gin.H{"error": serr.Message, "kind": serr.Kind}
	switch serr.Kind {
	case attendance.KindAuth:
		status = http.StatusUnauthorized
		body["redirect"] = auth.LoginPath
		if apiErr, ok := apiclient.AsError(serr); ok && apiErr.Forbidden() {
			status = http.StatusForbidden
			body["redirect"] = s.home(c)
		}
	case attendance.KindTimeout:
		status = http.StatusGatewayTimeout
	case attendance.KindNetwork:
		status = http.StatusBadGateway
	case attendance.KindCanceled:
		status = http.StatusServiceUnavailable
	case attendance.KindGeneric:
		status = http.StatusBadGateway
	}
	c.JSON(status, body)
}

func (s *server) home(c *gin.Context) string {
	if st, ok := auth.FromContext(c); ok {
		return st.HomePath()
	}
	return auth.LoginPath
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
