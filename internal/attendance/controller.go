package attendance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"attendclient/internal/apiclient"
	"attendclient/internal/geo"
	"attendclient/internal/journal"
	"attendclient/internal/logging"
	"attendclient/internal/metrics"
	"attendclient/internal/model"
	"attendclient/internal/queue"
)

// API is the part of the remote API the controller uses.
type API interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListSessionsByCourse(ctx context.Context, courseID string) ([]model.Session, error)
	SessionAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
	MarkAttendance(ctx context.Context, courseID, sessionID string, req apiclient.MarkRequest) (*apiclient.MarkResult, error)
}

// Camera is the capture widget. *camera.Widget implements it.
type Camera interface {
	Start(ctx context.Context) error
	Stop() error
	Capture(ctx context.Context) (string, error)
	IsActive() bool
}

// Locator produces one position fix per call. *geo.Acquirer implements it.
type Locator interface {
	Acquire(ctx context.Context) (model.Coordinates, error)
}

// Journal records submission attempts. *journal.Repository implements it.
type Journal interface {
	Insert(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Options wires optional collaborators into a Controller.
type Options struct {
	Camera  Camera
	Locator Locator
	Journal Journal
	Events  queue.Queue
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// SubmitTimeout bounds one whole submission. Zero means 60s.
	SubmitTimeout time.Duration
}

// Controller owns the selection state of one operator and runs submissions
// against it. It is safe for concurrent use.
type Controller struct {
	api           API
	cam           Camera
	locator       Locator
	journal       Journal
	events        queue.Queue
	metrics       *metrics.Recorder
	logger        *slog.Logger
	submitTimeout time.Duration

	root   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every selection change
	submitting bool
	closed     bool
}

// NewController returns a controller in the no-session-selected phase.
func NewController(api API, opts Options) *Controller {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 60 * time.Second
	}
	if opts.Locator == nil {
		opts.Locator = geo.NewAcquirer(nil, geo.DefaultOptions(), opts.Logger)
	}
	root, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:           api,
		cam:           opts.Camera,
		locator:       opts.Locator,
		journal:       opts.Journal,
		events:        opts.Events,
		metrics:       opts.Metrics,
		logger:        logging.OrDiscard(opts.Logger),
		submitTimeout: opts.SubmitTimeout,
		root:          root,
		cancel:        cancel,
		state:         State{Phase: PhaseNoSession, UpdatedAt: time.Now().UTC()},
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state.clone()
	if c.cam != nil {
		s.CameraActive = c.cam.IsActive()
	}
	return s
}

// bind derives a context cancelled by either ctx or Close.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// moveLocked changes phase. The caller holds c.mu.
func (c *Controller) moveLocked(next Phase) error {
	if c.state.Phase != next && !c.state.Phase.CanTransition(next) {
		return &TransitionError{From: c.state.Phase, To: next}
	}
	c.state.Phase = next
	c.state.UpdatedAt = time.Now().UTC()
	c.publish(queue.TypePhase, map[string]any{
		"phase":      next,
		"course_id":  c.state.CourseID,
		"session_id": sessionID(c.state.Session),
	})
	return nil
}

func (c *Controller) publish(typ string, body any) {
	if c.events == nil {
		return
	}
	msg, err := queue.NewMessage(typ, body)
	if err != nil {
		c.logger.Warn("encode event failed", "type", typ, "err", err)
		return
	}
	// Never block the state machine on a slow consumer.
	if mem, ok := c.events.(*queue.InMemory); ok {
		if err := mem.TryPublish(msg); err != nil {
			c.logger.Debug("event dropped", "type", typ, "err", err)
		}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.events.Publish(ctx, msg); err != nil {
			c.logger.Debug("event publish failed", "type", typ, "err", err)
		}
	}()
}

// LoadCourses fetches the course list.
func (c *Controller) LoadCourses(ctx context.Context) error {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	courses, err := c.api.ListCourses(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("fetch courses failed", "err", err)
		return err
	}
	c.state.Courses = courses
	c.state.UpdatedAt = time.Now().UTC()
	return nil
}

// SelectCourse clears the selected session and its list, then fetches the
// sessions of courseID. An empty courseID only clears.
func (c *Controller) SelectCourse(ctx context.Context, courseID string) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	_ = c.stopCameraLocked()
	c.gen++
	gen := c.gen
	c.state.CourseID = courseID
	c.state.Session = nil
	c.state.Sessions = nil
	c.state.Records = nil
	c.state.SessionError = ""
	c.state.AttendanceError = ""
	c.state.CaptureError = ""
	c.state.Message = ""
	if courseID == "" {
		c.state.Phase = PhaseNoSession
		c.state.UpdatedAt = time.Now().UTC()
		c.mu.Unlock()
		return nil
	}
	if err := c.moveLocked(PhaseLoadingSessions); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	sessions, err := c.api.ListSessionsByCourse(ctx, courseID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// superseded by a newer selection
		return ctx.Err()
	}
	if err != nil {
		c.state.SessionError = apiMessage(err, MsgFetchSessions)
		c.logger.Warn("fetch sessions failed", "course_id", courseID, "err", err)
	} else {
		c.state.Sessions = sessions
	}
	if merr := c.moveLocked(PhaseNoSession); merr != nil {
		return merr
	}
	return err
}

// SelectSession selects one of the listed sessions, resets the camera and
// capture error, fetches the session's attendance and a fresh location fix.
// The returned error is the attendance fetch error; a location failure is
// only recorded in State.LocationError.
func (c *Controller) SelectSession(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if c.state.CourseID == "" {
		c.mu.Unlock()
		return ErrNoCourse
	}
	var found *model.Session
	for i := range c.state.Sessions {
		if c.state.Sessions[i].ID == id {
			s := c.state.Sessions[i]
			found = &s
			break
		}
	}
	if found == nil {
		c.mu.Unlock()
		return ErrUnknownSession
	}
	if err := c.moveLocked(PhaseSessionSelected); err != nil {
		c.mu.Unlock()
		return err
	}
	_ = c.stopCameraLocked()
	c.gen++
	c.state.Session = found
	c.state.Records = nil
	c.state.Location = nil
	c.state.LocationError = ""
	c.state.AttendanceError = ""
	c.state.CaptureError = ""
	c.state.Message = ""
	c.mu.Unlock()

	err := c.RefreshAttendance(ctx)
	_ = c.RefreshLocation(ctx)
	return err
}

// RefreshAttendance re-fetches the attendance list of the selected session.
func (c *Controller) RefreshAttendance(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if err := c.moveLocked(PhaseLoadingAttendance); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	sid := c.state.Session.ID
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	return c.fetchAttendance(ctx, gen, sid)
}

// fetchAttendance runs one list fetch and settles the loading phase.
func (c *Controller) fetchAttendance(ctx context.Context, gen uint64, sid string) error {
	records, err := c.api.SessionAttendance(ctx, sid)
	c.metrics.Refresh(err == nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ctx.Err()
	}
	if err != nil {
		c.state.AttendanceError = apiMessage(err, MsgFetchRecords)
		c.logger.Warn("fetch attendance failed", "session_id", sid, "err", err)
		if merr := c.moveLocked(PhaseAttendanceError); merr != nil {
			return merr
		}
		return err
	}
	c.state.Records = records
	c.state.AttendanceError = ""
	if err := c.moveLocked(PhaseAttendanceLoaded); err != nil {
		return err
	}
	c.publish(queue.TypeAttendance, map[string]any{
		"session_id": sid,
		"records":    records,
	})
	return nil
}

// RefreshLocation requests a fresh position fix for the selected session.
func (c *Controller) RefreshLocation(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	gen := c.gen
	c.state.LocationError = ""
	c.mu.Unlock()

	ctx, cancel := c.bind(ctx)
	defer cancel()
	coords, err := c.locator.Acquire(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ctx.Err()
	}
	if err != nil {
		c.metrics.LocationFailure(geo.ErrorCode(err).String())
		c.state.Location = nil
		c.state.LocationError = geo.FailureMessage
		return err
	}
	c.state.Location = &coords
	return nil
}

// StartCamera opens the capture widget for the selected session. Starting an
// already active camera is a no-op.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.captureReadyLocked(); err != nil {
		return err
	}
	if c.state.Phase == PhaseCameraActive && c.cam.IsActive() {
		return nil
	}
	if !c.state.Phase.CanTransition(PhaseCameraActive) {
		return &TransitionError{From: c.state.Phase, To: PhaseCameraActive}
	}
	c.state.CaptureError = ""
	if err := c.cam.Start(ctx); err != nil {
		c.metrics.CameraFailure()
		c.state.CaptureError = cameraMessage(err)
		return err
	}
	return c.moveLocked(PhaseCameraActive)
}

// StopCamera closes the capture widget and returns to the list phase.
func (c *Controller) StopCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return ErrSubmissionInFlight
	}
	err := c.stopCameraLocked()
	if c.state.Phase == PhaseCameraActive {
		_ = c.moveLocked(c.listPhaseLocked())
	}
	return err
}

func (c *Controller) stopCameraLocked() error {
	if c.cam == nil {
		return nil
	}
	return c.cam.Stop()
}

// listPhaseLocked is the phase the attendance list was last settled in.
func (c *Controller) listPhaseLocked() Phase {
	if c.state.AttendanceError != "" {
		return PhaseAttendanceError
	}
	return PhaseAttendanceLoaded
}

func (c *Controller) captureReadyLocked() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.cam == nil:
		return ErrCameraInactive
	case c.state.Session == nil:
		return ErrNoSession
	case !c.state.Session.IsActive():
		return ErrSessionInactive
	case !c.state.Session.AcceptsFaceCapture():
		return ErrCaptureUnsupported
	}
	return nil
}

// Close cancels in-flight calls and releases the camera. The controller
// rejects submissions afterwards.
func (c *Controller) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.stopCameraLocked()
}

func sessionID(s *model.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func apiMessage(err error, fallback string) string {
	if apiErr, ok := apiclient.AsError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
