package console

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendclient/internal/apiclient"
	"attendclient/internal/attendance"
	"attendclient/internal/auth"
	"attendclient/internal/camera"
	"attendclient/internal/geo"
	"attendclient/internal/journal"
	"attendclient/internal/metrics"
	"attendclient/internal/model"
	"attendclient/internal/store"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

// remote is a stand-in for the attendance API.
type remote struct {
	unauthorized   atomic.Bool
	attendanceHits atomic.Int32
	marks          atomic.Int32
	deletes        atomic.Int32
}

func (rm *remote) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserIdentifier string `json:"userIdentifier"`
			PIN            string `json:"pin"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.PIN != "1234" {
			write(w, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
			return
		}
		role := "student"
		if strings.HasPrefix(body.UserIdentifier, "LEC") {
			role = "lecturer"
		}
		write(w, http.StatusOK, `{"user":{"_id":"u-1","fullName":"Test User","userIdentifier":"`+body.UserIdentifier+`","role":"`+role+`"}}`)
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"message":"Logged out"}`)
	})
	mux.HandleFunc("GET /courses", func(w http.ResponseWriter, r *http.Request) {
		if rm.unauthorized.Load() {
			write(w, http.StatusUnauthorized, `{"message":"Session expired"}`)
			return
		}
		write(w, http.StatusOK, `{"courses":[{"_id":"c1","course_code":"CS101","course_name":"Intro","status":"active","semester":1}]}`)
	})
	mux.HandleFunc("POST /courses", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "CS201", body["course_code"])
		write(w, http.StatusCreated, `{"_id":"c2","course_code":"CS201","course_name":"Data Structures","status":"active"}`)
	})
	mux.HandleFunc("DELETE /courses/{id}", func(w http.ResponseWriter, r *http.Request) {
		rm.deletes.Add(1)
		write(w, http.StatusOK, `{"message":"deleted"}`)
	})
	mux.HandleFunc("GET /sessions/course/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `[{"_id":"s1","course":"c1","topic":"Week 1","status":"active","attendance_type":"face_recognition","duration":60}]`)
	})
	mux.HandleFunc("GET /attendance/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		rm.attendanceHits.Add(1)
		write(w, http.StatusOK, `{"attendance_details":[
			{"_id":"r1","student":{"_id":"st1","fullName":"Ama Mensah","userIdentifier":"STU001"},"attendance_status":"present","location_status":"within_range","verification_method":"face_recognition","captured_at":"2024-03-01T09:30:00Z"},
			{"_id":"r2","student":{"_id":"st2","fullName":"Kofi Boateng","userIdentifier":"STU002"},"attendance_status":"absent"}
		]}`)
	})
	mux.HandleFunc("POST /face-recognition/faceId-verify/{course}/{session}", func(w http.ResponseWriter, r *http.Request) {
		rm.marks.Add(1)
		_, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			write(w, http.StatusBadRequest, `{"message":"image missing"}`)
			return
		}
		assert.Equal(t, "attendance_face.jpg", hdr.Filename)
		assert.Equal(t, "5.6", r.FormValue("latitude"))
		write(w, http.StatusOK, `{"success":true,"message":"Attendance marked successfully"}`)
	})
	mux.HandleFunc("GET /attendance-scores/course/{id}", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"data":{"course":{"_id":"c1","course_code":"CS101","course_name":"Intro"},"totalSessions":4,
			"studentScores":[{"studentId":"st1","fullName":"Ama Mensah","userIdentifier":"STU001","email":"ama@uni.edu","attendedSessions":4,"averageScore":90,"totalScore":360}]}}`)
	})
	mux.HandleFunc("POST /attendance/{id}/verify-location", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"data":{"within_range":true,"distance":12.5}}`)
	})
	return mux
}

type harness struct {
	t      *testing.T
	remote *remote
	router *gin.Engine
	auth   *auth.Store
	ctrl   *attendance.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rm := &remote{}
	srv := httptest.NewServer(rm.handler(t))
	t.Cleanup(srv.Close)

	authStore := auth.NewStore(store.NewMemoryKV(), nil)
	api := apiclient.New(srv.URL, 5*time.Second, apiclient.WithUnauthorizedHook(authStore.ClearOnUnauthorized()))

	frame := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(frame, jpeg, 0o600))

	fix := model.Coordinates{Latitude: 5.6, Longitude: -0.2, Accuracy: 10}
	locator := geo.NewAcquirer(geo.StaticProvider{Fix: &fix}, geo.DefaultOptions(), nil)

	db, err := store.OpenDB(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := journal.NewRepository(db.Client)
	require.NoError(t, repo.Migrate(context.Background()))

	rec := metrics.New(prometheus.NewRegistry())
	ctrl := attendance.NewController(api, attendance.Options{
		Camera:  camera.NewWidget(camera.FileDevice{Path: frame}, nil),
		Locator: locator,
		Journal: repo,
		Metrics: rec,
	})
	t.Cleanup(func() { _ = ctrl.Close() })

	feedCtx, stopFeed := context.WithCancel(context.Background())
	t.Cleanup(stopFeed)
	hub := NewHub(rec, nil)
	go hub.Run(feedCtx)

	router := NewRouter(Deps{
		API:        api,
		Auth:       authStore,
		Attendance: ctrl,
		Locator:    locator,
		Journal:    repo,
		Hub:        hub,
		Gatherer:   prometheus.NewRegistry(),
		Location:   time.UTC,
	})
	return &harness{t: t, remote: rm, router: router, auth: authStore, ctrl: ctrl}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login(id string) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/login", `{"userIdentifier":"`+id+`","pin":"1234"}`)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLoginRedirectsByRole(t *testing.T) {
	tests := []struct {
		id       string
		redirect string
	}{
		{id: "LEC01", redirect: auth.LecturerPath},
		{id: "STU001", redirect: auth.StudentPath},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			h := newHarness(t)
			w := h.do(http.MethodPost, "/login", `{"userIdentifier":"`+tt.id+`","pin":"1234"}`)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.redirect, decode(t, w)["redirect"])

			st, err := h.auth.Load(context.Background())
			require.NoError(t, err)
			assert.True(t, st.Authenticated)
		})
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/login", `{"userIdentifier":"LEC01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/login", `{"userIdentifier":"LEC01","pin":"0000"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.LoginPath, decode(t, w)["redirect"])
}

func TestRoleGuard(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/lecturer/courses", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, auth.LoginPath, decode(t, w)["redirect"])

	h.login("STU001")
	w = h.do(http.MethodGet, "/lecturer/courses", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auth.StudentPath, decode(t, w)["redirect"])

	w = h.do(http.MethodGet, "/student/courses", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeedRequiresStaff(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login("STU001")
	_, resp, err = ws.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.login("LEC01")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestRemoteUnauthorizedClearsLogin(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	h.remote.unauthorized.Store(true)
	w := h.do(http.MethodGet, "/lecturer/courses", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	st, err := h.auth.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/lecturer/courses", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateCourse(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodPost, "/lecturer/courses", `{"course_code":"","name":"","semester":5,"academic_year":"2024"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["fields"])

	w = h.do(http.MethodPost, "/lecturer/courses", `{"course_code":"cs201","name":"Data Structures","semester":1,"academic_year":"2024/2025","status":"active"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDeleteCourseNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodDelete, "/lecturer/courses/c1", "")
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Zero(t, h.remote.deletes.Load())

	w = h.do(http.MethodDelete, "/lecturer/courses/c1?confirm=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, h.remote.deletes.Load())
}

func TestAttendanceFlow(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodPost, "/lecturer/attendance/courses/reload", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/lecturer/attendance/course", `{"id":"c1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(attendance.PhaseNoSession), decode(t, w)["phase"])

	w = h.do(http.MethodPost, "/lecturer/attendance/session", `{"id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(attendance.PhaseAttendanceLoaded), body["phase"])
	assert.Equal(t, true, body["camera_available"])
	require.EqualValues(t, 1, h.remote.attendanceHits.Load())

	w = h.do(http.MethodPost, "/lecturer/attendance/submit", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/lecturer/attendance/camera/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(attendance.PhaseCameraActive), decode(t, w)["phase"])

	w = h.do(http.MethodPost, "/lecturer/attendance/submit", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance marked successfully", decode(t, w)["message"])
	assert.EqualValues(t, 1, h.remote.marks.Load())
	assert.EqualValues(t, 2, h.remote.attendanceHits.Load())
	assert.False(t, h.ctrl.Snapshot().CameraActive)

	w = h.do(http.MethodGet, "/lecturer/attendance/journal?session_id=s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, string(journal.OutcomeSuccess), entries[0].(map[string]any)["outcome"])
}

func TestRecordsExport(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodGet, "/lecturer/sessions/s1/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = h.do(http.MethodGet, "/lecturer/sessions/s1/records?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_s1_")
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "STU001", rows[1][0])
	assert.Equal(t, "within range", rows[1][4])
	assert.Equal(t, "N/A", rows[2][2])

	w = h.do(http.MethodGet, "/lecturer/sessions/s1/records?format=docx", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScores(t *testing.T) {
	h := newHarness(t)
	h.login("LEC01")

	w := h.do(http.MethodGet, "/lecturer/courses/c1/scores?format=xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_scores_CS101.xlsx")

	w = h.do(http.MethodGet, "/lecturer/courses/c1/scores?q=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, "No students match your search criteria.", body["empty"])
}

func TestStudentVerifyLocation(t *testing.T) {
	h := newHarness(t)
	h.login("STU001")

	w := h.do(http.MethodPost, "/student/sessions/s1/verify-location", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	check := decode(t, w)["check"].(map[string]any)
	assert.Equal(t, string(model.LocationWithinRange), check["status"])
}

func TestRecoveryAsksForReload(t *testing.T) {
	h := newHarness(t)
	h.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := h.do(http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "reload", body["action"])
	assert.Equal(t, MsgUnexpected, body["error"])
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Deps{
		Auth:   auth.NewStore(store.NewMemoryKV(), nil),
		Health: map[string]HealthCheck{"redis": func(context.Context) bool { return false }},
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":false`)
}
