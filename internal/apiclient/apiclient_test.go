package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendclient/internal/model"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, opts...)
}

func respond(body string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestLoginShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantToken string
		wantRole  model.Role
	}{
		{
			name:      "user and token",
			body:      `{"user":{"_id":"u1","fullName":"Ama Mensah","userIdentifier":"L001","role":"Lecturer"},"token":"abc"}`,
			wantToken: "abc",
			wantRole:  model.RoleLecturer,
		},
		{
			name:      "wrapped in data",
			body:      `{"data":{"user":{"id":"u1","name":"Ama Mensah","role":"student"},"token":"xyz"}}`,
			wantToken: "xyz",
			wantRole:  model.RoleStudent,
		},
		{
			name:     "bare user",
			body:     `{"data":{"_id":"u1","fullName":"Ama Mensah","role":"admin"}}`,
			wantRole: model.RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			mux := http.NewServeMux()
			mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "L001", body["userIdentifier"])
				assert.Equal(t, "1234", body["pin"])
				respond(tt.body, http.StatusOK)(w, r)
			})
			mux.HandleFunc("GET /courses", func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				respond(`[]`, http.StatusOK)(w, r)
			})
			c := newTestClient(t, mux)

			sess, err := c.Login(context.Background(), "L001", "1234")
			require.NoError(t, err)
			assert.Equal(t, "u1", sess.User.ID)
			assert.Equal(t, "Ama Mensah", sess.User.FullName)
			assert.Equal(t, tt.wantRole, sess.User.Role)
			assert.Equal(t, tt.wantToken, sess.Token)

			_, err = c.ListCourses(context.Background())
			require.NoError(t, err)
			if tt.wantToken != "" {
				assert.Equal(t, "Bearer "+tt.wantToken, gotAuth)
			} else {
				assert.Empty(t, gotAuth)
			}
		})
	}
}

func TestLoginRejected(t *testing.T) {
	c := newTestClient(t, respond(`{"message":"Invalid credentials"}`, http.StatusUnauthorized))

	_, err := c.Login(context.Background(), "L001", "0000")
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestLoginWithoutUser(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{}}`, http.StatusOK))

	_, err := c.Login(context.Background(), "L001", "1234")
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, apiErr.Unauthorized())
}

func TestListCoursesDecoding(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare array", body: `[{"_id":"c1","course_code":"CS101","course_name":"Intro","lecturer":{"_id":"l1"},"semester":1,"status":"active"}]`},
		{name: "envelope", body: `{"data":[{"_id":"c1","course_code":"CS101","course_name":"Intro","lecturer":"l1","semester":"1","status":"active"}]}`},
		{name: "envelope with key", body: `{"data":{"courses":[{"id":"c1","course_code":"CS101","course_name":"Intro","lecturer":"l1","semester":"1","status":"active"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.body, http.StatusOK))

			courses, err := c.ListCourses(context.Background())
			require.NoError(t, err)
			require.Len(t, courses, 1)
			assert.Equal(t, "c1", courses[0].ID)
			assert.Equal(t, "CS101", courses[0].Code)
			assert.Equal(t, "l1", courses[0].LecturerID)
			assert.Equal(t, "1", courses[0].Semester)
			assert.Equal(t, model.CourseStatus("active"), courses[0].Status)
		})
	}
}

func TestSearchCoursesQuery(t *testing.T) {
	var query string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		respond(`[]`, http.StatusOK)(w, r)
	}))

	courses, err := c.SearchCourses(context.Background(), 20, 10, "algo")
	require.NoError(t, err)
	assert.Empty(t, courses)
	assert.Equal(t, "limit=10&offset=20&search=algo", query)
}

func TestSessionDefaults(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{"_id":"s1","course":{"_id":"c1"},"topic":"Graphs","duration":"90","status":"","attendance_weight":"2","location":{"name":"Hall A","latitude":"5.6","longitude":-0.2,"radius":50}}}`, http.StatusOK))

	s, err := c.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", s.CourseID)
	assert.Equal(t, 90, s.DurationMinutes)
	assert.Equal(t, model.SessionInactive, s.Status)
	assert.Equal(t, model.TypeFaceRecognition, s.AttendanceType)
	assert.Equal(t, 2.0, s.AttendanceWeight)
	assert.Equal(t, "Hall A", s.Location.Name)
	assert.Equal(t, 5.6, s.Location.Latitude)
	assert.Equal(t, 50.0, s.Location.Radius)
}

func TestSessionAttendance(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{"attendance_details":[{"_id":"r1","student":{"_id":"st1","fullName":"Kofi Boateng","userIdentifier":"S001"},"check_in_time":"2024-03-01T09:05:00Z","attendance_status":"present","location_status":"within_range","verification_method":"face_recognition"}],"present_count":1}}`, http.StatusOK))

	recs, err := c.SessionAttendance(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "s1", r.SessionID)
	assert.Equal(t, "Kofi Boateng", r.Student.FullName)
	require.NotNil(t, r.CapturedAt)
	assert.Equal(t, 9, r.CapturedAt.Hour())
	require.NotNil(t, r.LocationStatus)
	assert.Equal(t, model.LocationWithinRange, *r.LocationStatus)
	require.NotNil(t, r.VerificationMethod)
	assert.Nil(t, r.Score)
}

func TestMarkAttendanceMultipart(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /face-recognition/faceId-verify/{course}/{session}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.PathValue("course"))
		assert.Equal(t, "s1", r.PathValue("session"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		got, _ := io.ReadAll(f)
		assert.Equal(t, image, got)
		assert.Equal(t, "attendance_face.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))

		assert.Equal(t, "5.6", r.FormValue("latitude"))
		assert.Equal(t, "-0.2", r.FormValue("longitude"))
		assert.Equal(t, "12", r.FormValue("accuracy"))
		respond(`{"success":true,"message":"Marked","data":{"_id":"r9","student":{"_id":"st1","fullName":"Kofi"},"attendance_status":"present"}}`, http.StatusOK)(w, r)
	})
	c := newTestClient(t, mux)

	res, err := c.MarkAttendance(context.Background(), "c1", "s1", MarkRequest{
		Image:    image,
		Location: &model.Coordinates{Latitude: 5.6, Longitude: -0.2, Accuracy: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, "Marked", res.Message)
	require.NotNil(t, res.Record)
	assert.Equal(t, "r9", res.Record.ID)
}

func TestMarkAttendanceWithoutLocation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasLat := r.MultipartForm.Value["latitude"]
		assert.False(t, hasLat)
		respond(`{}`, http.StatusOK)(w, r)
	}))

	res, err := c.MarkAttendance(context.Background(), "c1", "s1", MarkRequest{Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "Attendance marked successfully", res.Message)
	assert.Nil(t, res.Record)
}

func TestMarkAttendanceFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "success false", status: http.StatusOK, body: `{"success":false,"message":"No face detected"}`, wantStatus: http.StatusUnprocessableEntity, wantMsg: "No face detected"},
		{name: "success false without message", status: http.StatusOK, body: `{"success":false}`, wantStatus: http.StatusUnprocessableEntity, wantMsg: "attendance was not marked"},
		{name: "server rejection", status: http.StatusBadRequest, body: `{"error":"Session is not active"}`, wantStatus: http.StatusBadRequest, wantMsg: "Session is not active"},
		{name: "plain text body", status: http.StatusInternalServerError, body: `upstream down`, wantStatus: http.StatusInternalServerError, wantMsg: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.body, tt.status))

			_, err := c.MarkAttendance(context.Background(), "c1", "s1", MarkRequest{Image: []byte{1}})
			apiErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestMarkAttendanceNeedsImage(t *testing.T) {
	c := New("http://127.0.0.1:0", time.Second)

	_, err := c.MarkAttendance(context.Background(), "c1", "s1", MarkRequest{})
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "image is required", apiErr.Message)
	assert.False(t, apiErr.Transport())
}

func TestUnauthorizedHook(t *testing.T) {
	calls := 0
	c := newTestClient(t, respond(`{"message":"expired"}`, http.StatusUnauthorized), WithUnauthorizedHook(func() { calls++ }))

	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	// Forbidden does not clear the session.
	c = newTestClient(t, respond(`{}`, http.StatusForbidden), WithUnauthorizedHook(func() { calls++ }))
	_, err = c.ListSessions(context.Background())
	apiErr, _ := AsError(err)
	require.NotNil(t, apiErr)
	assert.True(t, apiErr.Forbidden())
	assert.Equal(t, 1, calls)
}

func TestErrorClassification(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := New(srv.URL, 20*time.Millisecond)
		_, err := c.ListCourses(context.Background())
		apiErr, ok := AsError(err)
		require.True(t, ok)
		assert.True(t, apiErr.Timeout())
		assert.True(t, apiErr.Transport())
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := New(url, time.Second)
		_, err := c.ListCourses(context.Background())
		apiErr, ok := AsError(err)
		require.True(t, ok)
		assert.True(t, apiErr.Transport())
		assert.False(t, apiErr.Timeout())
		assert.Zero(t, apiErr.Status)
	})

	t.Run("gateway timeout status", func(t *testing.T) {
		e := &Error{Op: "GET /x", Status: http.StatusGatewayTimeout}
		assert.True(t, e.Timeout())
		assert.False(t, e.Transport())
	})

	t.Run("rejected statuses", func(t *testing.T) {
		for _, status := range []int{400, 404, 409, 422} {
			assert.True(t, (&Error{Status: status}).Rejected(), status)
		}
		assert.False(t, (&Error{Status: 500}).Rejected())
	})
}

func TestVerifyLocation(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		want         model.LocationStatus
		wantDistance *float64
	}{
		{name: "explicit status", body: `{"data":{"location_status":"outside_range","distance":"120.5"}}`, want: model.LocationOutsideRange, wantDistance: ptr(120.5)},
		{name: "within range flag", body: `{"within_range":true,"distance":3}`, want: model.LocationWithinRange, wantDistance: ptr(3.0)},
		{name: "outside range flag", body: `{"within_range":false}`, want: model.LocationOutsideRange},
		{name: "no verdict", body: `{"message":"no geofence"}`, want: model.LocationNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /attendance/{id}/verify-location", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "s1", r.PathValue("id"))
				respond(tt.body, http.StatusOK)(w, r)
			})
			c := newTestClient(t, mux)

			check, err := c.VerifyLocation(context.Background(), "s1", model.Coordinates{Latitude: 5.6, Longitude: -0.2})
			require.NoError(t, err)
			assert.Equal(t, tt.want, check.Status)
			assert.Equal(t, tt.wantDistance, check.Distance)
		})
	}
}

func TestCourseScores(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{"course":{"_id":"c1","course_code":"CS101","course_name":"Intro"},"totalSessions":4,"studentScores":[{"studentId":"st1","fullName":"Kofi Boateng","userIdentifier":"S001","attendedSessions":3,"averageScore":"75","totalScore":3}]}}`, http.StatusOK))

	sheet, err := c.CourseScores(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "CS101", sheet.CourseCode)
	assert.Equal(t, 4, sheet.TotalSessions)
	require.Len(t, sheet.Students, 1)
	assert.Equal(t, 75.0, sheet.Students[0].AverageScore)
	assert.Equal(t, 3, sheet.Students[0].AttendedSessions)
}

func TestCourseScoresFallsBackToRequestedID(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{"totalSessions":0,"studentScores":[]}}`, http.StatusOK))

	sheet, err := c.CourseScores(context.Background(), "c7")
	require.NoError(t, err)
	assert.Equal(t, "c7", sheet.CourseID)
	assert.Empty(t, sheet.Students)
}

func TestSystemStatus(t *testing.T) {
	c := newTestClient(t, respond(`{"data":{"System Status":"All systems nominal","Database":"online","Auth":"online","Face API":"degraded","uptime":42}}`, http.StatusOK))

	got, err := c.SystemStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ServiceStatus{
		{Name: "Auth", Status: "online"},
		{Name: "Database", Status: "online"},
		{Name: "Face API", Status: "degraded"},
	}, got)
}

func TestLogoutForgetsToken(t *testing.T) {
	var auth []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		respond(`{}`, http.StatusOK)(w, r)
	}))
	c.SetToken("abc")

	require.NoError(t, c.Logout(context.Background()))
	_, err := c.ListCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer abc", ""}, auth)
}

func ptr(f float64) *float64 { return &f }

func TestMarkAttendanceUsesCallerDeadline(t *testing.T) {
	mux := http.NewServeMux()
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		respond(`{"success":true,"message":"Marked"}`, http.StatusOK)(w, r)
	}
	mux.HandleFunc("POST /face-recognition/faceId-verify/{course}/{session}", slow)
	mux.HandleFunc("GET /courses", slow)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.MarkAttendance(ctx, "c1", "s1", MarkRequest{Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "Marked", res.Message)

	// Other calls keep the per-call bound even under a longer deadline.
	_, err = c.ListCourses(ctx)
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, apiErr.Timeout())
}

func TestMarkAttendanceWithoutDeadlineIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, 50*time.Millisecond)
	_, err := c.MarkAttendance(context.Background(), "c1", "s1", MarkRequest{Image: []byte{1}})
	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, apiErr.Timeout())
}
