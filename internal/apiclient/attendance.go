package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"attendclient/internal/model"
)

// MarkRequest is the multipart submission for face-recognition attendance.
type MarkRequest struct {
	Image       []byte
	Filename    string
	ContentType string
	Location    *model.Coordinates
}

// MarkedMessage is the confirmation used when the server sends none.
const MarkedMessage = "Attendance marked successfully"

// MarkResult is the confirmation of a successful submission. Message is
// never empty.
type MarkResult struct {
	Message string
	Record  *model.AttendanceRecord
}

// SessionAttendance returns the attendance records of a session.
func (c *Client) SessionAttendance(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	path := "/attendance/session/" + url.PathEscape(sessionID)
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}
	var wire []wireRecord
	if err := decodeList("GET "+path, env, &wire, "attendance_details"); err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, 0, len(wire))
	for _, w := range wire {
		rec := w.toModel()
		if rec.SessionID == "" {
			rec.SessionID = sessionID
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkAttendance uploads a captured face image, with the capturing device's
// position when known, to be matched and recorded by the server.
// A 2xx response carrying success=false is returned as an *Error. A deadline
// on ctx takes the place of the client's per-call timeout.
func (c *Client) MarkAttendance(ctx context.Context, courseID, sessionID string, req MarkRequest) (*MarkResult, error) {
	path := fmt.Sprintf("/face-recognition/faceId-verify/%s/%s", url.PathEscape(courseID), url.PathEscape(sessionID))
	op := "POST " + path
	if len(req.Image) == 0 {
		return nil, &Error{Op: op, Message: "image is required"}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = "attendance_face.jpg"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("create form file failed: %w", err)}
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("write file failed: %w", err)}
	}
	if req.Location != nil {
		for _, f := range []struct {
			name  string
			value float64
		}{
			{"latitude", req.Location.Latitude},
			{"longitude", req.Location.Longitude},
			{"accuracy", req.Location.Accuracy},
		} {
			if err := w.WriteField(f.name, formatFloat(f.value)); err != nil {
				return nil, &Error{Op: op, Err: fmt.Errorf("write field %s failed: %w", f.name, err)}
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	// face matching is slow: the caller's submission deadline applies
	ctx, cancel := c.bound(ctx, true)
	defer cancel()
	env, err := c.roundTrip(ctx, http.MethodPost, path, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "attendance was not marked"
		}
		return nil, &Error{Op: op, Status: http.StatusUnprocessableEntity, Message: msg}
	}

	res := &MarkResult{Message: env.Message}
	if res.Message == "" {
		res.Message = MarkedMessage
	}
	var wr wireRecord
	if err := json.Unmarshal(env.Data, &wr); err == nil {
		if rec := wr.toModel(); rec.ID != "" {
			res.Record = &rec
		}
	}
	return res, nil
}

// LocationCheck is the server's verdict on a position against a session geofence.
type LocationCheck struct {
	Status   model.LocationStatus `json:"status"`
	Distance *float64             `json:"distance,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// VerifyLocation asks the server whether coords fall within the session geofence.
func (c *Client) VerifyLocation(ctx context.Context, sessionID string, coords model.Coordinates) (*LocationCheck, error) {
	path := "/attendance/" + url.PathEscape(sessionID) + "/verify-location"
	env, err := c.sendJSON(ctx, http.MethodPost, path, coords)
	if err != nil {
		return nil, err
	}
	var out struct {
		LocationStatus string      `json:"location_status"`
		Status         string      `json:"status"`
		WithinRange    *bool       `json:"within_range"`
		Distance       *flexNumber `json:"distance"`
	}
	if err := decodeData("POST "+path, env, &out); err != nil {
		return nil, err
	}
	check := &LocationCheck{Message: env.Message}
	switch {
	case out.LocationStatus != "":
		check.Status = model.LocationStatus(out.LocationStatus)
	case out.WithinRange != nil && *out.WithinRange:
		check.Status = model.LocationWithinRange
	case out.WithinRange != nil:
		check.Status = model.LocationOutsideRange
	default:
		check.Status = model.LocationNotVerified
	}
	if out.Distance != nil {
		d := float64(*out.Distance)
		check.Distance = &d
	}
	return check, nil
}

// CourseScores returns the attendance score aggregation of a course.
func (c *Client) CourseScores(ctx context.Context, courseID string) (model.ScoreSheet, error) {
	path := "/attendance-scores/course/" + url.PathEscape(courseID)
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return model.ScoreSheet{}, err
	}
	var w wireScoreSheet
	if err := decodeData("GET "+path, env, &w); err != nil {
		return model.ScoreSheet{}, err
	}
	return w.toModel(courseID), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
