package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"attendclient/internal/model"
)

// LocationInput is the geofence body of a session.
type LocationInput struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// SessionInput is the create body for a session.
type SessionInput struct {
	Course           string        `json:"course"`
	Topic            string        `json:"topic"`
	Duration         int           `json:"duration"`
	SessionDate      time.Time     `json:"session_date"`
	Status           string        `json:"status"`
	AttendanceWeight float64       `json:"attendance_weight"`
	AttendanceType   string        `json:"attendance_type"`
	Location         LocationInput `json:"location"`
}

// SessionPatch is a partial session update; nil fields are left unchanged.
type SessionPatch struct {
	Topic            *string        `json:"topic,omitempty"`
	Duration         *int           `json:"duration,omitempty"`
	SessionDate      *time.Time     `json:"session_date,omitempty"`
	Status           *string        `json:"status,omitempty"`
	AttendanceWeight *float64       `json:"attendance_weight,omitempty"`
	AttendanceType   *string        `json:"attendance_type,omitempty"`
	Location         *LocationInput `json:"location,omitempty"`
}

// ListSessions returns every session visible to the user.
func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	return c.listSessions(ctx, "/sessions")
}

// ListSessionsByCourse returns the sessions of one course.
func (c *Client) ListSessionsByCourse(ctx context.Context, courseID string) ([]model.Session, error) {
	return c.listSessions(ctx, "/sessions/course/"+url.PathEscape(courseID))
}

func (c *Client) listSessions(ctx context.Context, path string) ([]model.Session, error) {
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}
	var wire []wireSession
	if err := decodeList("GET "+path, env, &wire, "sessions"); err != nil {
		return nil, err
	}
	out := make([]model.Session, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toModel())
	}
	return out, nil
}

// GetSession returns one session.
func (c *Client) GetSession(ctx context.Context, id string) (model.Session, error) {
	path := "/sessions/" + url.PathEscape(id)
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return model.Session{}, err
	}
	var w wireSession
	if err := decodeData("GET "+path, env, &w); err != nil {
		return model.Session{}, err
	}
	return w.toModel(), nil
}

// CreateSession schedules a new session under a course.
func (c *Client) CreateSession(ctx context.Context, in SessionInput) (model.Session, error) {
	env, err := c.sendJSON(ctx, http.MethodPost, "/sessions", in)
	if err != nil {
		return model.Session{}, err
	}
	var w wireSession
	if err := decodeData("POST /sessions", env, &w); err != nil {
		return model.Session{}, err
	}
	return w.toModel(), nil
}

// UpdateSession applies a partial update and returns the server's copy.
func (c *Client) UpdateSession(ctx context.Context, id string, patch SessionPatch) (model.Session, error) {
	path := "/sessions/" + url.PathEscape(id)
	env, err := c.sendJSON(ctx, http.MethodPut, path, patch)
	if err != nil {
		return model.Session{}, err
	}
	var w wireSession
	if err := decodeData("PUT "+path, env, &w); err != nil {
		return model.Session{}, err
	}
	return w.toModel(), nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.sendJSON(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil)
	return err
}
