package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"attendclient/internal/model"
)

// CourseInput is the create/update body for a course.
type CourseInput struct {
	Code             string `json:"course_code"`
	Name             string `json:"course_name"`
	Lecturer         string `json:"lecturer,omitempty"`
	Semester         string `json:"semester"`
	AcademicYear     string `json:"academic_year"`
	Status           string `json:"status"`
	IsEnrollmentOpen bool   `json:"isEnrollmentOpen"`
}

// ListCourses returns all courses visible to the signed-in user.
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	return c.listCourses(ctx, "/courses")
}

// SearchCourses pages through courses with an optional search query.
func (c *Client) SearchCourses(ctx context.Context, offset, limit int, query string) ([]model.Course, error) {
	v := url.Values{}
	v.Set("offset", fmt.Sprint(offset))
	v.Set("limit", fmt.Sprint(limit))
	if query != "" {
		v.Set("search", query)
	}
	return c.listCourses(ctx, "/courses?"+v.Encode())
}

func (c *Client) listCourses(ctx context.Context, path string) ([]model.Course, error) {
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return nil, err
	}
	var wire []wireCourse
	if err := decodeList("GET "+path, env, &wire, "courses"); err != nil {
		return nil, err
	}
	out := make([]model.Course, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toModel())
	}
	return out, nil
}

// GetCourse returns one course.
func (c *Client) GetCourse(ctx context.Context, id string) (model.Course, error) {
	path := "/courses/" + url.PathEscape(id)
	env, err := c.getJSON(ctx, path)
	if err != nil {
		return model.Course{}, err
	}
	var w wireCourse
	if err := decodeData("GET "+path, env, &w); err != nil {
		return model.Course{}, err
	}
	return w.toModel(), nil
}

// CreateCourse creates a course owned by in.Lecturer.
func (c *Client) CreateCourse(ctx context.Context, in CourseInput) (model.Course, error) {
	env, err := c.sendJSON(ctx, http.MethodPost, "/courses/add", in)
	if err != nil {
		return model.Course{}, err
	}
	var w wireCourse
	if err := decodeData("POST /courses/add", env, &w); err != nil {
		return model.Course{}, err
	}
	return w.toModel(), nil
}

// UpdateCourse replaces the editable fields of a course.
func (c *Client) UpdateCourse(ctx context.Context, id string, in CourseInput) (model.Course, error) {
	path := "/courses/" + url.PathEscape(id)
	env, err := c.sendJSON(ctx, http.MethodPut, path, in)
	if err != nil {
		return model.Course{}, err
	}
	var w wireCourse
	if err := decodeData("PUT "+path, env, &w); err != nil {
		return model.Course{}, err
	}
	return w.toModel(), nil
}

// DeleteCourse removes a course.
func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	_, err := c.sendJSON(ctx, http.MethodDelete, "/courses/"+url.PathEscape(id), nil)
	return err
}
