package forms

import (
	"strconv"
	"strings"

	"attendclient/internal/apiclient"
	"attendclient/internal/model"
)

// CourseForm is the create/update form of a course.
type CourseForm struct {
	Code             string `json:"course_code" validate:"notblank"`
	Name             string `json:"name" validate:"notblank"`
	Semester         int    `json:"semester" validate:"min=1,max=3"`
	AcademicYear     string `json:"academic_year" validate:"notblank,academic_year"`
	Status           string `json:"status" validate:"oneof=active inactive completed"`
	IsEnrollmentOpen bool   `json:"isEnrollmentOpen"`
}

var courseMessages = messages{
	"course_code":                 "Course code is required",
	"name":                        "Course name is required",
	"semester":                    "Semester must be between 1 and 3",
	"academic_year.notblank":      "Academic year is required",
	"academic_year.academic_year": "Academic year must be in format YYYY/YYYY",
	"status":                      "Status is required",
}

// NewCourseForm returns a blank form with the defaults of a new course.
func NewCourseForm() CourseForm {
	return CourseForm{Semester: 1, Status: string(model.CourseInactive)}
}

// CourseFormFrom prefills the update form from an existing course.
func CourseFormFrom(c model.Course) CourseForm {
	f := NewCourseForm()
	f.Code = c.Code
	f.Name = c.Name
	if n, err := strconv.Atoi(strings.TrimSpace(c.Semester)); err == nil {
		f.Semester = n
	}
	f.AcademicYear = c.AcademicYear
	if c.Status != "" {
		f.Status = string(c.Status)
	}
	f.IsEnrollmentOpen = c.EnrollmentOpen
	return f
}

// Validate checks the form.
func (f CourseForm) Validate() error {
	return check(f, "invalid course", courseMessages)
}

// Input validates the form and builds the request body. The course code is
// sent upper-cased.
func (f CourseForm) Input(lecturerID string) (apiclient.CourseInput, error) {
	if err := f.Validate(); err != nil {
		return apiclient.CourseInput{}, err
	}
	return apiclient.CourseInput{
		Code:             strings.ToUpper(strings.TrimSpace(f.Code)),
		Name:             strings.TrimSpace(f.Name),
		Lecturer:         lecturerID,
		Semester:         strconv.Itoa(f.Semester),
		AcademicYear:     strings.TrimSpace(f.AcademicYear),
		Status:           f.Status,
		IsEnrollmentOpen: f.IsEnrollmentOpen,
	}, nil
}
