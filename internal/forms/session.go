package forms

import (
	"errors"
	"strings"
	"time"

	"attendclient/internal/apiclient"
	"attendclient/internal/model"
)

const (
	DefaultRadius           = 50
	DefaultAttendanceWeight = 100
)

// HallRadius is the recommended geofence radius in meters per hall size.
var HallRadius = map[string]float64{
	"small":      20,
	"medium":     35,
	"large":      50,
	"auditorium": 75,
}

var (
	errMissingFields   = errors.New("Please fill in all required fields")
	errMissingLocation = errors.New("Please set the session location")
)

// SessionForm is the create form of a session. Date and Time are entered
// separately, as "2006-01-02" and "15:04".
type SessionForm struct {
	Topic            string   `json:"topic" validate:"notblank"`
	Date             string   `json:"date" validate:"notblank,datetime=2006-01-02"`
	Time             string   `json:"time" validate:"notblank,datetime=15:04"`
	Duration         int      `json:"duration" validate:"gt=0"`
	LocationName     string   `json:"location_name" validate:"notblank"`
	Latitude         *float64 `json:"latitude" validate:"required,latitude"`
	Longitude        *float64 `json:"longitude" validate:"required,longitude"`
	Radius           float64  `json:"radius" validate:"gt=0"`
	AttendanceType   string   `json:"attendance_type" validate:"oneof=face_recognition student_based hybrid"`
	Status           string   `json:"status" validate:"oneof=active inactive"`
	AttendanceWeight float64  `json:"attendance_weight" validate:"gte=0"`
}

var sessionMessages = messages{
	"topic":               "Topic is required",
	"date.notblank":       "Date is required",
	"date.datetime":       "Date must be in format YYYY-MM-DD",
	"time.notblank":       "Time is required",
	"time.datetime":       "Time must be in format HH:MM",
	"duration":            "Duration is required",
	"location_name":       "Location name is required",
	"latitude.required":   "Latitude is required",
	"latitude.latitude":   "Latitude must be between -90 and 90",
	"longitude.required":  "Longitude is required",
	"longitude.longitude": "Longitude must be between -180 and 180",
	"radius":              "Radius must be greater than 0",
	"attendance_type":     "Attendance type is invalid",
	"status":              "Status must be active or inactive",
	"attendance_weight":   "Attendance weight cannot be negative",
}

var locationFields = map[string]bool{"location_name": true, "latitude": true, "longitude": true}

// NewSessionForm returns a blank form with the defaults of a new session.
func NewSessionForm() SessionForm {
	return SessionForm{
		Radius:           DefaultRadius,
		AttendanceType:   string(model.TypeFaceRecognition),
		Status:           string(model.SessionInactive),
		AttendanceWeight: DefaultAttendanceWeight,
	}
}

// UseHallSize sets the radius recommended for the named hall size.
func (f *SessionForm) UseHallSize(size string) bool {
	r, ok := HallRadius[size]
	if ok {
		f.Radius = r
	}
	return ok
}

// UseLocation fills the coordinates from a position fix.
func (f *SessionForm) UseLocation(c model.Coordinates) {
	lat, lon := c.Latitude, c.Longitude
	f.Latitude, f.Longitude = &lat, &lon
}

// Validate checks the form. The summary names the first problem group:
// missing basics before a missing location.
func (f SessionForm) Validate() error {
	err := check(f, errMissingFields.Error(), sessionMessages)
	ve, ok := AsValidationError(err)
	if !ok {
		return err
	}
	onlyLocation := true
	for _, fe := range ve.Fields {
		if !locationFields[fe.Field] {
			onlyLocation = false
			break
		}
	}
	if onlyLocation {
		ve.Err = errMissingLocation
	}
	return ve
}

// Input validates the form and builds the request body. Date and Time are
// read in loc; nil means time.Local.
func (f SessionForm) Input(courseID string, loc *time.Location) (apiclient.SessionInput, error) {
	if err := f.Validate(); err != nil {
		return apiclient.SessionInput{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	when, err := time.ParseInLocation("2006-01-02 15:04", f.Date+" "+f.Time, loc)
	if err != nil {
		return apiclient.SessionInput{}, NewValidationError(errMissingFields, FieldError{Field: "date", Error: err.Error()})
	}
	return apiclient.SessionInput{
		Course:           courseID,
		Topic:            strings.TrimSpace(f.Topic),
		Duration:         f.Duration,
		SessionDate:      when,
		Status:           f.Status,
		AttendanceWeight: f.AttendanceWeight,
		AttendanceType:   f.AttendanceType,
		Location: apiclient.LocationInput{
			Name:      strings.TrimSpace(f.LocationName),
			Latitude:  *f.Latitude,
			Longitude: *f.Longitude,
			Radius:    f.Radius,
		},
	}, nil
}

// ToggleStatus returns the patch flipping a session between active and inactive.
func ToggleStatus(s model.Session) apiclient.SessionPatch {
	next := string(model.SessionActive)
	if s.IsActive() {
		next = string(model.SessionInactive)
	}
	return apiclient.SessionPatch{Status: &next}
}
