package attendance

import (
	"context"
	"errors"
	"strings"

	"attendclient/internal/apiclient"
	"attendclient/internal/geo"
	"attendclient/internal/journal"
)

var (
	ErrSubmissionInFlight = errors.New("attendance: a submission is already in progress")
	ErrNoCourse           = errors.New("attendance: no course selected")
	ErrNoSession          = errors.New("attendance: no session selected")
	ErrUnknownSession     = errors.New("attendance: session is not in the course")
	ErrSessionInactive    = errors.New("attendance: session is not active")
	ErrCaptureUnsupported = errors.New("attendance: session does not take face captures")
	ErrCameraInactive     = errors.New("attendance: camera is not active")
	ErrClosed             = errors.New("attendance: controller closed")
)

// Messages shown to the operator.
const (
	MsgProcessing    = "Processing attendance. This may take a moment..."
	MsgNoImage       = "No image captured. Please try again."
	MsgNoSession     = "No active session selected."
	MsgTimeout       = "Request timed out. The server is taking too long to respond. Please try again or contact support if the issue persists."
	MsgNetwork       = "Network connection issue. Please check your internet connection and try again."
	MsgNoFace        = "No face was detected in the image. Please ensure proper lighting and positioning, then try again."
	MsgNotEnrolled   = "Student not enrolled in this course. Please check enrollment status."
	MsgUnauthorized  = "Your session has expired. Please log in again."
	MsgForbidden     = "You are not allowed to mark attendance for this session."
	MsgCanceled      = "Attendance submission was cancelled."
	MsgGeneric       = "Failed to process attendance"
	MsgFetchSessions = "Failed to fetch sessions for the course"
	MsgFetchRecords  = "Failed to fetch attendance records"
	MsgFetchCourses  = "Failed to fetch courses"
)

// Kind classifies a failed submission.
type Kind string

const (
	KindLocation   Kind = "location"
	KindCapture    Kind = "capture"
	KindTimeout    Kind = "timeout"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindCanceled   Kind = "canceled"
	KindGeneric    Kind = "generic"
)

// Outcome maps the kind to the journal outcome it is recorded under.
func (k Kind) Outcome() journal.Outcome {
	switch k {
	case KindLocation:
		return journal.OutcomeLocation
	case KindCapture:
		return journal.OutcomeCapture
	case KindTimeout:
		return journal.OutcomeTimeout
	case KindNetwork:
		return journal.OutcomeNetwork
	case KindValidation:
		return journal.OutcomeValidation
	case KindAuth:
		return journal.OutcomeAuth
	case KindCanceled:
		return journal.OutcomeCanceled
	default:
		return journal.OutcomeError
	}
}

// SubmitError is returned by Controller.Submit. Message is ready to show.
type SubmitError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Classify turns a submission failure into a SubmitError with the message
// the operator should see. Timeouts and network failures get distinct
// messages; server rejections keep the server's wording unless a friendlier
// one is known.
func Classify(err error) *SubmitError {
	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}
	if geo.ErrorCode(err) != 0 {
		return &SubmitError{Kind: KindLocation, Message: geo.FailureMessage, Err: err}
	}

	apiErr, ok := apiclient.AsError(err)
	switch {
	case ok && apiErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return &SubmitError{Kind: KindTimeout, Message: MsgTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &SubmitError{Kind: KindCanceled, Message: MsgCanceled, Err: err}
	case !ok:
		return &SubmitError{Kind: KindGeneric, Message: textOr(err, MsgGeneric), Err: err}
	case apiErr.Transport():
		return &SubmitError{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	case apiErr.Unauthorized():
		return &SubmitError{Kind: KindAuth, Message: MsgUnauthorized, Err: err}
	case apiErr.Forbidden():
		return &SubmitError{Kind: KindAuth, Message: MsgForbidden, Err: err}
	}

	msg := apiErr.Message
	switch {
	case containsFold(msg, "no face detected"):
		msg = MsgNoFace
	case containsFold(msg, "student not enrolled"):
		msg = MsgNotEnrolled
	case msg == "":
		msg = MsgGeneric
	}
	if apiErr.Rejected() {
		return &SubmitError{Kind: KindValidation, Message: msg, Err: err}
	}
	return &SubmitError{Kind: KindGeneric, Message: msg, Err: err}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}

func textOr(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
