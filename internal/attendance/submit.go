package attendance

import (
	"context"
	"errors"
	"time"

	"attendclient/internal/apiclient"
	"attendclient/internal/camera"
	"attendclient/internal/geo"
	"attendclient/internal/imagecodec"
	"attendclient/internal/journal"
	"attendclient/internal/model"
	"attendclient/internal/queue"
)

const msgCaptureFailed = "Failed to capture image. Please try again."

// Submit captures a face from the active camera and marks attendance for the
// selected session:
//
//  1. acquire a location fix unless one is held for the session
//  2. capture a still from the camera
//  3. decode it into raw image bytes
//  4. post it with the coordinates to the face verification endpoint
//  5. on success re-fetch the attendance list once
//
// The camera is stopped afterwards whatever the outcome. Failures are
// returned as *SubmitError. Only one submission may run at a time.
func (c *Controller) Submit(ctx context.Context) (*apiclient.MarkResult, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if err := c.captureReadyLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.state.Phase != PhaseCameraActive || !c.cam.IsActive() {
		c.mu.Unlock()
		return nil, ErrCameraInactive
	}
	if err := c.moveLocked(PhaseSubmitting); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.submitting = true
	gen := c.gen
	courseID := c.state.CourseID
	sid := c.state.Session.ID
	var held *model.Coordinates
	if c.state.Location != nil {
		loc := *c.state.Location
		held = &loc
	}
	c.state.CaptureError = ""
	c.state.Message = MsgProcessing
	c.mu.Unlock()

	started := time.Now()
	runCtx, cancel := c.bind(ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, c.submitTimeout)
	defer cancelTimeout()

	res, coords, err := c.run(runCtx, courseID, sid, held)

	var serr *SubmitError
	if err != nil {
		serr = Classify(err)
	}

	c.mu.Lock()
	if stopErr := c.stopCameraLocked(); stopErr != nil {
		c.logger.Warn("camera stop failed", "err", stopErr)
	}
	c.submitting = false
	if gen == c.gen && coords != nil {
		c.state.Location = coords
	}
	if serr != nil {
		c.state.CaptureError = serr.Message
		c.state.Message = ""
		if serr.Kind == KindLocation {
			c.state.Location = nil
			c.state.LocationError = geo.FailureMessage
		}
		_ = c.moveLocked(c.listPhaseLocked())
	} else {
		c.state.Message = res.Message
		_ = c.moveLocked(PhaseLoadingAttendance)
	}
	c.mu.Unlock()

	c.record(courseID, sid, coords, res, serr, started)

	if serr != nil {
		c.logger.Info("attendance submission failed", "session_id", sid, "kind", serr.Kind, "err", serr.Err)
		return nil, serr
	}
	c.logger.Info("attendance marked", "session_id", sid, "elapsed", time.Since(started))

	refreshCtx, cancelRefresh := c.bind(ctx)
	defer cancelRefresh()
	if err := c.fetchAttendance(refreshCtx, gen, sid); err != nil {
		c.logger.Warn("attendance refresh after submission failed", "session_id", sid, "err", err)
	}
	return res, nil
}

// run performs the capture and upload. It returns the coordinates used so
// the caller can keep them for the session.
func (c *Controller) run(ctx context.Context, courseID, sessionID string, loc *model.Coordinates) (*apiclient.MarkResult, *model.Coordinates, error) {
	if loc == nil {
		coords, err := c.locator.Acquire(ctx)
		if err != nil {
			c.metrics.LocationFailure(geo.ErrorCode(err).String())
			return nil, nil, &SubmitError{Kind: KindLocation, Message: geo.FailureMessage, Err: err}
		}
		loc = &coords
	}

	dataURL, err := c.cam.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, loc, ctx.Err()
		}
		c.metrics.CameraFailure()
		return nil, loc, &SubmitError{Kind: KindCapture, Message: cameraMessage(err), Err: err}
	}

	img, err := imagecodec.DecodeDataURL(dataURL)
	if err != nil {
		return nil, loc, &SubmitError{Kind: KindCapture, Message: MsgNoImage, Err: err}
	}

	res, err := c.api.MarkAttendance(ctx, courseID, sessionID, apiclient.MarkRequest{
		Image:       img.Data,
		Filename:    img.Filename("attendance_face"),
		ContentType: img.ContentType,
		Location:    loc,
	})
	if err != nil {
		return nil, loc, err
	}
	return res, loc, nil
}

// record journals the attempt and updates metrics and the live feed.
func (c *Controller) record(courseID, sessionID string, coords *model.Coordinates, res *apiclient.MarkResult, serr *SubmitError, started time.Time) {
	elapsed := time.Since(started)
	entry := journal.Entry{
		CourseID:  courseID,
		SessionID: sessionID,
		Outcome:   journal.OutcomeSuccess,
		StartedAt: started.UTC(),
		Elapsed:   elapsed.Milliseconds(),
	}
	if coords != nil {
		lat, lon, acc := coords.Latitude, coords.Longitude, coords.Accuracy
		entry.Latitude, entry.Longitude, entry.Accuracy = &lat, &lon, &acc
	}
	if serr != nil {
		entry.Outcome = serr.Kind.Outcome()
		entry.Message = serr.Message
	} else {
		entry.Message = res.Message
		if res.Record != nil {
			id := res.Record.ID
			entry.RecordID = &id
		}
	}

	c.metrics.Submission(string(entry.Outcome), elapsed)
	c.publish(queue.TypeSubmission, entry)

	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.journal.Insert(ctx, entry); err != nil {
		c.logger.Warn("journal insert failed", "session_id", sessionID, "err", err)
	}
}

func cameraMessage(err error) string {
	switch {
	case camera.IsAccessError(err):
		return camera.AccessMessage
	case errors.Is(err, camera.ErrNoFrame):
		return MsgNoImage
	default:
		return msgCaptureFailed
	}
}
