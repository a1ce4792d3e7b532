package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/faceattend/internal/observability"
)

// Enroll captures SampleQuota normalized face crops for one subject. It owns
// the camera exclusively for the duration of the call and reports every
// persisted sample through onProgress. Every grabbed frame, sampled or not,
// is passed to onFrame with any detection annotated.
//
// Returns the number of samples persisted. Honors ctx cancellation at the
// top of the capture loop; the device is always released.
func (e *Engine) Enroll(ctx context.Context, subjectID int64, onFrame FrameFunc, onProgress ProgressFunc) (int, error) {
	if e.detector == nil {
		return 0, ErrDetectorUnavailable
	}
	if err := e.acquireDevice(); err != nil {
		return 0, err
	}
	defer e.releaseDevice()

	quota := e.cfg.SampleQuota
	slog.Info("enrollment started", "subject_id", subjectID, "quota", quota)

	count := 0
	var lastSaved time.Time

	for count < quota {
		if err := ctx.Err(); err != nil {
			slog.Info("enrollment cancelled", "subject_id", subjectID, "collected", count)
			return count, err
		}

		img := e.source.Grab()
		if img == nil {
			// Transient camera hiccup: empty iteration, not an error.
			e.sleep(e.cfg.PollInterval)
			continue
		}
		observability.FramesGrabbed.WithLabelValues("enroll").Inc()

		gray := ToGray(img)
		faces := e.detector.Detect(gray)

		if len(faces) > 0 {
			observability.FacesDetected.WithLabelValues("enroll").Add(float64(len(faces)))

			now := e.now()
			if now.Sub(lastSaved) >= e.cfg.SampleInterval {
				face := NormalizeFace(gray, primaryFace(faces), e.cfg.FaceSize)
				if face != nil {
					ref, err := e.samples.SaveSample(ctx, subjectID, count+1, face)
					if err != nil {
						// Log and keep capturing; do not re-attempt this write.
						slog.Error("persist sample", "subject_id", subjectID, "error", err)
					} else {
						count++
						lastSaved = now
						observability.SamplesCaptured.Inc()
						slog.Debug("sample saved", "subject_id", subjectID, "ref", ref, "count", count)
						if onProgress != nil {
							onProgress(count, quota)
						}
					}
				}
			}
		}

		if onFrame != nil {
			onFrame(Frame{Image: img, Faces: faces})
		}

		e.sleep(e.cfg.PollInterval)
	}

	slog.Info("enrollment complete", "subject_id", subjectID, "samples", count)
	return count, nil
}
