package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/faceattend/internal/observability"
)

// RunOutcome is the single outcome of one recognition run.
type RunOutcome string

const (
	// OutcomeRecognized means a prediction was accepted and a session
	// decision was made.
	OutcomeRecognized RunOutcome = "recognized"
	// OutcomeUnrecognized means the run was stopped without ever accepting
	// a prediction.
	OutcomeUnrecognized RunOutcome = "unrecognized"
	// OutcomeAborted means the run ended before any frame was processed.
	OutcomeAborted RunOutcome = "aborted"
)

// RecognitionResult summarizes a finished run.
type RecognitionResult struct {
	Outcome   RunOutcome
	SubjectID int64
	Event     *TransitionEvent
}

// RecognitionRun is the handle to a background recognition loop. All state
// for a run lives here; independent engines can run side by side in tests.
type RecognitionRun struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	result RecognitionResult
}

// Stop requests cooperative shutdown. Honored at the top of the next loop
// iteration; always releases the camera, even mid-hold.
func (r *RecognitionRun) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Done is closed when the run has finished and the device is released.
func (r *RecognitionRun) Done() <-chan struct{} {
	return r.done
}

// Result is valid once Done is closed.
func (r *RecognitionRun) Result() RecognitionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// StartRecognition begins a background recognition loop in the given mode.
// It fails fast, before any goroutine is spawned, with ErrModelMissing when
// no trained model exists and ErrDeviceBusy when another pipeline holds the
// camera. The loaded model snapshot is used for the whole run; a concurrent
// retrain is only picked up by the next run.
//
// The session machine is invoked at most once per run, on the first accepted
// prediction; the resulting event is delivered through onDecision. After
// that the loop keeps rendering with a countdown for HoldDuration before
// terminating, so the operator sees confirmation.
func (e *Engine) StartRecognition(ctx context.Context, mode Mode, onFrame FrameFunc, onDecision DecisionFunc) (*RecognitionRun, error) {
	if e.detector == nil {
		return nil, ErrDetectorUnavailable
	}
	rec, err := e.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load recognizer: %w", err)
	}
	if err := e.acquireDevice(); err != nil {
		return nil, err
	}

	run := &RecognitionRun{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	slog.Info("recognition started", "mode", mode.String(), "threshold", e.cfg.DistanceThreshold)

	go e.recognitionLoop(ctx, run, rec, mode, onFrame, onDecision)
	return run, nil
}

func (e *Engine) recognitionLoop(ctx context.Context, run *RecognitionRun, rec Recognizer, mode Mode, onFrame FrameFunc, onDecision DecisionFunc) {
	defer close(run.done)
	defer e.releaseDevice()

	var (
		framesSeen  bool
		actionTaken bool
		subjectID   int64
		event       *TransitionEvent
		holdUntil   time.Time
	)

	finish := func() {
		res := RecognitionResult{Outcome: OutcomeAborted}
		switch {
		case actionTaken:
			res = RecognitionResult{Outcome: OutcomeRecognized, SubjectID: subjectID, Event: event}
		case framesSeen:
			res = RecognitionResult{Outcome: OutcomeUnrecognized}
		}
		run.mu.Lock()
		run.result = res
		run.mu.Unlock()
		observability.RecognitionRuns.WithLabelValues(string(res.Outcome)).Inc()
		slog.Info("recognition finished", "outcome", string(res.Outcome), "subject_id", res.SubjectID)
	}
	defer finish()

	for {
		// Stop requests are honored at the top of each iteration.
		select {
		case <-run.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if actionTaken && !e.now().Before(holdUntil) {
			return
		}

		img := e.source.Grab()
		if img == nil {
			e.sleep(e.cfg.PollInterval)
			continue
		}
		framesSeen = true
		observability.FramesGrabbed.WithLabelValues("recognize").Inc()

		gray := ToGray(img)
		faces := e.detector.Detect(gray)
		if len(faces) > 0 {
			observability.FacesDetected.WithLabelValues("recognize").Add(float64(len(faces)))
		}

		label := ""
		for _, r := range faces {
			face := NormalizeFace(gray, r, e.cfg.FaceSize)
			if face == nil {
				continue
			}
			id, distance, err := rec.Predict(face)
			if err != nil {
				slog.Warn("predict", "error", err)
				continue
			}

			// Accept only a valid positive identifier under the distance
			// threshold; an exact-threshold distance is rejected.
			if id > 0 && distance < e.cfg.DistanceThreshold {
				label = fmt.Sprintf("subject %d (%.2f)", id, distance)
				if !actionTaken {
					actionTaken = true
					subjectID = id
					holdUntil = e.now().Add(e.cfg.HoldDuration)

					ev, err := e.sessions.Apply(ctx, id, e.now(), mode)
					if err != nil {
						slog.Error("apply session decision", "subject_id", id, "error", err)
					} else {
						event = &ev
						if onDecision != nil {
							onDecision(ev)
						}
					}
				}
			} else {
				label = fmt.Sprintf("Unknown (%.2f)", distance)
			}
		}

		if onFrame != nil {
			frame := Frame{Image: img, Faces: faces, Label: label}
			if actionTaken {
				if remain := holdUntil.Sub(e.now()); remain > 0 {
					frame.Countdown = remain
				}
			}
			onFrame(frame)
		}

		e.sleep(e.cfg.PollInterval)
	}
}
