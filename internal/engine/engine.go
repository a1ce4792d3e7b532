package engine

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/your-org/faceattend/internal/observability"
)

// FrameSource abstracts a live camera device. Grab may return nil when no
// frame is available; callers treat that as an empty iteration.
type FrameSource interface {
	Start() error
	Grab() image.Image
	Stop()
}

// FaceDetector returns face bounding boxes for a grayscale image, ordered by
// the detector's own scoring. Index 0 is the primary face.
type FaceDetector interface {
	Detect(gray *image.Gray) []image.Rectangle
}

// Recognizer maps a normalized face crop to a subject identifier and a
// distance score. Lower distance means a stronger match.
type Recognizer interface {
	Predict(face *image.Gray) (subjectID int64, distance float64, err error)
}

// RecognizerLoader loads a snapshot of the current trained model. Each
// recognition run loads once and keeps using that snapshot; a retrain is
// only visible to the next load.
type RecognizerLoader interface {
	Load() (Recognizer, error)
}

// SampleStore persists one normalized face crop for a subject and returns a
// stable reference to it.
type SampleStore interface {
	SaveSample(ctx context.Context, subjectID int64, seq int, face *image.Gray) (string, error)
}

// LabeledFace is one stored sample loaded back for training.
type LabeledFace struct {
	SubjectID int64
	Image     *image.Gray
	Ref       string
}

// SampleSource lists every face sample currently on record.
type SampleSource interface {
	AllSamples(ctx context.Context) ([]LabeledFace, error)
}

// ModelSummary reports what a training run produced.
type ModelSummary struct {
	Samples   int
	Subjects  int
	TrainedAt time.Time
}

// ModelTrainer fits a recognizer over the full sample set and persists the
// model artifact atomically.
type ModelTrainer interface {
	Fit(ctx context.Context, faces []LabeledFace) (ModelSummary, error)
}

// Frame is one annotated preview frame delivered to the onFrame sink.
type Frame struct {
	Image image.Image
	Faces []image.Rectangle
	Label string
	// Countdown is non-zero during the hold-and-close phase after a
	// successful recognition.
	Countdown time.Duration
}

type FrameFunc func(Frame)

type ProgressFunc func(count, quota int)

type DecisionFunc func(TransitionEvent)

// Config carries the engine tuning knobs.
type Config struct {
	SampleQuota       int
	SampleInterval    time.Duration
	DistanceThreshold float64
	HoldDuration      time.Duration
	PollInterval      time.Duration
	FaceSize          int
}

// Deps wires the engine's collaborators. Detector may be nil when the vision
// stack failed to initialize; capture operations then fail with
// ErrDetectorUnavailable.
type Deps struct {
	Source      FrameSource
	Detector    FaceDetector
	Recognizers RecognizerLoader
	Samples     SampleStore
	SampleSrc   SampleSource
	Trainer     ModelTrainer
	Sessions    SessionRepository
}

// Engine coordinates the enrollment, training and recognition pipelines over
// a single exclusively-owned capture device.
type Engine struct {
	cfg      Config
	source   FrameSource
	detector FaceDetector
	loader   RecognizerLoader
	samples  SampleStore
	srcSet   SampleSource
	trainer  ModelTrainer
	sessions *SessionMachine

	busy atomic.Bool

	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:      cfg,
		source:   deps.Source,
		detector: deps.Detector,
		loader:   deps.Recognizers,
		samples:  deps.Samples,
		srcSet:   deps.SampleSrc,
		trainer:  deps.Trainer,
		sessions: NewSessionMachine(deps.Sessions),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Sessions exposes the session machine for callers that apply decisions
// outside a recognition run.
func (e *Engine) Sessions() *SessionMachine {
	return e.sessions
}

// acquireDevice claims the exclusive camera lease and starts the source.
// Fails fast with ErrDeviceBusy; never blocks waiting for the holder.
func (e *Engine) acquireDevice() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrDeviceBusy
	}
	if err := e.source.Start(); err != nil {
		e.busy.Store(false)
		return wrapDeviceErr(err)
	}
	observability.ActiveCaptures.Set(1)
	return nil
}

func (e *Engine) releaseDevice() {
	e.source.Stop()
	e.busy.Store(false)
	observability.ActiveCaptures.Set(0)
}

func wrapDeviceErr(err error) error {
	return &deviceError{err: err}
}

type deviceError struct {
	err error
}

func (d *deviceError) Error() string {
	return "capture device unavailable: " + d.err.Error()
}

func (d *deviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

func (d *deviceError) Unwrap() error {
	return d.err
}
