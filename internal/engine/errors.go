package engine

import "errors"

var (
	// ErrDeviceBusy is returned when a pipeline requests the camera while
	// another pipeline already holds it. Never retried automatically.
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrDeviceUnavailable is returned when the camera cannot be started.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrDetectorUnavailable is returned when no face detector is wired,
	// typically because the native vision stack failed to initialize.
	ErrDetectorUnavailable = errors.New("face detector unavailable: check vision models")

	// ErrModelMissing is returned when recognition is requested before any
	// model has been trained.
	ErrModelMissing = errors.New("recognizer model missing: train a model first")

	// ErrNoSamples is returned by training when no face samples are on record.
	ErrNoSamples = errors.New("no face samples to train on")
)
