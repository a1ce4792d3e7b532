package engine

import (
	"context"
	"image"
	"sync"
	"time"
)

// fakeClock drives the engine's injected now/sleep so pipeline timing is
// deterministic: every engine sleep advances the clock instead of blocking.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	grab     func() image.Image
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	return nil
}

func (s *fakeSource) Grab() image.Image {
	if s.grab == nil {
		return nil
	}
	return s.grab()
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeSource) counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

type fakeDetector struct {
	rects []image.Rectangle
}

func (d *fakeDetector) Detect(gray *image.Gray) []image.Rectangle {
	return d.rects
}

type fakeRecognizer struct {
	id   int64
	dist float64
}

func (r *fakeRecognizer) Predict(face *image.Gray) (int64, float64, error) {
	return r.id, r.dist, nil
}

type fakeLoader struct {
	rec Recognizer
	err error
}

func (l *fakeLoader) Load() (Recognizer, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.rec, nil
}

type savedSample struct {
	subjectID int64
	seq       int
	at        time.Time
}

type fakeSampleStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	saved   []savedSample
	failSeq map[int]error // attempt number (1-based) -> error
	calls   int
}

func (s *fakeSampleStore) SaveSample(ctx context.Context, subjectID int64, seq int, face *image.Gray) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.failSeq[s.calls]; ok {
		return "", err
	}
	rec := savedSample{subjectID: subjectID, seq: seq}
	if s.clock != nil {
		rec.at = s.clock.Now()
	}
	s.saved = append(s.saved, rec)
	return "ref", nil
}

func (s *fakeSampleStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// memRepo is an in-memory SessionRepository.
type memRepo struct {
	mu       sync.Mutex
	sessions []Session
}

func (r *memRepo) OpenSession(ctx context.Context, subjectID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sessions) - 1; i >= 0; i-- {
		s := r.sessions[i]
		if s.StudentID == subjectID && s.CheckOut == nil {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memRepo) SessionOn(ctx context.Context, subjectID int64, day time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		s := r.sessions[i]
		if s.StudentID == subjectID && sameDay(s.Date, day) {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CheckIn(ctx context.Context, subjectID int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, Session{StudentID: subjectID, Date: t, CheckIn: t})
	return nil
}

func (r *memRepo) CheckOut(ctx context.Context, subjectID int64, day time.Time, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		s := &r.sessions[i]
		if s.StudentID == subjectID && sameDay(s.Date, day) && s.CheckOut == nil {
			out := t
			s.CheckOut = &out
			return nil
		}
	}
	return nil
}

func (r *memRepo) rows() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func testFrame() image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	return img
}

type engineOpts struct {
	cfg    Config
	source *fakeSource
	det    FaceDetector
	loader RecognizerLoader
	store  SampleStore
	srcSet SampleSource
	train  ModelTrainer
	repo   SessionRepository
	clock  *fakeClock
}

func newTestEngine(o engineOpts) (*Engine, *fakeClock) {
	if o.clock == nil {
		o.clock = newFakeClock()
	}
	if o.cfg.SampleQuota == 0 {
		o.cfg.SampleQuota = 3
	}
	if o.cfg.SampleInterval == 0 {
		o.cfg.SampleInterval = 300 * time.Millisecond
	}
	if o.cfg.DistanceThreshold == 0 {
		o.cfg.DistanceThreshold = 0.6
	}
	if o.cfg.HoldDuration == 0 {
		o.cfg.HoldDuration = time.Second
	}
	if o.cfg.PollInterval == 0 {
		o.cfg.PollInterval = 80 * time.Millisecond
	}
	if o.cfg.FaceSize == 0 {
		o.cfg.FaceSize = 32
	}
	if o.source == nil {
		o.source = &fakeSource{grab: testFrame}
	}
	if o.repo == nil {
		o.repo = &memRepo{}
	}

	e := New(o.cfg, Deps{
		Source:      o.source,
		Detector:    o.det,
		Recognizers: o.loader,
		Samples:     o.store,
		SampleSrc:   o.srcSet,
		Trainer:     o.train,
		Sessions:    o.repo,
	})
	e.now = o.clock.Now
	e.sleep = func(d time.Duration) { o.clock.Advance(d) }
	return e, o.clock
}
