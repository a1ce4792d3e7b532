package station

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/faceattend/internal/api/ws"
	"github.com/your-org/faceattend/internal/engine"
	"github.com/your-org/faceattend/internal/models"
)

type stubSource struct {
	frame image.Image
	stops atomic.Int32
}

func (s *stubSource) Start() error      { return nil }
func (s *stubSource) Grab() image.Image { return s.frame }
func (s *stubSource) Stop()             { s.stops.Add(1) }

// stubDetector never finds a face, so an enrollment run stays below quota
// until it is cancelled.
type stubDetector struct{}

func (stubDetector) Detect(*image.Gray) []image.Rectangle { return nil }

type stubDirectory struct{}

func (stubDirectory) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	return &models.Student{ID: id, Name: "Test Student", RollNo: "R-1"}, nil
}

func newTestRouter(t *testing.T) (*stubSource, http.Handler) {
	t.Helper()
	src := &stubSource{frame: image.NewGray(image.Rect(0, 0, 64, 64))}
	eng := engine.New(engine.Config{
		SampleQuota:       3,
		SampleInterval:    time.Millisecond,
		DistanceThreshold: 0.6,
		HoldDuration:      time.Second,
		PollInterval:      time.Millisecond,
		FaceSize:          32,
	}, engine.Deps{
		Source:   src,
		Detector: stubDetector{},
	})
	srv := NewServer("station-1", eng, stubDirectory{}, nil, ws.NewHub())
	return src, srv.Router("")
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestEnrollmentStopReleasesDevice(t *testing.T) {
	src, router := newTestRouter(t)

	if w := postJSON(router, "/v1/enrollments", `{"student_id": 7}`); w.Code != http.StatusAccepted {
		t.Fatalf("start enrollment: got %d, body %s", w.Code, w.Body.String())
	}

	// The subject never shows a detectable face, so only the stop endpoint
	// can end the run.
	if w := postJSON(router, "/v1/enrollments/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop enrollment: got %d, body %s", w.Code, w.Body.String())
	}
	if got := src.stops.Load(); got != 1 {
		t.Fatalf("device released %d times, want 1", got)
	}

	// The lease must be reusable: a fresh enrollment claims the camera again
	// instead of failing with a busy conflict.
	if w := postJSON(router, "/v1/enrollments", `{"student_id": 8}`); w.Code != http.StatusAccepted {
		t.Fatalf("restart enrollment after stop: got %d, body %s", w.Code, w.Body.String())
	}
	if w := postJSON(router, "/v1/enrollments/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("second stop: got %d, body %s", w.Code, w.Body.String())
	}
	if got := src.stops.Load(); got != 2 {
		t.Fatalf("device released %d times, want 2", got)
	}
}

func TestEnrollmentStopWithoutRun(t *testing.T) {
	_, router := newTestRouter(t)

	if w := postJSON(router, "/v1/enrollments/stop", ""); w.Code != http.StatusConflict {
		t.Fatalf("stop without run: got %d, want 409", w.Code)
	}
}

func TestEnrollmentRejectsConcurrentStart(t *testing.T) {
	_, router := newTestRouter(t)

	if w := postJSON(router, "/v1/enrollments", `{"student_id": 7}`); w.Code != http.StatusAccepted {
		t.Fatalf("start enrollment: got %d", w.Code)
	}
	if w := postJSON(router, "/v1/enrollments", `{"student_id": 8}`); w.Code != http.StatusConflict {
		t.Fatalf("second start: got %d, want 409", w.Code)
	}
	if w := postJSON(router, "/v1/enrollments/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop enrollment: got %d", w.Code)
	}
}
