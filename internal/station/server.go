package station

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceattend/internal/api"
	"github.com/your-org/faceattend/internal/api/ws"
	"github.com/your-org/faceattend/internal/engine"
	"github.com/your-org/faceattend/internal/models"
	"github.com/your-org/faceattend/internal/queue"
	"github.com/your-org/faceattend/pkg/dto"
)

// previewEvery throttles preview frames pushed over the WebSocket: one in
// every N engine frames.
const previewEvery = 3

// StudentDirectory is the slice of the registry the station needs to validate
// enrollment requests.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id int64) (*models.Student, error)
}

// Server is the kiosk-side control surface. It drives the capture engine and
// streams progress, decisions and annotated preview frames to local clients.
type Server struct {
	stationID string
	eng       *engine.Engine
	db        StudentDirectory
	producer  *queue.Producer
	hub       *ws.Hub

	mu           sync.Mutex
	run          *engine.RecognitionRun
	enrollCancel context.CancelFunc
	enrollDone   chan struct{}
}

func NewServer(stationID string, eng *engine.Engine, db StudentDirectory, producer *queue.Producer, hub *ws.Hub) *Server {
	return &Server{
		stationID: stationID,
		eng:       eng,
		db:        db,
		producer:  producer,
		hub:       hub,
	}
}

func (s *Server) Router(apiKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.LoggingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "station": s.stationID})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(api.APIKeyMiddleware(apiKey))

	v1.GET("/ws", s.hub.HandleWS)
	v1.POST("/enrollments", s.startEnrollment)
	v1.POST("/enrollments/stop", s.stopEnrollment)
	v1.POST("/recognitions", s.startRecognition)
	v1.POST("/recognitions/stop", s.stopRecognition)
	v1.POST("/train", s.train)

	return r
}

// startEnrollment kicks off a capture session for one student. The call
// returns once the camera is claimed; progress and completion arrive over the
// WebSocket. Device and precondition failures are reported synchronously.
func (s *Server) startEnrollment(c *gin.Context) {
	var req dto.StartEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := s.db.GetStudent(c.Request.Context(), req.StudentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.enrollCancel != nil {
		s.mu.Unlock()
		cancel()
		c.JSON(http.StatusConflict, gin.H{"error": "enrollment already in progress"})
		return
	}
	s.enrollCancel = cancel
	s.enrollDone = done
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		count, err := s.eng.Enroll(ctx, req.StudentID,
			s.previewSink("enroll"),
			func(count, quota int) {
				s.hub.Broadcast("progress", s.stationID, dto.ProgressData{
					StudentID: req.StudentID,
					Count:     count,
					Quota:     quota,
				})
			},
		)
		s.mu.Lock()
		s.enrollCancel = nil
		s.enrollDone = nil
		s.mu.Unlock()
		cancel()
		close(done)

		errCh <- err
		if errors.Is(err, context.Canceled) {
			slog.Info("enrollment stopped", "student_id", req.StudentID, "collected", count)
			return
		}
		if err != nil {
			slog.Error("enrollment failed", "student_id", req.StudentID, "collected", count, "error", err)
			return
		}

		// Retrain so the new samples take effect immediately.
		summary, err := s.eng.Train(context.Background())
		if err != nil {
			slog.Error("auto-train after enrollment", "error", err)
			return
		}
		s.hub.Broadcast("trained", s.stationID, dto.TrainResponse{
			Samples:   summary.Samples,
			Subjects:  summary.Subjects,
			TrainedAt: summary.TrainedAt,
		})
	}()

	// Precondition failures (busy device, missing detector) surface before
	// the first frame; give them a moment to arrive so the client gets a
	// proper status code instead of a silent WebSocket error.
	select {
	case err := <-errCh:
		s.renderEngineError(c, err)
	case <-time.After(300 * time.Millisecond):
		c.JSON(http.StatusAccepted, gin.H{
			"status":     "enrolling",
			"student_id": req.StudentID,
		})
	}
}

// stopEnrollment cancels the active capture run. The subject walking away
// must not leave the camera leased; stopping always releases the device.
func (s *Server) stopEnrollment(c *gin.Context) {
	s.mu.Lock()
	cancel, done := s.enrollCancel, s.enrollDone
	s.mu.Unlock()
	if cancel == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no enrollment in progress"})
		return
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "enrollment did not stop in time"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) startRecognition(c *gin.Context) {
	var req dto.StartRecognitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.eng.StartRecognition(context.Background(), mode,
		s.previewSink("recognize"),
		func(ev engine.TransitionEvent) {
			s.publishDecision(ev, mode)
		},
	)
	if err != nil {
		s.renderEngineError(c, err)
		return
	}

	s.mu.Lock()
	s.run = run
	s.mu.Unlock()
	c.JSON(http.StatusAccepted, gin.H{"status": "recognizing", "mode": mode.String()})
}

func (s *Server) stopRecognition(c *gin.Context) {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no recognition in progress"})
		return
	}

	run.Stop()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "recognition did not stop in time"})
		return
	}

	res := run.Result()
	c.JSON(http.StatusOK, gin.H{
		"outcome":    string(res.Outcome),
		"subject_id": res.SubjectID,
	})
}

func (s *Server) train(c *gin.Context) {
	summary, err := s.eng.Train(c.Request.Context())
	if err != nil {
		s.renderEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TrainResponse{
		Samples:   summary.Samples,
		Subjects:  summary.Subjects,
		TrainedAt: summary.TrainedAt,
	})
}

// publishDecision fans a session decision out to NATS and local WebSocket
// clients. Publish failures are logged, never propagated back into the
// recognition loop.
func (s *Server) publishDecision(ev engine.TransitionEvent, mode engine.Mode) {
	msg := models.AttendanceEvent{
		EventID:   ev.ID,
		StationID: s.stationID,
		StudentID: ev.SubjectID,
		Timestamp: ev.Timestamp,
		FromState: ev.From.String(),
		Mode:      mode.String(),
		Outcome:   string(ev.Outcome),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.producer.PublishDecision(ctx, msg); err != nil {
		slog.Error("publish decision", "event_id", ev.ID, "error", err)
	}

	s.hub.Broadcast("decision", s.stationID, msg)
}

// previewSink returns a FrameFunc that JPEG-encodes a subset of frames for
// the local preview WebSocket.
func (s *Server) previewSink(pipeline string) engine.FrameFunc {
	n := 0
	return func(f engine.Frame) {
		n++
		if n%previewEvery != 0 {
			return
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: 60}); err != nil {
			slog.Warn("encode preview frame", "pipeline", pipeline, "error", err)
			return
		}
		s.hub.Broadcast("preview", s.stationID, dto.PreviewData{
			JPEG:      base64.StdEncoding.EncodeToString(buf.Bytes()),
			Label:     f.Label,
			Countdown: f.Countdown.Seconds(),
		})
	}
}

func (s *Server) renderEngineError(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, engine.ErrDeviceBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDeviceUnavailable),
		errors.Is(err, engine.ErrDetectorUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrModelMissing),
		errors.Is(err, engine.ErrNoSamples):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
