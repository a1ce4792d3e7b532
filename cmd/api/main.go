package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceattend/internal/api"
	"github.com/your-org/faceattend/internal/api/ws"
	"github.com/your-org/faceattend/internal/config"
	"github.com/your-org/faceattend/internal/models"
	"github.com/your-org/faceattend/internal/observability"
	"github.com/your-org/faceattend/internal/queue"
	"github.com/your-org/faceattend/internal/storage"
	"github.com/your-org/faceattend/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// NATS producer is only used for readiness checks here; the stream is
	// ensured so the API can start before any station.
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// WebSocket hub for dashboard clients
	hub := ws.NewHub()
	go hub.Run()

	// Consume station decisions: persist an audit row and fan out to the
	// dashboard.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create decision consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeDecisions(ctx, "api-decisions", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.AttendanceEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return err
		}

		rollNo := ""
		if student, err := db.GetStudent(ctx, ev.StudentID); err == nil && student != nil {
			rollNo = student.RollNo
		}

		audit := &models.AuditEvent{
			ID:        ev.EventID,
			StationID: ev.StationID,
			StudentID: ev.StudentID,
			RollNo:    rollNo,
			Action:    ev.Outcome,
			Details:   fmt.Sprintf("mode=%s from=%s", ev.Mode, ev.FromState),
			Timestamp: ev.Timestamp,
		}
		if err := db.InsertAuditEvent(ctx, audit); err != nil {
			slog.Error("store audit event", "event_id", ev.EventID, "error", err)
		}

		hub.Broadcast("decision", ev.StationID, ev)
		return nil
	})
	if err != nil {
		slog.Warn("start decision consumer", "error", err)
	}

	// Initialize ONNX Runtime for the face search endpoint.
	var embedFn func([]byte) ([]float32, error)

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — /v1/search will be unavailable", "error", err)
	} else {
		detector, derr := vision.NewDetector(
			filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
			float32(cfg.Vision.DetectionThreshold),
		)
		embedder, eerr := vision.NewEmbedder(filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"))
		if derr != nil || eerr != nil {
			slog.Warn("vision init failed — /v1/search will be unavailable", "detector_error", derr, "embedder_error", eerr)
		} else {
			pipeline := vision.NewPipeline(detector, embedder, cfg.Engine.FaceSize)
			embedFn = pipeline.EmbedImage
			// Sessions close before the runtime environment goes away.
			defer ort.DestroyEnvironment()
			defer pipeline.Close()
			slog.Info("vision stack ready for face search")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		DB:      db,
		MinIO:   minioStore,
		NATS:    producer,
		Hub:     hub,
		EmbedFn: embedFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
