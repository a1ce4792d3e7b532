package main

import (
	"context"
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

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceattend/internal/api/ws"
	"github.com/your-org/faceattend/internal/camera"
	"github.com/your-org/faceattend/internal/config"
	"github.com/your-org/faceattend/internal/engine"
	"github.com/your-org/faceattend/internal/observability"
	"github.com/your-org/faceattend/internal/queue"
	"github.com/your-org/faceattend/internal/station"
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

	slog.Info("starting attendance station",
		"station", cfg.Station.ID,
		"port", cfg.Station.Port,
		"camera", cfg.Camera.Device,
	)

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

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// Initialize ONNX Runtime and the vision stack. A failure leaves the
	// station in degraded mode: the control API stays up but capture
	// operations report the detector as unavailable.
	var (
		detector *vision.Detector
		embedder *vision.Embedder
	)
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — capture unavailable", "error", err)
	} else {
		defer ort.DestroyEnvironment()

		detector, err = vision.NewDetector(
			filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
			float32(cfg.Vision.DetectionThreshold),
		)
		if err != nil {
			slog.Warn("load face detector — capture unavailable", "error", err)
			detector = nil
		} else {
			defer detector.Close()
		}

		embedder, err = vision.NewEmbedder(filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"))
		if err != nil {
			slog.Warn("load face embedder — capture unavailable", "error", err)
			detector = nil
			embedder = nil
		} else {
			defer embedder.Close()
		}
	}

	samples := storage.NewSampleStore(minioStore, db)

	trainer := vision.NewTrainer(embedder, cfg.Vision.ModelPath)
	trainer.OnEmbedding = func(ref string, embedding []float32) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.SetSampleEmbedding(ctx, ref, embedding); err != nil {
			slog.Warn("mirror embedding", "ref", ref, "error", err)
		}
	}

	eng := engine.New(engine.Config{
		SampleQuota:       cfg.Engine.SampleQuota,
		SampleInterval:    cfg.Engine.SampleInterval.Std(),
		DistanceThreshold: cfg.Engine.DistanceThreshold,
		HoldDuration:      cfg.Engine.HoldDuration.Std(),
		PollInterval:      cfg.Engine.PollInterval.Std(),
		FaceSize:          cfg.Engine.FaceSize,
	}, engine.Deps{
		Source:      camera.NewSource(cfg.Camera),
		Detector:    detectorOrNil(detector),
		Recognizers: vision.NewLoader(embedder, cfg.Vision.ModelPath),
		Samples:     samples,
		SampleSrc:   samples,
		Trainer:     trainer,
		Sessions:    db,
	})

	hub := ws.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Station.Port),
		Handler:      station.NewServer(cfg.Station.ID, eng, db, producer, hub).Router(cfg.Server.APIKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("station server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down station...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("station stopped")
}

// detectorOrNil keeps a typed-nil *vision.Detector from masquerading as a
// non-nil engine.FaceDetector.
func detectorOrNil(d *vision.Detector) engine.FaceDetector {
	if d == nil {
		return nil
	}
	return d
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
