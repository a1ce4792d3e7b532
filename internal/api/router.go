package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceattend/internal/api/handlers"
	"github.com/your-org/faceattend/internal/api/ws"
	"github.com/your-org/faceattend/internal/storage"
)

type RouterConfig struct {
	APIKey string
	DB     *storage.PostgresStore
	MinIO  *storage.MinIOStore
	NATS   handlers.Pinger
	Hub    *ws.Hub
	// EmbedFn extracts a face embedding from image bytes (from the vision
	// stack). Nil disables /v1/search.
	EmbedFn func(imageData []byte) ([]float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.NATS)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(APIKeyMiddleware(cfg.APIKey))

	// WebSocket (dashboard: decisions and enrollment progress)
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Student registry
	studentH := handlers.NewStudentHandler(cfg.DB, cfg.MinIO)
	v1.POST("/students", studentH.Create)
	v1.GET("/students", studentH.List)
	v1.GET("/students/:id", studentH.Get)
	v1.DELETE("/students/:id", studentH.Delete)
	v1.GET("/students/:id/samples", studentH.ListSamples)

	// Attendance
	attendanceH := handlers.NewAttendanceHandler(cfg.DB)
	v1.GET("/attendance", attendanceH.List)
	v1.GET("/attendance/today", attendanceH.Today)
	v1.GET("/audit", attendanceH.Audit)

	// Face search (duplicate-enrollment check)
	searchH := handlers.NewSearchHandler(cfg.DB)
	searchH.EmbedFn = cfg.EmbedFn
	v1.POST("/search", searchH.Search)

	return r
}
