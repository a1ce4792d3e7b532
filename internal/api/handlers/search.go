package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceattend/internal/storage"
)

type SearchHandler struct {
	db *storage.PostgresStore
	// EmbedFn extracts a face embedding from image bytes. Nil when the
	// vision stack is not loaded in this process; search then returns 503.
	EmbedFn func(imageData []byte) ([]float32, error)
}

func NewSearchHandler(db *storage.PostgresStore) *SearchHandler {
	return &SearchHandler{db: db}
}

// Search accepts a multipart face image and returns the closest enrolled
// students. Admins use it to catch duplicate enrollments before registering
// a new student.
func (h *SearchHandler) Search(c *gin.Context) {
	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face embedding not available"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image: " + err.Error()})
		return
	}

	embedding, err := h.EmbedFn(data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no usable face in image: " + err.Error()})
		return
	}

	maxDistance := 0.6
	if dStr := c.PostForm("max_distance"); dStr != "" {
		if d, err := strconv.ParseFloat(dStr, 64); err == nil {
			maxDistance = d
		}
	}
	limit, _ := strconv.Atoi(c.DefaultPostForm("limit", "5"))

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, maxDistance, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches, "total": len(matches)})
}
