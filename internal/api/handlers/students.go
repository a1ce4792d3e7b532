package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceattend/internal/models"
	"github.com/your-org/faceattend/internal/storage"
	"github.com/your-org/faceattend/pkg/dto"
)

// StudentStore is the registry surface the handler needs.
type StudentStore interface {
	CreateStudent(ctx context.Context, st *models.Student) error
	GetStudent(ctx context.Context, id int64) (*models.Student, error)
	ListStudents(ctx context.Context) ([]models.Student, error)
	ListSamples(ctx context.Context, studentID *int64) ([]models.FaceSample, error)
	CountSamples(ctx context.Context, studentID int64) (int, error)
	DeleteStudent(ctx context.Context, id int64) ([]string, error)
}

// SamplePurger removes stored sample crops after a withdrawal.
type SamplePurger interface {
	DeleteObjects(ctx context.Context, keys []string) error
}

type StudentHandler struct {
	db      StudentStore
	objects SamplePurger
}

func NewStudentHandler(db StudentStore, objects SamplePurger) *StudentHandler {
	return &StudentHandler{db: db, objects: objects}
}

func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := &models.Student{
		Name:       req.Name,
		RollNo:     req.RollNo,
		Class:      req.Class,
		Department: req.Department,
		Email:      req.Email,
		Phone:      req.Phone,
	}
	if err := h.db.CreateStudent(c.Request.Context(), st); err != nil {
		if errors.Is(err, storage.ErrDuplicateRoll) {
			c.JSON(http.StatusConflict, gin.H{"error": "roll number already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, studentResponse(st, 0))
}

func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.db.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.StudentResponse, 0, len(students))
	for i := range students {
		count, _ := h.db.CountSamples(c.Request.Context(), students[i].ID)
		resp = append(resp, studentResponse(&students[i], count))
	}

	c.JSON(http.StatusOK, gin.H{"students": resp, "total": len(resp)})
}

func (h *StudentHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	st, err := h.db.GetStudent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	count, _ := h.db.CountSamples(c.Request.Context(), id)
	c.JSON(http.StatusOK, studentResponse(st, count))
}

// Delete withdraws a student: registry row, sample rows and attendance go
// away, and the stored sample crops are purged from the object store. Audit
// events are kept as history.
func (h *StudentHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	st, err := h.db.GetStudent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	keys, err := h.db.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Object cleanup is best effort: the registry row is already gone and a
	// leftover crop is harmless, so log instead of failing the withdrawal.
	if len(keys) > 0 && h.objects != nil {
		if err := h.objects.DeleteObjects(c.Request.Context(), keys); err != nil {
			slog.Warn("purge sample objects", "student_id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "deleted",
		"samples_removed": len(keys),
	})
}

func (h *StudentHandler) ListSamples(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	samples, err := h.db.ListSamples(c.Request.Context(), &id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SampleResponse, 0, len(samples))
	for _, s := range samples {
		resp = append(resp, dto.SampleResponse{
			ID:        s.ID,
			StudentID: s.StudentID,
			ObjectKey: s.ObjectKey,
			CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"samples": resp, "total": len(resp)})
}

func studentResponse(st *models.Student, sampleCount int) dto.StudentResponse {
	return dto.StudentResponse{
		ID:          st.ID,
		Name:        st.Name,
		RollNo:      st.RollNo,
		Class:       st.Class,
		Department:  st.Department,
		Email:       st.Email,
		Phone:       st.Phone,
		SampleCount: sampleCount,
		CreatedAt:   st.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
