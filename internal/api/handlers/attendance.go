package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceattend/internal/storage"
	"github.com/your-org/faceattend/pkg/dto"
)

type AttendanceHandler struct {
	db *storage.PostgresStore
}

func NewAttendanceHandler(db *storage.PostgresStore) *AttendanceHandler {
	return &AttendanceHandler{db: db}
}

// List returns attendance rows, optionally filtered by date (YYYY-MM-DD) and
// student_id.
func (h *AttendanceHandler) List(c *gin.Context) {
	var date *time.Time
	if dateStr := c.Query("date"); dateStr != "" {
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
			return
		}
		date = &d
	}

	var studentID *int64
	if idStr := c.Query("student_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student_id"})
			return
		}
		studentID = &id
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, total, err := h.db.ListAttendance(c.Request.Context(), date, studentID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AttendanceResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, dto.AttendanceResponse{
			ID:        s.ID,
			StudentID: s.StudentID,
			Date:      s.Date.Format("2006-01-02"),
			CheckIn:   s.CheckIn,
			CheckOut:  s.CheckOut,
			Status:    string(s.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{"attendance": resp, "total": total})
}

// Today returns a summary of the current day's attendance.
func (h *AttendanceHandler) Today(c *gin.Context) {
	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	summary, err := h.db.SummaryFor(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Audit returns recent audit events, newest first.
func (h *AttendanceHandler) Audit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.db.ListAuditEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}
