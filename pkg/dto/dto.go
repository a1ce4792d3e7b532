package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// --- Students ---

type CreateStudentRequest struct {
	Name       string `json:"name" binding:"required"`
	RollNo     string `json:"roll_no" binding:"required"`
	Class      string `json:"class"`
	Department string `json:"department"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type StudentResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RollNo      string `json:"roll_no"`
	Class       string `json:"class"`
	Department  string `json:"department"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	SampleCount int    `json:"sample_count"`
	CreatedAt   string `json:"created_at"`
}

type SampleResponse struct {
	ID        uuid.UUID `json:"id"`
	StudentID int64     `json:"student_id"`
	ObjectKey string    `json:"object_key"`
	CreatedAt string    `json:"created_at"`
}

// --- Attendance ---

type AttendanceResponse struct {
	ID        int64      `json:"id"`
	StudentID int64      `json:"student_id"`
	Date      string     `json:"date"`
	CheckIn   time.Time  `json:"check_in"`
	CheckOut  *time.Time `json:"check_out,omitempty"`
	Status    string     `json:"status"`
}

// --- Station control ---

type StartEnrollmentRequest struct {
	StudentID int64 `json:"student_id" binding:"required"`
}

type StartRecognitionRequest struct {
	// Mode is "check_in" or "check_out".
	Mode string `json:"mode" binding:"required"`
}

type TrainResponse struct {
	Samples   int       `json:"samples"`
	Subjects  int       `json:"subjects"`
	TrainedAt time.Time `json:"trained_at"`
}

// --- WebSocket ---

// WSEvent is the envelope for all WebSocket broadcasts. Type is one of
// "decision", "progress", "preview".
type WSEvent struct {
	Type      string          `json:"type"`
	StationID string          `json:"station_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type ProgressData struct {
	StudentID int64 `json:"student_id"`
	Count     int   `json:"count"`
	Quota     int   `json:"quota"`
}

type PreviewData struct {
	// JPEG is the base64-encoded annotated frame.
	JPEG      string  `json:"jpeg"`
	Label     string  `json:"label,omitempty"`
	Countdown float64 `json:"countdown_seconds,omitempty"`
}
