package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceEvent is the message published to NATS for every session
// decision the engine makes, accepted or rejected.
type AttendanceEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	StationID string    `json:"station_id"`
	StudentID int64     `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
	FromState string    `json:"from_state"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
}

// AuditEvent is the persisted form of an AttendanceEvent plus registry
// context resolved by the consumer.
type AuditEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StationID string    `json:"station_id" db:"station_id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	RollNo    string    `json:"roll_no" db:"roll_no"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
