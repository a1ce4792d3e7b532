package models

import "time"

type SessionStatus string

const (
	SessionStatusPresent SessionStatus = "present"
)

// AttendanceSession is one student's check-in/check-out record for a date.
// At most one session exists per (student, date); the session is open while
// CheckOut is nil.
type AttendanceSession struct {
	ID        int64         `json:"id" db:"id"`
	StudentID int64         `json:"student_id" db:"student_id"`
	Date      time.Time     `json:"date" db:"attendance_date"`
	CheckIn   time.Time     `json:"check_in" db:"check_in_time"`
	CheckOut  *time.Time    `json:"check_out,omitempty" db:"check_out_time"`
	Status    SessionStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}
