package models

import "time"

type Student struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	RollNo     string    `json:"roll_no" db:"roll_no"`
	Class      string    `json:"class,omitempty" db:"class"`
	Department string    `json:"department,omitempty" db:"department"`
	Email      string    `json:"email,omitempty" db:"email"`
	Phone      string    `json:"phone,omitempty" db:"phone"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
