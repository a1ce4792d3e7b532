package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceSample is one normalized grayscale face crop captured during enrollment.
// The image bytes live in the object store under ObjectKey; the embedding is
// filled in by the training pipeline.
type FaceSample struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	ObjectKey string    `json:"object_key" db:"object_key"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
