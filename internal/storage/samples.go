package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"

	"github.com/your-org/faceattend/internal/engine"
)

// SampleStore persists normalized face crops to MinIO and mirrors a row per
// crop in Postgres. It implements both engine.SampleStore (enrollment writes)
// and engine.SampleSource (training reads).
type SampleStore struct {
	objects *MinIOStore
	db      *PostgresStore
}

func NewSampleStore(objects *MinIOStore, db *PostgresStore) *SampleStore {
	return &SampleStore{objects: objects, db: db}
}

// SaveSample encodes the crop as PNG and stores it under a content-addressed
// key. Re-capturing an identical crop lands on the same key, so enrollment
// retries never duplicate storage.
func (s *SampleStore) SaveSample(ctx context.Context, subjectID int64, seq int, face *image.Gray) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, face); err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	key := fmt.Sprintf("samples/%d/%s.png", subjectID, hex.EncodeToString(sum[:]))

	if err := s.objects.PutObject(ctx, key, buf.Bytes(), "image/png"); err != nil {
		return "", fmt.Errorf("store sample: %w", err)
	}
	if _, err := s.db.InsertSample(ctx, subjectID, key); err != nil {
		return "", err
	}
	return key, nil
}

// AllSamples loads every stored crop back for training. Unreadable objects
// are skipped with a warning rather than failing the whole training run.
func (s *SampleStore) AllSamples(ctx context.Context) ([]engine.LabeledFace, error) {
	rows, err := s.db.ListSamples(ctx, nil)
	if err != nil {
		return nil, err
	}

	faces := make([]engine.LabeledFace, 0, len(rows))
	for _, row := range rows {
		data, err := s.objects.GetObject(ctx, row.ObjectKey)
		if err != nil {
			slog.Warn("skipping unreadable sample", "key", row.ObjectKey, "error", err)
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			slog.Warn("skipping undecodable sample", "key", row.ObjectKey, "error", err)
			continue
		}
		faces = append(faces, engine.LabeledFace{
			SubjectID: row.StudentID,
			Image:     toGray(img),
			Ref:       row.ObjectKey,
		})
	}
	return faces, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}
