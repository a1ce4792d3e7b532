package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/your-org/faceattend/internal/engine"
)

// Recognizer pairs the embedder with one loaded index snapshot. A snapshot
// is immutable, so a recognition run keeps its model even while training
// replaces the artifact on disk.
type Recognizer struct {
	emb *Embedder
	ix  *Index
}

func (r *Recognizer) Predict(face *image.Gray) (int64, float64, error) {
	embedding, err := r.emb.EmbedFace(face)
	if err != nil {
		return 0, 0, fmt.Errorf("embed face: %w", err)
	}
	label, distance := r.ix.Predict(embedding)
	return label, distance, nil
}

// Loader loads recognizer snapshots from the model artifact on disk.
// Implements engine.RecognizerLoader.
type Loader struct {
	emb  *Embedder
	path string
}

func NewLoader(emb *Embedder, modelPath string) *Loader {
	return &Loader{emb: emb, path: modelPath}
}

func (l *Loader) Load() (engine.Recognizer, error) {
	if l.emb == nil {
		return nil, engine.ErrDetectorUnavailable
	}
	ix, err := LoadIndex(l.path)
	if err != nil {
		return nil, err
	}
	return &Recognizer{emb: l.emb, ix: ix}, nil
}

// Trainer fits an index over the full sample set and atomically replaces
// the model artifact. Implements engine.ModelTrainer.
type Trainer struct {
	emb  *Embedder
	path string

	// OnEmbedding, when set, receives each sample's embedding keyed by its
	// store reference, so callers can mirror embeddings into the database.
	OnEmbedding func(ref string, embedding []float32)
}

func NewTrainer(emb *Embedder, modelPath string) *Trainer {
	return &Trainer{emb: emb, path: modelPath}
}

func (t *Trainer) Fit(ctx context.Context, faces []engine.LabeledFace) (engine.ModelSummary, error) {
	if t.emb == nil {
		return engine.ModelSummary{}, engine.ErrDetectorUnavailable
	}
	embeddings := make([][]float32, 0, len(faces))
	labels := make([]int64, 0, len(faces))

	for _, face := range faces {
		if err := ctx.Err(); err != nil {
			return engine.ModelSummary{}, err
		}
		embedding, err := t.emb.EmbedFace(face.Image)
		if err != nil {
			// A single bad sample does not abort the whole train.
			slog.Warn("embed sample", "ref", face.Ref, "error", err)
			continue
		}
		embeddings = append(embeddings, embedding)
		labels = append(labels, face.SubjectID)
		if t.OnEmbedding != nil {
			t.OnEmbedding(face.Ref, embedding)
		}
	}

	ix, err := FitIndex(embeddings, labels)
	if err != nil {
		return engine.ModelSummary{}, err
	}
	if err := ix.Save(t.path); err != nil {
		return engine.ModelSummary{}, fmt.Errorf("save model: %w", err)
	}

	return engine.ModelSummary{
		Samples:   ix.Samples,
		Subjects:  ix.Subjects(),
		TrainedAt: ix.TrainedAt,
	}, nil
}
