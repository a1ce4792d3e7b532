package vision

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/your-org/faceattend/internal/engine"
)

const indexVersion = 1

// indexEntry is one subject's centroid over its sample embeddings.
type indexEntry struct {
	Label    int64     `json:"label"`
	Centroid []float32 `json:"centroid"`
	Samples  int       `json:"samples"`
}

// Index is the trained recognizer model: one L2-normalized centroid per
// subject. Predict returns the nearest centroid by cosine distance, where
// lower is better. The on-disk artifact is versioned JSON replaced wholesale
// on every retrain.
type Index struct {
	Version   int          `json:"version"`
	Dim       int          `json:"dim"`
	TrainedAt time.Time    `json:"trained_at"`
	Samples   int          `json:"samples"`
	Entries   []indexEntry `json:"entries"`
}

// FitIndex builds an index from per-sample embeddings and their subject
// labels. Always trained from the full sample set; there is no incremental
// update.
func FitIndex(embeddings [][]float32, labels []int64) (*Index, error) {
	if len(embeddings) == 0 {
		return nil, engine.ErrNoSamples
	}
	if len(embeddings) != len(labels) {
		return nil, fmt.Errorf("fit index: %d embeddings for %d labels", len(embeddings), len(labels))
	}

	dim := len(embeddings[0])
	sums := make(map[int64][]float32)
	counts := make(map[int64]int)
	order := make([]int64, 0)

	for i, emb := range embeddings {
		if len(emb) != dim {
			return nil, fmt.Errorf("fit index: embedding %d has dim %d, want %d", i, len(emb), dim)
		}
		label := labels[i]
		sum, ok := sums[label]
		if !ok {
			sum = make([]float32, dim)
			sums[label] = sum
			order = append(order, label)
		}
		for j, v := range emb {
			sum[j] += v
		}
		counts[label]++
	}

	ix := &Index{
		Version:   indexVersion,
		Dim:       dim,
		TrainedAt: time.Now().UTC(),
		Samples:   len(embeddings),
	}
	for _, label := range order {
		centroid := sums[label]
		n := float32(counts[label])
		for j := range centroid {
			centroid[j] /= n
		}
		normalize(centroid)
		ix.Entries = append(ix.Entries, indexEntry{
			Label:    label,
			Centroid: centroid,
			Samples:  counts[label],
		})
	}
	return ix, nil
}

// Predict returns the nearest subject and its cosine distance (1 - cosine
// similarity). Distance is in [0, 2]; smaller is a stronger match.
func (ix *Index) Predict(emb []float32) (int64, float64) {
	best := int64(-1)
	bestDist := math.MaxFloat64

	for _, entry := range ix.Entries {
		d := 1.0 - cosine(emb, entry.Centroid)
		if d < bestDist {
			bestDist = d
			best = entry.Label
		}
	}
	return best, bestDist
}

// Subjects returns the number of distinct labels in the index.
func (ix *Index) Subjects() int {
	return len(ix.Entries)
}

// Save writes the artifact with write-to-temp-then-rename semantics so a
// concurrent LoadIndex never observes a truncated file.
func (ix *Index) Save(path string) error {
	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recognizer-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close model: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// LoadIndex reads a model artifact. Returns engine.ErrModelMissing when no
// artifact exists yet.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.ErrModelMissing
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	ix := &Index{}
	if err := json.Unmarshal(data, ix); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if ix.Version != indexVersion {
		return nil, fmt.Errorf("unsupported model version %d", ix.Version)
	}
	return ix, nil
}

// cosine computes cosine similarity between two normalized vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Min(1.0, math.Max(-1.0, dot))
}
