package vision

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/your-org/faceattend/internal/engine"
)

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestFitIndexAndPredict(t *testing.T) {
	embeddings := [][]float32{
		unitVec(4, 0), unitVec(4, 0), // subject 1
		unitVec(4, 1), // subject 2
		unitVec(4, 2), unitVec(4, 2), unitVec(4, 2), // subject 3
	}
	labels := []int64{1, 1, 2, 3, 3, 3}

	ix, err := FitIndex(embeddings, labels)
	if err != nil {
		t.Fatalf("FitIndex: %v", err)
	}
	if ix.Samples != 6 || ix.Subjects() != 3 {
		t.Fatalf("index has %d samples, %d subjects; want 6 and 3", ix.Samples, ix.Subjects())
	}

	for _, tc := range []struct {
		probe []float32
		want  int64
	}{
		{unitVec(4, 0), 1},
		{unitVec(4, 1), 2},
		{unitVec(4, 2), 3},
	} {
		label, dist := ix.Predict(tc.probe)
		if label != tc.want {
			t.Errorf("Predict matched %d, want %d", label, tc.want)
		}
		if dist > 1e-5 {
			t.Errorf("distance to own centroid = %v, want ~0", dist)
		}
	}

	// A vector orthogonal to everything matches poorly.
	if _, dist := ix.Predict(unitVec(4, 3)); dist < 0.99 {
		t.Errorf("orthogonal probe distance = %v, want ~1", dist)
	}
}

func TestFitIndexErrors(t *testing.T) {
	if _, err := FitIndex(nil, nil); !errors.Is(err, engine.ErrNoSamples) {
		t.Errorf("empty fit: err = %v, want ErrNoSamples", err)
	}

	if _, err := FitIndex([][]float32{unitVec(4, 0)}, []int64{1, 2}); err == nil {
		t.Error("label/embedding count mismatch must fail")
	}

	if _, err := FitIndex([][]float32{unitVec(4, 0), unitVec(8, 0)}, []int64{1, 2}); err == nil {
		t.Error("mixed embedding dimensions must fail")
	}
}

func TestIndexSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "recognizer.json")

	ix, err := FitIndex([][]float32{unitVec(3, 0), unitVec(3, 1)}, []int64{10, 20})
	if err != nil {
		t.Fatalf("FitIndex: %v", err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if loaded.Samples != ix.Samples || loaded.Subjects() != ix.Subjects() || loaded.Dim != ix.Dim {
		t.Fatalf("loaded index %+v differs from saved %+v", loaded, ix)
	}

	label, dist := loaded.Predict(unitVec(3, 1))
	if label != 20 || dist > 1e-5 {
		t.Fatalf("loaded Predict = (%d, %v), want (20, ~0)", label, dist)
	}
}

func TestLoadIndexMissing(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, engine.ErrModelMissing) {
		t.Fatalf("err = %v, want ErrModelMissing", err)
	}
}

func TestLoadIndexRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recognizer.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "dim": 4}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIndex(path); err == nil {
		t.Fatal("future-versioned artifact must be rejected")
	}
}

// A reader concurrent with retrains must only ever see a complete artifact:
// either some fully-written generation or, before the first save, a missing
// file.
func TestIndexAtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recognizer.json")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ix, err := FitIndex([][]float32{unitVec(64, i % 64)}, []int64{int64(i + 1)})
			if err != nil {
				t.Errorf("FitIndex: %v", err)
				return
			}
			if err := ix.Save(path); err != nil {
				t.Errorf("Save: %v", err)
				return
			}
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ix, err := LoadIndex(path)
			if err != nil {
				if errors.Is(err, engine.ErrModelMissing) {
					continue // before the first generation landed
				}
				t.Errorf("LoadIndex observed a partial artifact: %v", err)
				return
			}
			if ix.Subjects() != 1 || ix.Dim != 64 {
				t.Errorf("loaded inconsistent index: %+v", ix)
				return
			}
		}
	}()

	wg.Wait()
}
