package engine

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"
)

type fakeSampleSource struct {
	faces []LabeledFace
	err   error
}

func (s *fakeSampleSource) AllSamples(ctx context.Context) ([]LabeledFace, error) {
	return s.faces, s.err
}

type fakeTrainer struct {
	got     []LabeledFace
	summary ModelSummary
	err     error
}

func (t *fakeTrainer) Fit(ctx context.Context, faces []LabeledFace) (ModelSummary, error) {
	t.got = faces
	if t.err != nil {
		return ModelSummary{}, t.err
	}
	return t.summary, nil
}

func labeledFaces(ids ...int64) []LabeledFace {
	out := make([]LabeledFace, len(ids))
	for i, id := range ids {
		out[i] = LabeledFace{SubjectID: id, Image: image.NewGray(image.Rect(0, 0, 8, 8))}
	}
	return out
}

func TestTrainUsesAllSamples(t *testing.T) {
	faces := labeledFaces(1, 1, 2, 3, 3, 3)
	trainer := &fakeTrainer{summary: ModelSummary{Samples: 6, Subjects: 3, TrainedAt: time.Now()}}
	e, _ := newTestEngine(engineOpts{
		srcSet: &fakeSampleSource{faces: faces},
		train:  trainer,
	})

	summary, err := e.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(trainer.got) != 6 {
		t.Fatalf("trainer saw %d samples, want all 6", len(trainer.got))
	}
	if summary.Samples != 6 || summary.Subjects != 3 {
		t.Fatalf("summary = %+v, want 6 samples, 3 subjects", summary)
	}
}

func TestTrainFailsWithoutSamples(t *testing.T) {
	trainer := &fakeTrainer{}
	e, _ := newTestEngine(engineOpts{
		srcSet: &fakeSampleSource{},
		train:  trainer,
	})

	_, err := e.Train(context.Background())
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("err = %v, want ErrNoSamples", err)
	}
	if trainer.got != nil {
		t.Fatal("trainer must not run on an empty sample set")
	}
}

func TestTrainDoesNotTouchCamera(t *testing.T) {
	source := &fakeSource{grab: testFrame}
	e, _ := newTestEngine(engineOpts{
		source: source,
		srcSet: &fakeSampleSource{faces: labeledFaces(1)},
		train:  &fakeTrainer{summary: ModelSummary{Samples: 1, Subjects: 1}},
	})

	if _, err := e.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if starts, _ := source.counts(); starts != 0 {
		t.Fatal("training must not claim the capture device")
	}
}
