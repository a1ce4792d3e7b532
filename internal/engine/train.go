package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/faceattend/internal/observability"
)

// Train fits the recognizer over every face sample currently on record and
// persists the model artifact atomically, so a concurrent recognition run
// never observes a partial write. Safe to call while a run holds an older
// model snapshot in memory; only the next load sees the new artifact.
func (e *Engine) Train(ctx context.Context) (ModelSummary, error) {
	start := time.Now()

	faces, err := e.srcSet.AllSamples(ctx)
	if err != nil {
		return ModelSummary{}, fmt.Errorf("load samples: %w", err)
	}
	if len(faces) == 0 {
		return ModelSummary{}, ErrNoSamples
	}

	slog.Info("training started", "samples", len(faces))

	summary, err := e.trainer.Fit(ctx, faces)
	if err != nil {
		return ModelSummary{}, fmt.Errorf("fit recognizer: %w", err)
	}

	observability.TrainingDuration.Observe(time.Since(start).Seconds())
	observability.ModelSamples.Set(float64(summary.Samples))

	slog.Info("training finished",
		"samples", summary.Samples,
		"subjects", summary.Subjects,
		"duration", time.Since(start).String(),
	)
	return summary, nil
}
