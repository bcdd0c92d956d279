package usage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/cost"
	"github.com/shoplens/cartdetect/internal/model"
)

// Recorder validates and persists usage events. Storage failures are
// logged and swallowed so a broken store never fails an analysis.
type Recorder struct {
	store Store
	calc  *cost.Calculator
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store, calc *cost.Calculator) *Recorder {
	return &Recorder{store: store, calc: calc}
}

// Record persists one usage event. It returns an error only for invalid
// events; storage failures are dropped after logging.
func (r *Recorder) Record(ctx context.Context, ev model.UsageEvent) error {
	if ev.ModelID == "" {
		return eris.New("usage: event has no model id")
	}
	if ev.TotalTokens <= 0 {
		return eris.Errorf("usage: event has non-positive total tokens %d", ev.TotalTokens)
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	if r.calc != nil {
		r.calc.LogCost(ev.ModelID, "analysis", model.TokenUsage{
			InputTokens:  ev.InputTokens,
			OutputTokens: ev.OutputTokens,
			TotalTokens:  ev.TotalTokens,
		})
	}

	// The event must land even when the caller's request is already
	// being torn down.
	if err := r.store.Insert(context.WithoutCancel(ctx), ev); err != nil {
		zap.L().Error("usage: insert failed, dropping event",
			zap.String("model_id", ev.ModelID),
			zap.Int64("total_tokens", ev.TotalTokens),
			zap.Error(err),
		)
	}
	return nil
}

// ForUser aggregates a user's recorded consumption.
func (r *Recorder) ForUser(ctx context.Context, userID *string, names DisplayNamer) (*model.AggregatedUsage, error) {
	events, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "usage: list events")
	}
	agg := Aggregate(events, names)
	return &agg, nil
}
