// Package analyzer finds cart subtotal selectors: it fans a simplified
// cart page out over several chat models in parallel, parses each reply
// into a querySelector expression, and can ask one arbiter model to
// reconcile the answers.
package analyzer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/internal/usage"
)

// Fanout runs one analysis request across many models concurrently.
type Fanout struct {
	gateway  llm.Gateway
	registry *registry.Registry
	recorder *usage.Recorder
}

// NewFanout creates a Fanout. recorder may be nil when the caller does
// its own usage accounting.
func NewFanout(gateway llm.Gateway, reg *registry.Registry, recorder *usage.Recorder) *Fanout {
	return &Fanout{gateway: gateway, registry: reg, recorder: recorder}
}

// emitter hands events to the consumer one at a time with a per-request
// monotonic sequence number.
type emitter struct {
	mu   sync.Mutex
	seq  uint64
	sink func(model.ModelEvent)
}

func (e *emitter) emit(ev model.ModelEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	ev.Seq = e.seq
	ev.At = time.Now()
	if e.sink != nil {
		e.sink(ev)
	}
}

// Analyze runs the request's models in parallel, pushing every state
// transition to sink: pending for each model up front, then processing
// and a terminal state. It returns each model's terminal event, in
// request order after de-duplication, once all models have settled.
func (f *Fanout) Analyze(ctx context.Context, req model.AnalysisRequest, sink func(model.ModelEvent)) []model.ModelEvent {
	ids := dedupe(req.ModelIDs)
	em := &emitter{sink: sink}

	terminals := make([]model.ModelEvent, len(ids))
	record := func(i int, ev model.ModelEvent) {
		if ev.State.Terminal() {
			terminals[i] = ev
		}
		em.emit(ev)
	}

	for i, id := range ids {
		record(i, model.ModelEvent{ModelID: id, State: model.ModelStatePending})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		m, ok := f.registry.Find(id)
		if !ok || m.Disabled {
			reason := "unavailable"
			if ok && m.DisabledReason != "" {
				reason = m.DisabledReason
			}
			record(i, model.ModelEvent{ModelID: id, State: model.ModelStateSkipped, Reason: reason})
			continue
		}

		record(i, model.ModelEvent{ModelID: id, State: model.ModelStateProcessing})

		g.Go(func() error {
			res, err := f.gateway.Generate(gctx, llm.Request{
				ModelID: id,
				System:  SubtotalSystemPrompt,
				Prompt:  subtotalUserPrompt(req.SimplifiedHTML),
			})
			if err != nil {
				pe := llm.Classify(err)
				zap.L().Warn("analyzer: model failed",
					zap.String("correlation_id", req.CorrelationID),
					zap.String("model_id", id),
					zap.String("kind", string(pe.Kind)),
				)
				record(i, model.ModelEvent{
					ModelID:     id,
					State:       model.ModelStateFailure,
					FailureKind: string(pe.Kind),
					Message:     pe.UserMessage(),
				})
				return nil
			}

			f.recordUsage(gctx, req.UserID, id, res.Usage)
			record(i, model.ModelEvent{
				ModelID: id,
				State:   model.ModelStateSuccess,
				Text:    res.Text,
				Usage:   res.Usage,
			})
			return nil
		})
	}
	_ = g.Wait()

	return terminals
}

// ParseAnswers turns terminal events into parsed answers, successes only.
func (f *Fanout) ParseAnswers(events []model.ModelEvent) []model.ParsedAnswer {
	out := make([]model.ParsedAnswer, 0, len(events))
	for _, ev := range events {
		if ev.State != model.ModelStateSuccess {
			continue
		}
		out = append(out, model.ParsedAnswer{
			ModelID:          ev.ModelID,
			ModelDisplayName: f.registry.DisplayName(ev.ModelID),
			RawText:          ev.Text,
			Selector:         ExtractSelector(ev.Text),
		})
	}
	return out
}

func (f *Fanout) recordUsage(ctx context.Context, userID *string, modelID string, u model.TokenUsage) {
	if f.recorder == nil || u.TotalTokens <= 0 {
		return
	}
	ev := model.UsageEvent{
		UserID:       userID,
		ModelID:      modelID,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
	if err := f.recorder.Record(ctx, ev); err != nil {
		zap.L().Warn("analyzer: usage record rejected", zap.String("model_id", modelID), zap.Error(err))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
