// Package pipeline drives a full store analysis: fetch the cart page,
// simplify it, fan it out over the chat models and optionally ask an
// arbiter for consensus.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/analyzer"
	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/simplify"
)

// CartFetcher retrieves a store's cart page.
type CartFetcher interface {
	FetchCart(ctx context.Context, storeName string) (*model.CartFetchResult, error)
}

// Coordinator wires the stages together.
type Coordinator struct {
	fetcher   CartFetcher
	fanout    *analyzer.Fanout
	consensus *analyzer.Consensus
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(fetcher CartFetcher, fanout *analyzer.Fanout, consensus *analyzer.Consensus) *Coordinator {
	return &Coordinator{fetcher: fetcher, fanout: fanout, consensus: consensus}
}

// Request selects what to analyze and with which models.
type Request struct {
	StoreName      string
	ModelIDs       []string
	ArbiterModelID string
	WithConsensus  bool
	UserID         *string
}

// Event is one progress notification out of a running analysis.
type Event struct {
	Type      string                 `json:"type"` // fetch | model | answers | consensus
	Fetch     *model.CartFetchResult `json:"fetch,omitempty"`
	Model     *model.ModelEvent      `json:"model,omitempty"`
	Answers   []model.ParsedAnswer   `json:"answers,omitempty"`
	Consensus *model.ConsensusResult `json:"consensus,omitempty"`
}

// Result is the final outcome of one store analysis.
type Result struct {
	CorrelationID string                 `json:"correlationId"`
	Fetch         *model.CartFetchResult `json:"fetch"`
	Answers       []model.ParsedAnswer   `json:"answers"`
	Consensus     *model.ConsensusResult `json:"consensus,omitempty"`
}

// AnalyzeStore runs the full flow, pushing progress to sink (which may be
// nil). A fetch failure aborts the run; consensus is attempted only when
// requested, when at least one model answered and when the context is
// still live. An arbiter failure comes back as a non-nil error next to
// the partial result, which still carries the per-model answers.
func (c *Coordinator) AnalyzeStore(ctx context.Context, req Request, sink func(Event)) (*Result, error) {
	correlationID := uuid.New().String()
	log := zap.L().With(
		zap.String("correlation_id", correlationID),
		zap.String("store", req.StoreName),
	)
	emit := func(ev Event) {
		if sink != nil {
			sink(ev)
		}
	}

	fetch, err := c.fetcher.FetchCart(ctx, req.StoreName)
	if fetch != nil {
		emit(Event{Type: "fetch", Fetch: fetch})
	}
	if err != nil {
		log.Warn("pipeline: cart fetch failed", zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: fetch cart")
	}
	log.Info("pipeline: cart fetched",
		zap.Int("redirects", fetch.RedirectCount),
		zap.Int("html_bytes", len(fetch.HTML)),
	)

	simplified := simplify.Simplify(fetch.HTML)

	terminals := c.fanout.Analyze(ctx, model.AnalysisRequest{
		SimplifiedHTML: simplified,
		ModelIDs:       req.ModelIDs,
		UserID:         req.UserID,
		CorrelationID:  correlationID,
	}, func(ev model.ModelEvent) {
		emit(Event{Type: "model", Model: &ev})
	})

	answers := c.fanout.ParseAnswers(terminals)
	emit(Event{Type: "answers", Answers: answers})

	result := &Result{
		CorrelationID: correlationID,
		Fetch:         fetch,
		Answers:       answers,
	}

	if !req.WithConsensus || len(answers) == 0 || ctx.Err() != nil {
		return result, nil
	}

	consensus, err := c.consensus.Analyze(ctx, answers, req.ArbiterModelID, simplified, req.UserID)
	if err != nil {
		// The individual answers stay in the result, but the caller must
		// learn the arbiter failed.
		log.Warn("pipeline: consensus failed", zap.Error(err))
		return result, eris.Wrap(err, "pipeline: consensus")
	}
	result.Consensus = consensus
	emit(Event{Type: "consensus", Consensus: consensus})
	return result, nil
}
