package analyzer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/internal/usage"
)

// ErrNoAnswers is returned when a consensus is requested over an empty
// answer set. No arbiter call is made in that case.
var ErrNoAnswers = eris.New("analyzer: no answers to reconcile")

// Consensus asks one arbiter model to reconcile the fan-out answers.
type Consensus struct {
	gateway  llm.Gateway
	registry *registry.Registry
	recorder *usage.Recorder
}

// NewConsensus creates a Consensus. recorder may be nil.
func NewConsensus(gateway llm.Gateway, reg *registry.Registry, recorder *usage.Recorder) *Consensus {
	return &Consensus{gateway: gateway, registry: reg, recorder: recorder}
}

// Analyze sends every model's answer plus the HTML to the arbiter model
// and parses its synthesis. An empty arbiterModelID selects the default
// model. Unlike the fan-out, arbiter failures propagate to the caller.
func (c *Consensus) Analyze(ctx context.Context, answers []model.ParsedAnswer, arbiterModelID, html string, userID *string) (*model.ConsensusResult, error) {
	if len(answers) == 0 {
		return nil, ErrNoAnswers
	}
	if arbiterModelID == "" {
		arbiterModelID = registry.DefaultModelID
	}

	res, err := c.gateway.Generate(ctx, llm.Request{
		ModelID: arbiterModelID,
		System:  ConsensusSystemPrompt,
		Prompt:  consensusUserPrompt(answers, html),
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: consensus call")
	}

	if c.recorder != nil && res.Usage.TotalTokens > 0 {
		ev := model.UsageEvent{
			UserID:       userID,
			ModelID:      arbiterModelID,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			TotalTokens:  res.Usage.TotalTokens,
		}
		if err := c.recorder.Record(ctx, ev); err != nil {
			zap.L().Warn("analyzer: consensus usage record rejected", zap.Error(err))
		}
	}

	return &model.ConsensusResult{
		ArbiterModelID: arbiterModelID,
		Text:           res.Text,
		Usage:          res.Usage,
		Selector:       ExtractSelector(res.Text),
	}, nil
}
