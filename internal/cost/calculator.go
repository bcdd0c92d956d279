// Package cost estimates the USD spend of model calls. Estimates feed
// logs only; billing truth lives with the providers.
package cost

import (
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/model"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps catalog model ids to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate computes the cost of one call in USD. Unknown models cost 0.
func (c *Calculator) Estimate(modelID string, usage model.TokenUsage) float64 {
	rate, ok := c.rates[modelID]
	if !ok {
		return 0
	}
	inCost := (float64(usage.InputTokens) / 1e6) * rate.Input
	outCost := (float64(usage.OutputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// LogCost logs token usage and estimated cost with structured fields.
func (c *Calculator) LogCost(modelID, phase string, usage model.TokenUsage) {
	zap.L().Info("cost attribution",
		zap.String("model_id", modelID),
		zap.String("phase", phase),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
		zap.Int64("total_tokens", usage.TotalTokens),
		zap.Float64("estimated_cost_usd", c.Estimate(modelID, usage)),
	)
}

// DefaultRates returns pricing for the build-time model catalog.
func DefaultRates() Rates {
	return Rates{
		"chat-model-small":      {Input: 0.15, Output: 0.60},
		"chat-model-large":      {Input: 2.50, Output: 10.00},
		"chat-model-reasoning":  {Input: 3.00, Output: 8.00},
		"chat-model-gemini":     {Input: 0.10, Output: 0.40},
		"chat-model-gemini-pro": {Input: 0, Output: 0}, // experimental, unbilled
		"chat-model-claude":     {Input: 3.00, Output: 15.00},
	}
}
