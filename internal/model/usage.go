package model

// UsageEvent is one (user, model, tokens, time) tuple recorded per LLM call.
// Events are append-only; aggregations are derived views. The input/output
// split feeds cost estimation only; stores persist the total.
type UsageEvent struct {
	ID           string  `json:"id,omitempty"`
	UserID       *string `json:"userId,omitempty"`
	ModelID      string  `json:"modelId"`
	InputTokens  int64   `json:"inputTokens,omitempty"`
	OutputTokens int64   `json:"outputTokens,omitempty"`
	TotalTokens  int64   `json:"totalTokens"`
	Timestamp    int64   `json:"timestamp"` // ms since epoch
}

// ModelUsage is the per-model slice of a user's aggregated consumption.
type ModelUsage struct {
	ModelID       string `json:"modelId"`
	ModelName     string `json:"modelName"`
	TotalTokens   int64  `json:"totalTokens"`
	Count         int64  `json:"count"`
	AverageTokens int64  `json:"averageTokens"`
}

// AggregatedUsage is a user's total token consumption across models.
type AggregatedUsage struct {
	TotalTokens int64        `json:"totalTokens"`
	TotalCalls  int64        `json:"totalCalls"`
	ModelUsage  []ModelUsage `json:"modelUsage"`
}
