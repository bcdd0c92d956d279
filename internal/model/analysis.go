package model

import "time"

// ModelState represents the current state of one model within an analysis.
type ModelState string

const (
	ModelStatePending    ModelState = "pending"
	ModelStateProcessing ModelState = "processing"
	ModelStateSuccess    ModelState = "success"
	ModelStateFailure    ModelState = "failure"
	ModelStateSkipped    ModelState = "skipped"
)

// Terminal reports whether the state is final for a model.
func (s ModelState) Terminal() bool {
	return s == ModelStateSuccess || s == ModelStateFailure || s == ModelStateSkipped
}

// TokenUsage tracks token consumption reported by a provider for one call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
	TotalTokens  int64 `json:"totalTokens"`
}

// AnalysisRequest is one fan-out request over a set of models. UserID
// is nil for anonymous callers and attributes every recorded usage event.
type AnalysisRequest struct {
	SimplifiedHTML string   `json:"simplified_html"`
	ModelIDs       []string `json:"model_ids"`
	UserID         *string  `json:"user_id,omitempty"`
	CorrelationID  string   `json:"correlation_id"`
}

// ModelEvent is one state transition of one model within an analysis.
// Seq increases monotonically per request; consumers may reorder freely but
// must never apply an earlier state over a later one.
type ModelEvent struct {
	Seq         uint64     `json:"seq"`
	ModelID     string     `json:"modelId"`
	State       ModelState `json:"state"`
	Text        string     `json:"text,omitempty"`
	Usage       TokenUsage `json:"usage,omitzero"`
	FailureKind string     `json:"failureKind,omitempty"`
	Message     string     `json:"message,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	At          time.Time  `json:"at"`
}

// ParsedAnswer is a model's reply with the selector extracted from it.
// Selector is nil only when both parse strategies fail.
type ParsedAnswer struct {
	ModelID          string  `json:"modelId"`
	ModelDisplayName string  `json:"modelName"`
	RawText          string  `json:"rawText"`
	Selector         *string `json:"answer"`
}

// ConsensusResult is the arbiter model's synthesis of the fan-out answers.
type ConsensusResult struct {
	ArbiterModelID string     `json:"modelId"`
	Text           string     `json:"response"`
	Usage          TokenUsage `json:"usage"`
	Selector       *string    `json:"selector,omitempty"`
}
