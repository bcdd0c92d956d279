// Package registry enumerates the chat models the analyzer can call.
// The catalog is fixed at build time; changing it requires a redeploy.
package registry

// Provider identifies the vendor back-end serving a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderFireworks Provider = "fireworks"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
)

// Model describes one chat model. ID is the stable internal key;
// DisplayName is the provider's marketing name. Disabled entries stay
// visible to the UI but must never be sent an outbound call.
type Model struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"name"`
	Description    string   `json:"description"`
	Provider       Provider `json:"-"`
	ProviderModel  string   `json:"-"`
	Reasoning      bool     `json:"-"` // replies carry <think> spans to strip
	Disabled       bool     `json:"disabled,omitempty"`
	DisabledReason string   `json:"disabledReason,omitempty"`
}

// DefaultModelID is used whenever a caller names no model.
const DefaultModelID = "chat-model-gemini"

var catalog = []Model{
	{
		ID:            "chat-model-small",
		DisplayName:   "gpt-4o-mini",
		Description:   "Small model for fast, lightweight tasks",
		Provider:      ProviderOpenAI,
		ProviderModel: "gpt-4o-mini",
	},
	{
		ID:            "chat-model-large",
		DisplayName:   "gpt-4o",
		Description:   "Large model for complex, multi-step tasks",
		Provider:      ProviderOpenAI,
		ProviderModel: "gpt-4o",
	},
	{
		ID:            "chat-model-reasoning",
		DisplayName:   "deepseek-r1",
		Description:   "Uses advanced reasoning",
		Provider:      ProviderFireworks,
		ProviderModel: "accounts/fireworks/models/deepseek-r1",
		Reasoning:     true,
	},
	{
		ID:            "chat-model-gemini",
		DisplayName:   "gemini-2.0-flash",
		Description:   "Uses Gemini 2.0 Flash",
		Provider:      ProviderGoogle,
		ProviderModel: "gemini-2.0-flash",
	},
	{
		ID:             "chat-model-gemini-pro",
		DisplayName:    "gemini-2.0-pro-exp-02-05",
		Description:    "Uses Gemini 2.0 Pro",
		Provider:       ProviderGoogle,
		ProviderModel:  "gemini-2.0-pro-exp-02-05",
		Disabled:       true,
		DisabledReason: "此模型暫時不可用",
	},
	{
		ID:            "chat-model-claude",
		DisplayName:   "claude-3-7-sonnet-20250219",
		Description:   "Uses Claude 3.7 Sonnet",
		Provider:      ProviderAnthropic,
		ProviderModel: "claude-3-7-sonnet-20250219",
	},
}

// Registry answers lookups over a fixed model catalog.
type Registry struct {
	models []Model
	byID   map[string]int
}

// New returns a Registry over the build-time catalog.
func New() *Registry {
	return NewWith(catalog)
}

// NewWith builds a Registry over an explicit model list. Used by tests and
// by deployments that trim the catalog.
func NewWith(models []Model) *Registry {
	r := &Registry{
		models: make([]Model, len(models)),
		byID:   make(map[string]int, len(models)),
	}
	copy(r.models, models)
	for i, m := range r.models {
		r.byID[m.ID] = i
	}
	return r
}

// List returns every model, disabled entries included.
func (r *Registry) List() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

// Find returns the model with the given id.
func (r *Registry) Find(id string) (Model, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Model{}, false
	}
	return r.models[i], true
}

// Enabled reports whether the id names a model that may be called.
func (r *Registry) Enabled(id string) bool {
	m, ok := r.Find(id)
	return ok && !m.Disabled
}

// DisplayName resolves an id to its marketing name, falling back to the id
// itself for models no longer in the catalog.
func (r *Registry) DisplayName(id string) string {
	if m, ok := r.Find(id); ok {
		return m.DisplayName
	}
	return id
}
