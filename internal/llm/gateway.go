// Package llm routes generation requests to the vendor back-end serving
// the requested catalog model and normalizes replies, token accounting
// and failures across vendors.
package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/pkg/anthropic"
	"github.com/shoplens/cartdetect/pkg/gemini"
	"github.com/shoplens/cartdetect/pkg/openai"
)

// maxCompletionTokens caps every outbound call. Selector answers are
// short; the cap only matters for runaway reasoning output.
const maxCompletionTokens = 4096

// Request is one generation call against a catalog model.
type Request struct {
	ModelID string
	System  string
	Prompt  string
}

// Result is a normalized reply.
type Result struct {
	ModelID string
	Text    string
	Usage   model.TokenUsage
}

// Gateway generates text with a catalog model.
type Gateway interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Router is the production Gateway. It holds one client per vendor and
// dispatches on the catalog entry's provider.
type Router struct {
	registry  *registry.Registry
	openai    openai.Client
	fireworks openai.Client
	gemini    gemini.Client
	anthropic anthropic.Client
}

// NewRouter builds a Router over the given vendor clients. Fireworks
// speaks the OpenAI wire protocol, so it shares the client type.
func NewRouter(reg *registry.Registry, oa, fw openai.Client, gem gemini.Client, ant anthropic.Client) *Router {
	return &Router{
		registry:  reg,
		openai:    oa,
		fireworks: fw,
		gemini:    gem,
		anthropic: ant,
	}
}

func (r *Router) Generate(ctx context.Context, req Request) (*Result, error) {
	m, ok := r.registry.Find(req.ModelID)
	if !ok {
		return nil, &ProviderError{Kind: KindFatal, Message: "未知的模型: " + req.ModelID}
	}
	if m.Disabled {
		reason := m.DisabledReason
		if reason == "" {
			reason = "此模型暫時不可用"
		}
		return nil, &ProviderError{Kind: KindFatal, Message: reason}
	}

	start := time.Now()
	res, err := r.dispatch(ctx, m, req)
	if err != nil {
		pe := Classify(err)
		zap.L().Warn("llm: generate failed",
			zap.String("model_id", m.ID),
			zap.String("provider", string(m.Provider)),
			zap.String("kind", string(pe.Kind)),
			zap.Int("status", pe.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, pe
	}

	if m.Reasoning {
		res.Text = StripThink(res.Text)
	}
	res.ModelID = m.ID

	zap.L().Debug("llm: generate ok",
		zap.String("model_id", m.ID),
		zap.String("provider", string(m.Provider)),
		zap.Int64("total_tokens", res.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (r *Router) dispatch(ctx context.Context, m registry.Model, req Request) (*Result, error) {
	switch m.Provider {
	case registry.ProviderOpenAI:
		return chatCompletion(ctx, r.openai, m.ProviderModel, req)
	case registry.ProviderFireworks:
		return chatCompletion(ctx, r.fireworks, m.ProviderModel, req)
	case registry.ProviderGoogle:
		return r.generateGemini(ctx, m.ProviderModel, req)
	case registry.ProviderAnthropic:
		return r.createMessage(ctx, m.ProviderModel, req)
	default:
		return nil, &ProviderError{Kind: KindFatal, Message: "未知的模型供應商: " + string(m.Provider)}
	}
}

func chatCompletion(ctx context.Context, client openai.Client, providerModel string, req Request) (*Result, error) {
	maxTokens := maxCompletionTokens
	messages := make([]openai.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, openai.Message{Role: "user", Content: req.Prompt})

	resp, err := client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     providerModel,
		Messages:  messages,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Kind: KindTransient, Message: "回應中沒有內容"}
	}

	return &Result{
		Text: resp.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.PromptTokens + resp.Usage.CompletionTokens),
		},
	}, nil
}

func (r *Router) generateGemini(ctx context.Context, providerModel string, req Request) (*Result, error) {
	resp, err := r.gemini.GenerateContent(ctx, gemini.GenerateRequest{
		Model:  providerModel,
		System: req.System,
		Prompt: req.Prompt,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CandidatesTokens),
			TotalTokens:  int64(resp.Usage.PromptTokens + resp.Usage.CandidatesTokens),
		},
	}, nil
}

func (r *Router) createMessage(ctx context.Context, providerModel string, req Request) (*Result, error) {
	resp, err := r.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     providerModel,
		MaxTokens: maxCompletionTokens,
		System:    req.System,
		Messages:  []anthropic.Message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Text: resp.Text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
