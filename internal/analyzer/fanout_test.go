package analyzer

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/internal/usage"
)

// stubGateway answers from a fixed per-model table.
type stubGateway struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   atomic.Int32
	lastReq llm.Request
}

func (s *stubGateway) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()
	if err, ok := s.errs[req.ModelID]; ok {
		return nil, err
	}
	return &llm.Result{
		ModelID: req.ModelID,
		Text:    s.replies[req.ModelID],
		Usage:   model.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

// captureStore keeps inserted usage events in memory.
type captureStore struct {
	mu     sync.Mutex
	events []model.UsageEvent
}

func (s *captureStore) Insert(_ context.Context, ev model.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureStore) ListByUser(context.Context, *string) ([]model.UsageEvent, error) {
	return nil, nil
}

func (s *captureStore) Migrate(context.Context) error { return nil }
func (s *captureStore) Close() error                  { return nil }

func collectEvents() (func(model.ModelEvent), *[]model.ModelEvent, *sync.Mutex) {
	var mu sync.Mutex
	var events []model.ModelEvent
	return func(ev model.ModelEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}, &events, &mu
}

func TestAnalyze_AllSucceed(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{
		"chat-model-gemini": "output:document.querySelector('.a')",
		"chat-model-small":  "output:document.querySelector('.b')",
	}}
	f := NewFanout(gw, registry.New(), nil)
	sink, events, mu := collectEvents()

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		SimplifiedHTML: "<div>cart</div>",
		ModelIDs:       []string{"chat-model-gemini", "chat-model-small"},
	}, sink)

	require.Len(t, terminals, 2)
	assert.Equal(t, model.ModelStateSuccess, terminals[0].State)
	assert.Equal(t, "output:document.querySelector('.a')", terminals[0].Text)
	assert.EqualValues(t, 15, terminals[0].Usage.TotalTokens)
	assert.Equal(t, model.ModelStateSuccess, terminals[1].State)

	mu.Lock()
	defer mu.Unlock()
	// 2 pending + 2 processing + 2 terminal events, strictly increasing Seq.
	require.Len(t, *events, 6)
	assert.Equal(t, model.ModelStatePending, (*events)[0].State)
	assert.Equal(t, model.ModelStatePending, (*events)[1].State)
	for i := 1; i < len(*events); i++ {
		assert.Greater(t, (*events)[i].Seq, (*events)[i-1].Seq)
	}
}

func TestAnalyze_PendingPrecedesProcessing(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{"chat-model-gemini": "ok"}}
	f := NewFanout(gw, registry.New(), nil)
	sink, events, mu := collectEvents()

	f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-gemini", "chat-model-gemini-pro"},
	}, sink)

	mu.Lock()
	defer mu.Unlock()
	seen := map[string][]model.ModelState{}
	for _, ev := range *events {
		seen[ev.ModelID] = append(seen[ev.ModelID], ev.State)
	}
	assert.Equal(t, []model.ModelState{
		model.ModelStatePending, model.ModelStateProcessing, model.ModelStateSuccess,
	}, seen["chat-model-gemini"])
	assert.Equal(t, []model.ModelState{
		model.ModelStatePending, model.ModelStateSkipped,
	}, seen["chat-model-gemini-pro"])
}

func TestAnalyze_SendsPromptWithHTML(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{"chat-model-gemini": "ok"}}
	f := NewFanout(gw, registry.New(), nil)

	f.Analyze(context.Background(), model.AnalysisRequest{
		SimplifiedHTML: "<span id=\"total\">NT$99</span>",
		ModelIDs:       []string{"chat-model-gemini"},
	}, nil)

	assert.Equal(t, SubtotalSystemPrompt, gw.lastReq.System)
	assert.Contains(t, gw.lastReq.Prompt, "<span id=\"total\">NT$99</span>")
	assert.True(t, strings.HasPrefix(gw.lastReq.Prompt, "分析以下 Shopify 購物車 HTML"))
}

func TestAnalyze_SkipsDisabledWithoutCalls(t *testing.T) {
	gw := &stubGateway{}
	f := NewFanout(gw, registry.New(), nil)

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-gemini-pro"},
	}, nil)

	require.Len(t, terminals, 1)
	assert.Equal(t, model.ModelStateSkipped, terminals[0].State)
	assert.Equal(t, "此模型暫時不可用", terminals[0].Reason)
	assert.Zero(t, gw.calls.Load(), "disabled models must not reach the gateway")
}

func TestAnalyze_SkipsUnknownModel(t *testing.T) {
	gw := &stubGateway{}
	f := NewFanout(gw, registry.New(), nil)

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-nope"},
	}, nil)

	require.Len(t, terminals, 1)
	assert.Equal(t, model.ModelStateSkipped, terminals[0].State)
	assert.Equal(t, "unavailable", terminals[0].Reason)
	assert.Zero(t, gw.calls.Load())
}

func TestAnalyze_DeduplicatesIDs(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{"chat-model-gemini": "x"}}
	f := NewFanout(gw, registry.New(), nil)

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-gemini", "chat-model-gemini", "chat-model-gemini"},
	}, nil)

	require.Len(t, terminals, 1)
	assert.EqualValues(t, 1, gw.calls.Load())
}

func TestAnalyze_QuotaFailureMessage(t *testing.T) {
	gw := &stubGateway{
		replies: map[string]string{"chat-model-small": "output:document.querySelector('.ok')"},
		errs: map[string]error{
			"chat-model-gemini": &llm.ProviderError{
				Kind:    llm.KindQuotaExhausted,
				Code:    "RESOURCE_EXHAUSTED",
				Message: "Quota exceeded",
			},
		},
	}
	f := NewFanout(gw, registry.New(), nil)

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-gemini", "chat-model-small"},
	}, nil)

	require.Len(t, terminals, 2)
	failed := terminals[0]
	assert.Equal(t, model.ModelStateFailure, failed.State)
	assert.Equal(t, string(llm.KindQuotaExhausted), failed.FailureKind)
	assert.Equal(t, "資源配額已耗盡 (RESOURCE_EXHAUSTED): Quota exceeded", failed.Message)

	// One model failing never blocks the others.
	assert.Equal(t, model.ModelStateSuccess, terminals[1].State)
}

func TestAnalyze_AllTerminal(t *testing.T) {
	gw := &stubGateway{
		replies: map[string]string{"chat-model-small": "a", "chat-model-large": "b"},
		errs:    map[string]error{"chat-model-claude": &llm.ProviderError{Kind: llm.KindTransient, Message: "boom"}},
	}
	f := NewFanout(gw, registry.New(), nil)

	terminals := f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-small", "chat-model-large", "chat-model-claude", "chat-model-gemini-pro"},
	}, nil)

	require.Len(t, terminals, 4)
	for _, ev := range terminals {
		assert.True(t, ev.State.Terminal(), "model %s ended in %s", ev.ModelID, ev.State)
	}
}

func TestAnalyze_AttributesUsageToUser(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{"chat-model-gemini": "ok"}}
	store := &captureStore{}
	f := NewFanout(gw, registry.New(), usage.NewRecorder(store, nil))

	user := "user-1"
	f.Analyze(context.Background(), model.AnalysisRequest{
		SimplifiedHTML: "<div>cart</div>",
		ModelIDs:       []string{"chat-model-gemini"},
		UserID:         &user,
	}, nil)

	require.Len(t, store.events, 1)
	ev := store.events[0]
	require.NotNil(t, ev.UserID)
	assert.Equal(t, "user-1", *ev.UserID)
	assert.EqualValues(t, 15, ev.TotalTokens)
	assert.EqualValues(t, 10, ev.InputTokens)
	assert.EqualValues(t, 5, ev.OutputTokens)
}

func TestAnalyze_AnonymousUsage(t *testing.T) {
	gw := &stubGateway{replies: map[string]string{"chat-model-gemini": "ok"}}
	store := &captureStore{}
	f := NewFanout(gw, registry.New(), usage.NewRecorder(store, nil))

	f.Analyze(context.Background(), model.AnalysisRequest{
		ModelIDs: []string{"chat-model-gemini"},
	}, nil)

	require.Len(t, store.events, 1)
	assert.Nil(t, store.events[0].UserID)
}

func TestParseAnswers(t *testing.T) {
	f := NewFanout(nil, registry.New(), nil)
	events := []model.ModelEvent{
		{ModelID: "chat-model-gemini", State: model.ModelStateSuccess, Text: "output:document.querySelector('.a')"},
		{ModelID: "chat-model-small", State: model.ModelStateFailure},
		{ModelID: "chat-model-large", State: model.ModelStateSuccess, Text: "沒有找到"},
	}

	answers := f.ParseAnswers(events)
	require.Len(t, answers, 2)

	assert.Equal(t, "gemini-2.0-flash", answers[0].ModelDisplayName)
	require.NotNil(t, answers[0].Selector)
	assert.Equal(t, "document.querySelector('.a')", *answers[0].Selector)
	assert.Nil(t, answers[1].Selector)
}
