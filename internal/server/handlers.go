package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/analyzer"
	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/model"
	"github.com/shoplens/cartdetect/internal/pipeline"
	"github.com/shoplens/cartdetect/internal/registry"
)

type analyzeHTMLRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// handleAnalyzeHTML runs a single model call over a caller-supplied
// prompt. Usage is not recorded here; the client reports it separately
// through save-token-usage.
func (s *Server) handleAnalyzeHTML(w http.ResponseWriter, r *http.Request) {
	var req analyzeHTMLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "缺少 prompt 參數")
		return
	}
	modelID := req.Model
	if modelID == "" {
		modelID = registry.DefaultModelID
	}

	res, err := s.gateway.Generate(r.Context(), llm.Request{
		ModelID: modelID,
		System:  analyzer.SubtotalSystemPrompt,
		Prompt:  req.Prompt,
	})
	if err != nil {
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response": res.Text,
		"usage":    res.Usage,
	})
}

type analyzeCombinedRequest struct {
	Answers []model.ParsedAnswer `json:"answers"`
	ModelID string               `json:"modelId"`
	HTML    string               `json:"html"`
}

// handleAnalyzeCombined asks one arbiter model to reconcile the
// answers the client collected from the fan-out.
func (s *Server) handleAnalyzeCombined(w http.ResponseWriter, r *http.Request) {
	var req analyzeCombinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "缺少有效的 answers 參數")
		return
	}

	res, err := s.consensus.Analyze(r.Context(), req.Answers, req.ModelID, req.HTML, s.optionalUser(r))
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type saveTokenUsageRequest struct {
	ModelID     string `json:"modelId"`
	TotalTokens int64  `json:"totalTokens"`
	Timestamp   int64  `json:"timestamp"`
}

func (s *Server) handleSaveTokenUsage(w http.ResponseWriter, r *http.Request) {
	var req saveTokenUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ModelID == "" || req.TotalTokens <= 0 {
		writeError(w, http.StatusBadRequest, "缺少必要參數")
		return
	}

	ev := model.UsageEvent{
		UserID:      s.optionalUser(r),
		ModelID:     req.ModelID,
		TotalTokens: req.TotalTokens,
		Timestamp:   req.Timestamp,
	}
	if err := s.recorder.Record(r.Context(), ev); err != nil {
		writeError(w, http.StatusBadRequest, "缺少必要參數")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTokenUsage returns the authenticated user's aggregated token
// consumption. Anonymous callers get 401; aggregation is per user.
func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusUnauthorized, "未授權")
		return
	}
	userID, err := s.resolver.UserID(r)
	if err != nil || userID == nil {
		writeError(w, http.StatusUnauthorized, "未授權")
		return
	}

	agg, err := s.recorder.ForUser(r.Context(), userID, s.registry)
	if err != nil {
		zap.L().Error("server: usage aggregation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "未知錯誤")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

type fetchCartRequest struct {
	StoreName string `json:"storeName"`
}

// handleFetchCart retrieves a store's cart page. Fetch failures still
// return 200 with Success=false so the client can render the message.
func (s *Server) handleFetchCart(w http.ResponseWriter, r *http.Request) {
	var req fetchCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StoreName == "" {
		writeError(w, http.StatusBadRequest, "缺少必要參數")
		return
	}

	res, err := s.fetcher.FetchCart(r.Context(), req.StoreName)
	if res == nil {
		zap.L().Error("server: cart fetch failed",
			zap.String("store", req.StoreName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "未知錯誤")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeStoreRequest struct {
	StoreName      string   `json:"storeName"`
	ModelIDs       []string `json:"modelIds"`
	ArbiterModelID string   `json:"arbiterModelId"`
}

// handleAnalyzeStore streams a full store analysis as server-sent
// events: one frame per pipeline event, then a final done frame.
func (s *Server) handleAnalyzeStore(w http.ResponseWriter, r *http.Request) {
	var req analyzeStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StoreName == "" {
		writeError(w, http.StatusBadRequest, "缺少必要參數")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "未知錯誤")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	modelIDs := req.ModelIDs
	if len(modelIDs) == 0 {
		modelIDs = s.selectedModels(r)
	}

	result, err := s.coordinator.AnalyzeStore(r.Context(), pipeline.Request{
		StoreName:      req.StoreName,
		ModelIDs:       modelIDs,
		ArbiterModelID: req.ArbiterModelID,
		WithConsensus:  true,
		UserID:         s.optionalUser(r),
	}, func(ev pipeline.Event) { send(ev) })
	if err != nil {
		send(map[string]string{"type": "error", "error": userErrorMessage(err)})
		if result == nil {
			return
		}
		// A failed arbiter still leaves the per-model answers worth
		// delivering.
	}
	send(map[string]any{"type": "done", "result": result})
}

// optionalUser resolves the session user, treating verification
// failures as anonymous.
func (s *Server) optionalUser(r *http.Request) *string {
	if s.resolver == nil {
		return nil
	}
	userID, err := s.resolver.UserID(r)
	if err != nil {
		zap.L().Debug("server: token rejected, treating as anonymous", zap.Error(err))
		return nil
	}
	return userID
}

// writeProviderError maps a model back-end failure onto the HTTP reply.
func writeProviderError(w http.ResponseWriter, err error) {
	pe := llm.Classify(err)
	status := http.StatusInternalServerError
	if pe.StatusCode >= http.StatusBadRequest {
		status = pe.StatusCode
	}
	msg := pe.UserMessage()
	if msg == "" {
		msg = "未知錯誤"
	}
	zap.L().Warn("server: model call failed",
		zap.String("kind", string(pe.Kind)), zap.Error(err))
	writeError(w, status, msg)
}

func userErrorMessage(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.UserMessage() != "" {
		return pe.UserMessage()
	}
	return err.Error()
}
