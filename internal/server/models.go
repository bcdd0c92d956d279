package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/shoplens/cartdetect/internal/registry"
)

const (
	modelsCookieName    = "detect-cart-models"
	chatModelCookieName = "chat-model"
)

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.registry.List()})
}

type saveModelsRequest struct {
	Models []string `json:"models"`
}

// handleSaveModels persists the model selection to a cookie. Unknown
// ids are dropped; an empty selection falls back to the default model.
func (s *Server) handleSaveModels(w http.ResponseWriter, r *http.Request) {
	var req saveModelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "缺少必要參數")
		return
	}

	kept := make([]string, 0, len(req.Models))
	for _, id := range req.Models {
		if _, ok := s.registry.Find(id); ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		kept = []string{registry.DefaultModelID}
	}

	payload, _ := json.Marshal(kept)
	http.SetCookie(w, &http.Cookie{
		Name:     modelsCookieName,
		Value:    url.QueryEscape(string(payload)),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "models": kept})
}

// selectedModels resolves which models to fan out over when the request
// names none: the saved selection cookie, then the single chat-model
// cookie, then the default model.
func (s *Server) selectedModels(r *http.Request) []string {
	if c, err := r.Cookie(modelsCookieName); err == nil {
		if ids := decodeModelsCookie(c.Value); len(ids) > 0 {
			return ids
		}
	}
	if c, err := r.Cookie(chatModelCookieName); err == nil && c.Value != "" {
		if _, ok := s.registry.Find(c.Value); ok {
			return []string{c.Value}
		}
	}
	return []string{registry.DefaultModelID}
}

// decodeModelsCookie reads the query-escaped JSON array the save
// handler writes. Anything malformed is treated as unset.
func decodeModelsCookie(raw string) []string {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(unescaped), &ids); err != nil {
		return nil
	}
	return ids
}
