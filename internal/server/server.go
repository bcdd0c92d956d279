// Package server exposes the analysis pipeline over HTTP. Paths and
// payload shapes are fixed by the web client.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shoplens/cartdetect/internal/analyzer"
	"github.com/shoplens/cartdetect/internal/auth"
	"github.com/shoplens/cartdetect/internal/llm"
	"github.com/shoplens/cartdetect/internal/pipeline"
	"github.com/shoplens/cartdetect/internal/registry"
	"github.com/shoplens/cartdetect/internal/usage"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	gateway     llm.Gateway
	registry    *registry.Registry
	recorder    *usage.Recorder
	consensus   *analyzer.Consensus
	fetcher     pipeline.CartFetcher
	coordinator *pipeline.Coordinator
	resolver    auth.Resolver
	origins     []string
}

// New creates a Server.
func New(
	gateway llm.Gateway,
	reg *registry.Registry,
	recorder *usage.Recorder,
	consensus *analyzer.Consensus,
	fetcher pipeline.CartFetcher,
	coordinator *pipeline.Coordinator,
	resolver auth.Resolver,
	allowedOrigins []string,
) *Server {
	return &Server{
		gateway:     gateway,
		registry:    reg,
		recorder:    recorder,
		consensus:   consensus,
		fetcher:     fetcher,
		coordinator: coordinator,
		resolver:    resolver,
		origins:     allowedOrigins,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/detect-cart/api", func(r chi.Router) {
		r.Post("/analyze-html", s.handleAnalyzeHTML)
		r.Post("/analyze-combined", s.handleAnalyzeCombined)
		r.Post("/save-token-usage", s.handleSaveTokenUsage)
		r.Post("/fetch-cart", s.handleFetchCart)
		r.Post("/analyze-store", s.handleAnalyzeStore)
		r.Get("/models", s.handleListModels)
		r.Put("/models", s.handleSaveModels)
	})
	r.Get("/api/token-usage", s.handleTokenUsage)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
