package server

import (
	"net/http"

	"songforge/metrics"

	"github.com/gorilla/mux"
)

// NewRouter wires every endpoint. limiter guards song submission and may be nil.
// CORS is applied outside the router so preflight requests reach it.
func NewRouter(h *APIHandler, limiter *RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(metricsMiddleware)

	generate := h.GenerateSongHandler
	if limiter != nil {
		generate = limiter.Limit(generate)
	}

	// 认证
	router.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	// 歌曲
	router.HandleFunc("/api/songs/published", h.ListPublishedHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs", h.AuthMiddleware(h.ListSongsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs", h.AuthMiddleware(generate)).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/{id}/play", h.AuthMiddleware(h.PlayURLHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/title", h.AuthMiddleware(h.RenameSongHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/songs/{id}/published", h.AuthMiddleware(h.SetPublishedHandler)).Methods(http.MethodPut)

	// 积分
	router.HandleFunc("/api/credits", h.AuthMiddleware(h.GetCreditsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/webhooks/polar", h.PolarWebhookHandler).Methods(http.MethodPost)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)

	return router
}
