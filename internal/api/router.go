package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/battlebrief/bulwark/internal/logger"
)

func NewRouter(apiHandler *APIHandler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log.With("component", "HTTP")))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(apiHandler.cfg.LoginRatePerMinute))
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
	})

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)
		r.Get("/settings", apiHandler.GetSettingsHandler)
		r.Put("/settings", apiHandler.UpdateSettingsHandler)
		r.Post("/change-password", apiHandler.ChangePasswordHandler)
	})

	// Summary routes; identity comes from the token when one is sent
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.OptionalAuthMiddleware)
		r.Post("/summarize", apiHandler.SummarizeHandler)
		r.Get("/summaries", apiHandler.ListSummariesHandler)
		r.Delete("/summaries/{summaryID}", apiHandler.DeleteSummaryHandler)
	})

	return r
}
