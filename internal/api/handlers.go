package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/battlebrief/bulwark/internal/auth"
	"github.com/battlebrief/bulwark/internal/core"
	"github.com/battlebrief/bulwark/internal/logger"
)

const (
	msgCredentials  = "Could not validate credentials"
	msgBadLogin     = "Incorrect username or password"
	msgUserExists   = "Username already exists"
	msgWrongCurrent = "Current password is incorrect."

	msgPasswordTooLong = "Password must be at most 72 bytes"
)

type Config struct {
	// RequireAuth makes a bearer token mandatory on the summary endpoints.
	RequireAuth    bool
	MaxUploadBytes int64
	// LoginRatePerMinute limits /login and /signup per client IP. Zero disables it.
	LoginRatePerMinute int
}

type APIHandler struct {
	auth      *auth.Service
	summaries *core.SummaryService
	validate  *validator.Validate
	cfg       Config
	log       *logger.Logger
}

func NewAPIHandler(authService *auth.Service, summaries *core.SummaryService, cfg Config, log *logger.Logger) *APIHandler {
	return &APIHandler{
		auth:      authService,
		summaries: summaries,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		log:       log.With("component", "API"),
	}
}
