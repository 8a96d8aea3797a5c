package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/battlebrief/bulwark/internal/api"
	"github.com/battlebrief/bulwark/internal/auth"
	"github.com/battlebrief/bulwark/internal/config"
	"github.com/battlebrief/bulwark/internal/core"
	"github.com/battlebrief/bulwark/internal/ethics"
	"github.com/battlebrief/bulwark/internal/extract"
	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/provider"
	"github.com/battlebrief/bulwark/internal/store"
	"github.com/battlebrief/bulwark/internal/toxicity"
)

const shutdownTimeout = 30 * time.Second

// bootstrap loads configuration, builds the logger and opens the store.
// Migrations run as part of opening.
func bootstrap(ctx context.Context, cmd *cli.Command) (*config.Config, *logger.Logger, *store.SQLiteStore, error) {
	cfg, err := config.LoadConfig(cmd.String("env-file"))
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	st, err := store.NewSQLiteStore(ctx, cfg.DatabasePath, cfg.RetentionCap, log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, st, nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	_, log, st, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	log.Info("Migrations applied")
	return nil
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	_, log, st, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	limit := st.RetentionCap()
	if cmd.IsSet("cap") {
		limit = int(cmd.Int("cap"))
	}
	_, err = core.NewRetentionJob(ctx, st, limit, log).RunOnce(ctx)
	return err
}

func setUserDisabled(ctx context.Context, cmd *cli.Command) error {
	username := cmd.Args().First()
	if username == "" {
		return errors.New("usage: battlebrief user-status [--enable] <username>")
	}
	_, log, st, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	disabled := !cmd.Bool("enable")
	if err := st.SetUserDisabled(ctx, username, disabled); err != nil {
		return fmt.Errorf("failed to update %s: %w", username, err)
	}
	log.Info("User status updated", "username", username, "disabled", disabled)
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, st, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	registry, gemini := provider.NewRegistry(cfg, log)
	defer gemini.Close()

	svcCfg := core.SummaryServiceConfig{
		Extractor:         extract.New(log),
		Dispatcher:        core.NewDispatcher(registry, log),
		Repository:        st,
		MaxWords:          cfg.MaxWords,
		EthicsMaxAttempts: cfg.EthicsMaxAttempts,
	}
	if cfg.MistralAPIKey != "" {
		svcCfg.Judge = ethics.NewJudge(ethics.JudgeConfig{
			APIKey:      cfg.MistralAPIKey,
			BaseURL:     cfg.MistralBaseURL,
			Model:       cfg.MistralModel,
			MaxAttempts: cfg.JudgeMaxAttempts,
		}, log)
	} else {
		log.Warn("MISTRAL_API_KEY not set, quality scoring disabled")
	}
	if cfg.EthicsAuditEnabled {
		if cfg.GeminiAPIKey == "" {
			log.Warn("ETHICS_AUDIT_ENABLED requires GEMINI_API_KEY, audit disabled")
		} else {
			svcCfg.Auditor = ethics.NewAuditor(gemini, cfg.GeminiModel)
		}
	}
	if cfg.PerspectiveAPIKey != "" {
		scorer, err := toxicity.NewPerspectiveScorer(ctx, cfg.PerspectiveAPIKey, "")
		if err != nil {
			return err
		}
		svcCfg.Scorer = scorer
	} else {
		log.Warn("PERSPECTIVE_API_KEY not set, toxicity scoring disabled")
	}
	summaries := core.NewSummaryService(svcCfg, log)

	authService := auth.NewService(st, auth.NewTokenIssuer(cfg.AuthSecretKey, cfg.AccessTokenTTL), log)
	apiHandler := api.NewAPIHandler(authService, summaries, api.Config{
		RequireAuth:        cfg.SummariesRequireAuth,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
	}, log)

	retention := core.NewRetentionJob(ctx, st, st.RetentionCap(), log)
	if err := retention.Start(cfg.RetentionSweepSchedule); err != nil {
		return err
	}
	defer retention.Stop()

	serverAddr := ":" + cfg.HTTPPort
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           api.NewRouter(apiHandler, log),
		ReadHeaderTimeout: 15 * time.Second,
		// Multi-file uploads run every provider call inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", serverAddr, "providers", len(registry))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited gracefully")
	return nil
}
