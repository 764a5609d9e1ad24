// Rural Mural Generator - AI mural design pipeline server
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qiankun25/RuralMuralGenerator/internal/agents"
	"github.com/qiankun25/RuralMuralGenerator/internal/api"
	"github.com/qiankun25/RuralMuralGenerator/internal/config"
	"github.com/qiankun25/RuralMuralGenerator/internal/gov"
	"github.com/qiankun25/RuralMuralGenerator/internal/image"
	"github.com/qiankun25/RuralMuralGenerator/internal/knowledge"
	"github.com/qiankun25/RuralMuralGenerator/internal/llm"
	"github.com/qiankun25/RuralMuralGenerator/internal/moderation"
	"github.com/qiankun25/RuralMuralGenerator/internal/store"
	"github.com/qiankun25/RuralMuralGenerator/internal/tasks"
	"github.com/qiankun25/RuralMuralGenerator/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	seed := flag.Bool("seed", false, "seed the knowledge base from the seed directory and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Text generation client doubles as the embedder for the knowledge store.
	llmClient := llm.New(llm.Config{
		APIKey:         cfg.DashScopeAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.LLMTemperature,
		MaxTokens:      cfg.LLMMaxTokens,
	})

	kb, err := knowledge.Open(cfg.KnowledgeDBPath, llmClient)
	if err != nil {
		slog.Error("Failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := kb.Close(); closeErr != nil {
			slog.Error("Failed to close knowledge base", "error", closeErr)
		}
	}()
	slog.Info("Knowledge base opened", "path", cfg.KnowledgeDBPath)

	if *seed {
		if err := knowledge.Seed(context.Background(), kb, cfg.SeedDir); err != nil {
			slog.Error("Seeding failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Seeding complete")
		return
	}

	prompts, err := llm.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		slog.Error("Failed to load prompt templates", "error", err)
		os.Exit(1)
	}

	govService := gov.New(cfg.GovernmentAPIBaseURL, cfg.GovernmentAPIKey, cfg.GovernmentTimeout, cfg.GovernmentRetries)

	imgClient, err := image.New(image.Config{
		APIKey:    cfg.DashScopeAPIKey,
		BaseURL:   cfg.ImageBaseURL,
		Model:     cfg.ImageModel,
		Size:      cfg.ImageSize,
		Timeout:   cfg.ImageTimeout,
		MediaDir:  cfg.MediaDir,
		MockDir:   cfg.MockImagesDir,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		slog.Error("Failed to initialize image client", "error", err)
		os.Exit(1)
	}

	moderator, err := moderation.Load(cfg.SensitiveWordsPath)
	if err != nil {
		slog.Error("Failed to load sensitive word list", "error", err)
		os.Exit(1)
	}

	// Agents and the conversational workflow.
	analyst := agents.NewCultureAnalyst(llmClient, kb, govService, prompts)
	designer := agents.NewCreativeDesigner(llmClient, kb, moderator, prompts)
	imager := agents.NewImageGenerator(imgClient)
	router := agents.NewIntentRouter(llmClient, prompts)
	ctrl := workflow.New(analyst, designer, imager, router)

	sessions := store.NewSessionStore()
	taskMgr := tasks.NewManager()

	handler := api.NewHandler(cfg, sessions, ctrl, analyst, designer, imager, taskMgr, kb)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler.Routes(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: the websocket task stream stays open for the
		// length of a render.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartTTLWorker(ctx, sessions, cfg.SessionTTL, nil)

	taskMgr.StartPruneWorker(ctx, cfg.TaskRetention)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
