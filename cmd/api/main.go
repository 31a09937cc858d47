package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/astcode/simvibe3d/internal/config"
	"github.com/astcode/simvibe3d/internal/handlers"
	"github.com/astcode/simvibe3d/internal/logger"
	"github.com/astcode/simvibe3d/internal/middleware"
	"github.com/astcode/simvibe3d/internal/services"
	"github.com/astcode/simvibe3d/internal/services/events"
	"github.com/astcode/simvibe3d/internal/storage"
	"github.com/astcode/simvibe3d/pkg/conversation"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/motion"
	"github.com/astcode/simvibe3d/pkg/quest"
)

const tickInterval = 50 * time.Millisecond // 20Hz motion tick

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Neon District API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model_name", cfg.OllamaModel)

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	llmService := services.NewOllamaService(cfg.OllamaURL, cfg.OllamaModel, log)
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer initCancel()
	if err := llmService.InitModel(initCtx, cfg.OllamaModel); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.OllamaModel)
		os.Exit(1)
	}

	questDef, err := loadQuestDefinition(filepath.Join(cfg.DataDir, "quests", "ghost_protocol.json"))
	if err != nil {
		log.Error("Failed to load quest definition", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	memStore := memory.NewStore(store, log)
	questGraph := quest.NewGraph(ctx, questDef, store, log)
	orchestrator := conversation.New(llmService, memStore, log).WithTimeout(cfg.GenerateTimeout)

	eventsClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	broadcaster := events.NewBroadcaster(eventsClient, log)

	controller := motion.NewController(log)
	if err := registerCharacters(ctx, store, controller, log); err != nil {
		log.Error("Failed to register characters", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, llmService, cfg.OllamaModel, log)
	mux.Handle("/health", healthHandler)

	characterHandler := handlers.NewCharacterHandler(store, log)
	mux.Handle("/v1/characters", characterHandler)
	mux.Handle("/v1/characters/", characterHandler)

	conversationHandler := handlers.NewConversationHandler(store, orchestrator, questGraph, broadcaster, log)
	mux.Handle("/v1/conversation", conversationHandler)
	mux.Handle("/v1/conversation/", conversationHandler)

	questHandler := handlers.NewQuestHandler(questGraph, memStore, store, log)
	mux.Handle("/v1/quest", questHandler)
	mux.Handle("/v1/quest/", questHandler)

	motionHandler := handlers.NewMotionHandler(controller, memStore, broadcaster, log)
	mux.Handle("/v1/motion/", motionHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tickCtx, tickCancel := context.WithCancel(context.Background())
	go runTickLoop(tickCtx, controller, motionHandler, broadcaster, log)

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")
	tickCancel()

	// Commit any open conversation before the process dies
	endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := orchestrator.End(endCtx); err != nil {
		log.Error("Failed to commit open conversation", "error", err)
	}
	endCancel()

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}
	if err := eventsClient.Close(); err != nil {
		log.Error("Error closing events connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

func loadQuestDefinition(path string) (quest.Definition, error) {
	var def quest.Definition

	data, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return def, err
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

// registerCharacters places every character present in the district into
// the motion controller. Post-game-only characters appear only once the
// main objective is complete.
func registerCharacters(ctx context.Context, store storage.Storage, controller *motion.Controller, log *slog.Logger) error {
	postGame := false
	ws, err := store.LoadWorldState(ctx)
	if err != nil {
		log.Warn("Failed to load world state, assuming active world", "error", err)
	} else if ws != nil {
		postGame = ws.MainObjectiveComplete
	}

	ids, err := store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, err := store.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if p.PostGameOnly && !postGame {
			continue
		}
		controller.Register(p)
	}
	log.Info("Characters registered", "count", len(ids), "post_game", postGame)
	return nil
}

// runTickLoop advances the motion controller at a fixed rate and
// publishes leading arrivals.
func runTickLoop(ctx context.Context, controller *motion.Controller, motionHandler *handlers.MotionHandler, broadcaster *events.Broadcaster, log *slog.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			arrivals := controller.Tick(dt, motionHandler.PlayerPosition())
			for _, a := range arrivals {
				if a.Mode != motion.ModeLeading {
					continue
				}
				log.Info("Character arrived at destination",
					"character_id", a.CharacterID,
					"destination", a.Label)
				if err := broadcaster.PublishLeadingArrived(ctx, a.CharacterID, a.Label); err != nil {
					log.Warn("Failed to publish event", "error", err)
				}
			}
		}
	}
}
