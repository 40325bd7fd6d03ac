package bootstrap

import (
	"context"
	"log"

	"ai-motiondraft-be/internal/config"
	"ai-motiondraft-be/internal/constant"
	"ai-motiondraft-be/internal/controller"
	"ai-motiondraft-be/internal/handler"
	"ai-motiondraft-be/internal/pkg/logger"
	"ai-motiondraft-be/internal/repository/memory"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/internal/service"
	"ai-motiondraft-be/internal/websocket"
	"ai-motiondraft-be/pkg/embedding"
	"ai-motiondraft-be/pkg/embedding/jina"
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/llm/factory"

	pktNats "ai-motiondraft-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	GenerationController controller.IGenerationController
	DocumentController   controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	IndexerService service.IIndexerService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Keys.Jina)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	// Register the two drafting providers under their role names. Everything
	// downstream addresses them by role, never by backend.
	registry := llm.NewRegistry()

	providerA, err := factory.NewProvider(
		cfg.Ai.ProviderA,
		cfg.Ai.ProviderAModel,
		factory.BaseURLFor(cfg.Ai.ProviderA, cfg.Ai.OllamaBaseURL, cfg.Ai.OpenAIBaseURL),
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize provider A: %v", err)
	}
	registry.Register(constant.ProviderKeyA, providerA)
	log.Printf("[INFO] Provider A: %s (%s)", cfg.Ai.ProviderA, cfg.Ai.ProviderAModel)

	providerB, err := factory.NewProvider(
		cfg.Ai.ProviderB,
		cfg.Ai.ProviderBModel,
		factory.BaseURLFor(cfg.Ai.ProviderB, cfg.Ai.OllamaBaseURL, cfg.Ai.OpenAIBaseURL),
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize provider B: %v", err)
	}
	registry.Register(constant.ProviderKeyB, providerB)
	log.Printf("[INFO] Provider B: %s (%s)", cfg.Ai.ProviderB, cfg.Ai.ProviderBModel)

	// In-memory session storage for live drafting state
	sessionRepo := memory.NewSessionRepository()

	// 3.5 Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/notification.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 4. Services
	publisherService := service.NewPublisherService(cfg.Keys.IndexTopic, pubSub)
	indexerService := service.NewIndexerService(
		pubSub,
		cfg.Keys.IndexTopic,
		uowFactory,
		embeddingProvider,
		natsPub,
	)

	documentService := service.NewDocumentService(uowFactory, publisherService, embeddingProvider, natsPub)
	generationService := service.NewGenerationService(
		uowFactory,
		registry,
		embeddingProvider,
		sessionRepo,
		wsHub, // Hub implements DraftDelivery
		natsPub,
		cfg,
	)

	notifService := service.NewNotificationService(natsSub, wsHub, wsLogger)
	if natsSub != nil {
		go notifService.Start()
	}

	notifHandler := handler.NewNotificationHandler(notifService, natsPub, wsHub, wsLogger)

	sysLogger.Info("Bootstrap", "Container initialized", map[string]interface{}{
		"embedding_provider": cfg.Ai.EmbeddingProvider,
		"provider_a":         cfg.Ai.ProviderA,
		"provider_b":         cfg.Ai.ProviderB,
	})

	// 5. Controllers
	return &Container{
		NotificationHandler:  notifHandler,
		WebSocketHub:         wsHub,
		GenerationController: controller.NewGenerationController(generationService),
		DocumentController:   controller.NewDocumentController(documentService),

		IndexerService: indexerService,
	}
}
