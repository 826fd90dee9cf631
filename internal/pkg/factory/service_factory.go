package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpapi "github.com/username/deskchat/internal/adapters/api/http"
	"github.com/username/deskchat/internal/adapters/llm/openai"
	"github.com/username/deskchat/internal/adapters/messaging/nats"
	"github.com/username/deskchat/internal/adapters/storage/sqlite"
	"github.com/username/deskchat/internal/adapters/websocket"
	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/domain/services"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
	"github.com/username/deskchat/pkg/config"
	"github.com/username/deskchat/pkg/tokenizer"
)

// ServiceContainer holds all initialized stores, adapters and services
type ServiceContainer struct {
	Registry  *store.Registry
	Settings  *store.ConfigStore
	Chat      *store.ChatStore
	UI        *store.UIStore
	Generator ports.GeneratorPort
	Messaging ports.MessagingPort // nil when NATS is disabled
	Journal   ports.JournalPort   // nil when the journal is disabled
	Metrics   *metrics.Collector
	Hub       *websocket.Hub
	Assistant *services.AssistantService
	Cleanup   *services.CleanupService
	Bridge    *services.EventBridge
	Handlers  *httpapi.APIHandlers
	Logger    *logutil.Logger
}

// InitializationOptions holds options for service initialization
type InitializationOptions struct {
	Config                *config.Config
	ValidateConfiguration bool
	EnableHealthChecks    bool
	Logger                *logutil.Logger

	// Generator replaces the OpenAI-compatible adapter, mostly for tests
	Generator ports.GeneratorPort
}

// ServiceFactory provides methods for creating and initializing services
type ServiceFactory struct {
	logger *logutil.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(logger *logutil.Logger) *ServiceFactory {
	if logger == nil {
		logger = logutil.NewDefaultLogger()
	}

	return &ServiceFactory{
		logger: logger,
	}
}

// Initialize creates all services, loads every store and returns the wired
// container. On failure anything already opened is closed.
func (sf *ServiceFactory) Initialize(ctx context.Context, opts InitializationOptions) (_ *ServiceContainer, err error) {
	if opts.Logger != nil {
		sf.logger = opts.Logger
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	sf.logger.Info("Starting service initialization", logutil.Fields{
		"data_dir":             cfg.DataDir,
		"validate_config":      opts.ValidateConfiguration,
		"enable_health_checks": opts.EnableHealthChecks,
	})

	if opts.ValidateConfiguration {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		sf.logger.Info("Configuration validation passed")
	}

	container := &ServiceContainer{
		Logger:  sf.logger,
		Metrics: metrics.NewCollector(),
	}
	defer func() {
		if err != nil {
			container.Close()
		}
	}()

	if err := sf.initializeStores(cfg, container); err != nil {
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}

	if err := sf.initializeAdapters(ctx, cfg, opts, container); err != nil {
		return nil, fmt.Errorf("failed to initialize adapters: %w", err)
	}

	sf.initializeDomainServices(cfg, container)

	if err := container.Registry.InitializeAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}

	if opts.EnableHealthChecks {
		if err := sf.performHealthChecks(ctx, container); err != nil {
			return nil, fmt.Errorf("health checks failed: %w", err)
		}
		sf.logger.Info("All health checks passed")
	}

	sf.logger.Info("Service initialization completed successfully", logutil.Fields{
		"stores": container.Registry.Names(),
	})
	return container, nil
}

// initializeStores creates and registers the three stores
func (sf *ServiceFactory) initializeStores(cfg *config.Config, container *ServiceContainer) error {
	registry := store.NewRegistry()
	settings := store.Register(registry, constants.StoreConfig, store.NewConfigStore(cfg.DataDir, sf.logger))

	var chatOpts []store.ChatOption
	if cfg.Tokens.Enabled {
		tk, err := tokenizer.NewTokenizer(cfg.Tokens.Encoding)
		if err != nil {
			return fmt.Errorf("failed to create tokenizer: %w", err)
		}
		chatOpts = append(chatOpts, store.WithTokenCounter(tk))
		sf.logger.Info("Token estimates enabled", logutil.Fields{"encoding": tk.Encoding()})
	}

	container.Registry = registry
	container.Settings = settings
	container.Chat = store.Register(registry, constants.StoreChat, store.NewChatStore(cfg.DataDir, settings, sf.logger, chatOpts...))
	container.UI = store.Register(registry, constants.StoreUI, store.NewUIStore(cfg.DataDir, sf.logger))
	return nil
}

// initializeAdapters creates the generator and the optional journal and NATS adapters
func (sf *ServiceFactory) initializeAdapters(ctx context.Context, cfg *config.Config, opts InitializationOptions, container *ServiceContainer) error {
	if opts.Generator != nil {
		container.Generator = opts.Generator
	} else {
		sf.logger.Info("Initializing generator", logutil.Fields{
			"provider": cfg.LLM.Provider,
			"base_url": cfg.LLM.BaseURL,
			"model":    cfg.LLM.Model,
		})
		generator, err := openai.NewAdapter(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Provider)
		if err != nil {
			return fmt.Errorf("failed to initialize generator: %w", err)
		}
		container.Generator = generator
	}

	if cfg.Journal.Enabled {
		sf.logger.Info("Initializing journal", logutil.Fields{"type": "sqlite", "path": cfg.Journal.Path})
		journal, err := sqlite.NewJournal(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		container.Journal = journal
		if err := journal.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate journal: %w", err)
		}
	}

	if cfg.NATS.Enabled {
		sf.logger.Info("Initializing messaging adapter", logutil.Fields{
			"type":      "nats",
			"url":       cfg.NATS.URL,
			"jetstream": cfg.NATS.JetStream,
		})
		messaging, err := nats.NewAdapter(cfg.NATS.URL, cfg.NATS.JetStream, cfg.NATS.RetentionDays)
		if err != nil {
			// The desktop app works without a broker
			sf.logger.Warn("NATS unavailable, continuing without messaging", logutil.Fields{"error": err})
		} else {
			container.Messaging = messaging
		}
	}

	return nil
}

// initializeDomainServices creates domain services with their dependencies
func (sf *ServiceFactory) initializeDomainServices(cfg *config.Config, container *ServiceContainer) {
	container.Hub = websocket.NewHub(sf.logger)

	container.Assistant = services.NewAssistantService(
		container.Generator,
		container.Chat,
		container.Settings,
		container.Metrics,
		services.AssistantConfig{
			FallbackAPIKey:    cfg.LLM.APIKey,
			DefaultModel:      cfg.LLM.Model,
			SystemInstruction: cfg.LLM.SystemInstruction,
			Timeout:           cfg.LLM.Timeout,
		},
		sf.logger,
		container.UI,
	)

	cleanupOpts := []services.CleanupOption{services.WithCleanupListener(container.Hub)}
	if container.Journal != nil {
		cleanupOpts = append(cleanupOpts, services.WithCleanupJournal(container.Journal))
	}
	if container.Messaging != nil {
		cleanupOpts = append(cleanupOpts, services.WithCleanupMessaging(container.Messaging))
	}
	container.Cleanup = services.NewCleanupService(
		container.Chat, container.Settings, container.Metrics,
		cfg.Cleanup.CheckInterval, sf.logger, cleanupOpts...,
	)

	container.Bridge = services.NewEventBridge(container.Registry, container.Hub, container.Messaging, container.Metrics, sf.logger)

	container.Handlers = httpapi.NewAPIHandlers(httpapi.Dependencies{
		Registry:  container.Registry,
		Settings:  container.Settings,
		Chat:      container.Chat,
		UI:        container.UI,
		Assistant: container.Assistant,
		Cleanup:   container.Cleanup,
		Journal:   container.Journal,
		Messaging: container.Messaging,
		Metrics:   container.Metrics,
		Hub:       container.Hub,
		Logger:    sf.logger,
	})
}

// performHealthChecks verifies the optional backends respond
func (sf *ServiceFactory) performHealthChecks(ctx context.Context, container *ServiceContainer) error {
	sf.logger.Info("Performing health checks")

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if container.Journal != nil {
		if err := container.Journal.Ping(healthCtx); err != nil {
			return fmt.Errorf("journal health check failed: %w", err)
		}
		sf.logger.Debug("Journal health check passed")
	}

	if container.Messaging != nil {
		if err := container.Messaging.Ping(); err != nil {
			return fmt.Errorf("messaging health check failed: %w", err)
		}
		sf.logger.Debug("Messaging health check passed")
	}

	return nil
}

// Start runs the hub, the event bridge and the cleanup scheduler until ctx
// is cancelled
func (container *ServiceContainer) Start(ctx context.Context) {
	go container.Hub.Run(ctx)
	container.Bridge.Start(ctx)
	go container.Cleanup.Start(ctx)
}

// Shutdown flushes the stores and closes every connection
func (container *ServiceContainer) Shutdown(ctx context.Context) error {
	if container.Logger != nil {
		container.Logger.Info("Shutting down services")
	}

	var errs []error
	if container.Registry != nil {
		for _, s := range []interface{ Save(context.Context) error }{container.Settings, container.Chat, container.UI} {
			if err := s.Save(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := container.Close(); err != nil {
		errs = append(errs, err)
	}

	if container.Logger != nil {
		container.Logger.Info("Service shutdown completed")
	}
	return errors.Join(errs...)
}

// Close stops the bridge, destroys the stores and closes connections
func (container *ServiceContainer) Close() error {
	if container.Bridge != nil {
		container.Bridge.Stop()
	}
	if container.Registry != nil {
		container.Registry.DestroyAll()
	}

	var errs []error
	if container.Journal != nil {
		if err := container.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
		}
	}
	if container.Messaging != nil {
		if err := container.Messaging.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close messaging: %w", err))
		}
	}
	if len(errs) > 0 && container.Logger != nil {
		container.Logger.Warn("Error closing connections", logutil.Fields{"error": errors.Join(errs...)})
	}
	return errors.Join(errs...)
}
