/*-------------------------------------------------------------------------
 *
 * main.go
 *    Main entry point for NeuronFlow server
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/cmd/flow-server/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/neurondb/NeuronFlow/internal/api"
	"github.com/neurondb/NeuronFlow/internal/cache"
	"github.com/neurondb/NeuronFlow/internal/config"
	"github.com/neurondb/NeuronFlow/internal/events"
	"github.com/neurondb/NeuronFlow/internal/generation"
	"github.com/neurondb/NeuronFlow/internal/jobs"
	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/notifications"
	"github.com/neurondb/NeuronFlow/internal/reliability"
	"github.com/neurondb/NeuronFlow/internal/store"
	"github.com/neurondb/NeuronFlow/internal/workflow"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion    = flag.Bool("version", false, "Show version information")
		configPath     = flag.String("c", "", "Path to configuration file")
		configPathLong = flag.String("config", "", "Path to configuration file")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "NeuronFlow Server - Workflow orchestration engine\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                    Start server with default configuration\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml     Start server with custom config file\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("neuronflow version %s\n", version)
		fmt.Printf("Build date: %s\n", buildDate)
		fmt.Printf("Git commit: %s\n", gitCommit)
		os.Exit(0)
	}

	/* Load configuration */
	cfg := config.DefaultConfig()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = *configPathLong
	}
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}

	if cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v, using defaults\n", err)
			cfg = config.DefaultConfig()
		}
	} else {
		config.LoadFromEnv(cfg)
	}

	/* Initialize logging */
	metrics.InitLogging(cfg.Logging.Level, cfg.Logging.Format)

	/* Connect to database when configured, fall back to in-memory */
	var executionStore workflow.ExecutionStore
	broker := events.NewBroker(nil)
	if cfg.Database.Enabled {
		db, err := store.Connect(cfg.Database.ConnString(), cfg.Database.MaxOpenConns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		pgStore := store.NewPostgresExecutionStore(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to run migrations: %v\n", err)
			os.Exit(1)
		}
		executionStore = pgStore

		broker = events.NewBroker(db)
		broker.AddBackend(events.NewPostgreSQLBackend(db, cfg.Database.ConnString()))
	} else {
		executionStore = workflow.NewMemoryExecutionStore()
	}
	defer broker.Close()

	/* Initialize notification delivery */
	webhookService := notifications.NewWebhookService(cfg.Notifications.WebhookTimeout)
	channels := make(map[string]notifications.ChannelConfig, len(cfg.Notifications.Channels))
	for name, url := range cfg.Notifications.Channels {
		channels[name] = notifications.ChannelConfig{URL: url}
	}
	router := notifications.NewChannelRouter(webhookService, channels)

	queue := jobs.NewQueue()
	worker := jobs.NewWorker(queue, router, cfg.Notifications.Workers)
	worker.Start()
	defer worker.Stop()

	/* Route lifecycle events to the delivery queue */
	for _, eventType := range []string{workflow.EventExecutionCompleted, workflow.EventExecutionFailed, workflow.EventHumanReviewRequested, workflow.EventApprovalRequested, workflow.EventApprovalEscalated} {
		eventType := eventType
		broker.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
			payload := map[string]interface{}{
				"event":     event.Type,
				"timestamp": event.Timestamp,
				"data":      event.Data,
			}
			queue.Enqueue("lifecycle", payload, cfg.Notifications.MaxRetries)
			return nil
		})
	}

	/* Email review and approval requests to the configured recipients */
	if cfg.Notifications.SMTP.Enabled {
		smtp := cfg.Notifications.SMTP
		emailService := notifications.NewEmailService(smtp.Host, smtp.Port, smtp.User, smtp.Password, smtp.From)
		for _, eventType := range []string{workflow.EventHumanReviewRequested, workflow.EventApprovalRequested, workflow.EventApprovalEscalated, workflow.EventExecutionFailed} {
			eventType := eventType
			broker.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
				subject, body := notifications.FormatEventEmail(event.Type, event.Data)
				for _, recipient := range smtp.Recipients {
					if err := emailService.SendEmail(ctx, recipient, subject, body); err != nil {
						metrics.WarnWithContext(ctx, "Email notification failed", map[string]interface{}{
							"recipient": recipient,
							"event":     event.Type,
							"error":     err.Error(),
						})
					}
				}
				return nil
			})
		}
	}

	/* Initialize stage handlers */
	cacheManager := cache.NewCacheManager(cfg.Cache.ArtifactTTL, cfg.Cache.ResultTTL, cfg.Cache.MaxSize)
	breakers := reliability.NewCircuitBreakerManager()
	generationBreaker := breakers.GetOrCreate("generation", cfg.Engine.BreakerMaxFailures, cfg.Engine.BreakerResetTimeout)
	generationBreaker.SetStateChangeCallback(func(name string, from, to reliability.CircuitState) {
		_ = broker.Publish(context.Background(), "breaker.state_changed", "reliability", map[string]interface{}{
			"circuit": name,
			"from":    string(from),
			"to":      string(to),
		})
	})

	var provider workflow.ContentGenerationProvider
	if cfg.Generation.Endpoint != "" {
		provider = generation.NewHTTPProvider("http", cfg.Generation.Endpoint, cfg.Generation.APIKey, cfg.Generation.Timeout)
	} else {
		provider = generation.NewStaticProvider("static", nil)
	}

	orchestrator := buildOrchestrator(cfg, provider, cacheManager, generationBreaker, router, broker, executionStore)

	/* Setup router */
	stream := api.NewEventStream(broker)
	handlers := api.NewHandlers(orchestrator)
	apiRouter := api.NewRouter(handlers, stream)

	/* Start server */
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      apiRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		fmt.Printf("Server starting on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "FATAL: Server failed to start on %s: %v\n", addr, err)
			os.Exit(1)
		}
	}()

	/* Wait for interrupt signal */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Server forced to shutdown: %v\n", err)
	}

	fmt.Println("Server exited")
}

func buildOrchestrator(cfg *config.Config, provider workflow.ContentGenerationProvider, cacheManager *cache.CacheManager, breaker *reliability.CircuitBreaker, sender workflow.NotificationSender, broker *events.Broker, executionStore workflow.ExecutionStore) *workflow.Orchestrator {
	handlers := workflow.NewStageHandlerRegistry()
	orchestrator := workflow.NewOrchestrator(handlers, executionStore, broker, workflow.OrchestratorConfig{
		MaxConcurrentStages: cfg.Engine.MaxConcurrentStages,
	})

	handlers.Register(workflow.NewGenerationHandler(provider, cacheManager.Generations(), breaker, cfg.Cache.ResultTTL))
	handlers.Register(workflow.NewQualityCheckHandler(workflow.NewQualityGateEvaluator(), broker))
	handlers.Register(workflow.NewHumanReviewHandler(orchestrator.Reviews(), broker, cfg.Engine.DefaultReviewTimeout))
	handlers.Register(workflow.NewComplianceHandler())
	handlers.Register(workflow.NewApprovalHandler(orchestrator.Approvals(), broker))
	handlers.Register(workflow.NewDeploymentHandler(sender))

	return orchestrator
}
