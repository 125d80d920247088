package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"feishu-digest-bot/internal/admission"
	"feishu-digest-bot/internal/config"
	"feishu-digest-bot/internal/db"
	"feishu-digest-bot/internal/digest"
	"feishu-digest-bot/internal/events"
	"feishu-digest-bot/internal/feishu"
	"feishu-digest-bot/internal/handlers"
	"feishu-digest-bot/internal/ledger"
	"feishu-digest-bot/internal/llm"
	"feishu-digest-bot/internal/metrics"
	"feishu-digest-bot/internal/repository"
	"feishu-digest-bot/internal/scheduler"
	"feishu-digest-bot/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Feishu AI Digest Bot")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var dbConn *gorm.DB
	var repo *repository.Repository
	if cfg.Database.Enabled {
		dbConn, err = db.Init(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		repo = repository.New(dbConn)
	} else {
		logrus.Info("Delivery log database disabled")
	}

	m := metrics.NewMetrics()

	processedLog, err := ledger.New(cfg.Bot.ProcessedLogPath)
	if err != nil {
		return fmt.Errorf("failed to open processed event ledger: %w", err)
	}

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.BaseURL)

	answerer, err := llm.New(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	// A nil *Repository must not end up inside a non-nil interface value.
	var replyRecorder events.DeliveryRecorder
	var digestRecorder digest.DeliveryRecorder
	if repo != nil {
		replyRecorder = repo
		digestRecorder = repo
	}

	filter := admission.New(processedLog, cfg.Bot.Name,
		time.Duration(cfg.Bot.MaxEventAgeSecs)*time.Second)
	eventHandler := events.NewHandler(filter, processedLog, answerer, client, replyRecorder, m)

	resolver := digest.NewResolver(client)
	normalizer := digest.NewNormalizer(client, resolver, cfg.Digest.WindowDays)
	publisher := digest.NewPublisher(normalizer, client, digestRecorder, m, digest.PublisherConfig{
		Source:          cfg.Digest.Source(),
		Title:           cfg.Digest.Title,
		TemplateID:      cfg.Digest.TemplateID,
		TemplateVersion: cfg.Digest.TemplateVersion,
		DefaultImageKey: cfg.Digest.DefaultImageKey,
		StaticItems:     cfg.Digest.StaticDigestItems(),
		TargetChatIDs:   cfg.Digest.TargetChatIDs,
	})

	sched := scheduler.NewScheduler(cfg.Digest.Schedule, publisher)

	h := handlers.NewHandlers(dbConn, repo, eventHandler, sched)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := processedLog.Close(); err != nil {
		logrus.Errorf("Failed to close processed event ledger: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
